// Package peer maintains the membership information of the network: the
// set of known core peers and the set of registered edge nodes.
package peer

import (
	"fmt"
	"net"
	"strconv"
	"sync"
)

// Peer represents the address of a node in the network.
type Peer struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// New contructs a new peer value.
func New(host string, port int) Peer {
	return Peer{
		Host: host,
		Port: port,
	}
}

// Parse constructs a peer from a host:port string.
func Parse(hostPort string) (Peer, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return Peer{}, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Peer{}, fmt.Errorf("invalid port %q", portStr)
	}

	return New(host, port), nil
}

// Resolve constructs a peer whose host is an IP address, looking a host
// name up first. Nodes know each other by the IP address a connection
// comes from, so a peer named by host name would never match. IPv4
// addresses are preferred.
func Resolve(host string, port int) (Peer, error) {
	if ip := net.ParseIP(host); ip != nil {
		return New(ip.String(), port), nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return Peer{}, fmt.Errorf("resolving %s: %w", host, err)
	}
	if len(ips) == 0 {
		return Peer{}, fmt.Errorf("resolving %s: no addresses", host)
	}

	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return New(ip4.String(), port), nil
		}
	}

	return New(ips[0].String(), port), nil
}

// CheckAdvertised verifies a node can announce itself with the host. The
// host is sent to peers as this node's address, so it must be an IP
// address they can reach.
func CheckAdvertised(host string) error {
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("host %q is not an IP address", host)
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("host %q can not be reached by peers", host)
	}

	return nil
}

// Match validates if the specified peer is this peer.
func (p Peer) Match(other Peer) bool {
	return p == other
}

// Addr returns the host:port form used to dial the peer.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// String implements the fmt.Stringer interface for logging.
func (p Peer) String() string {
	return p.Addr()
}

// Edge represents a light node registered with a core node. The payload is
// whatever the edge supplied when it registered, so two edges behind the
// same address are still distinct.
type Edge struct {
	Peer
	Payload string `json:"payload"`
}

// =============================================================================

// Set represents a mutex protected set of comparable members. Reads return
// copies so callers can iterate while the set changes.
type Set[T comparable] struct {
	mu  sync.RWMutex
	set map[T]struct{}
}

// NewSet constructs an empty set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{
		set: make(map[T]struct{}),
	}
}

// PeerSet is the set of known core peers.
type PeerSet = Set[Peer]

// EdgeSet is the set of registered edge nodes.
type EdgeSet = Set[Edge]

// NewPeerSet constructs an empty set of core peers.
func NewPeerSet() *PeerSet {
	return NewSet[Peer]()
}

// NewEdgeSet constructs an empty set of edge nodes.
func NewEdgeSet() *EdgeSet {
	return NewSet[Edge]()
}

// Add adds a new member to the set. It returns false if the member was
// already known.
func (s *Set[T]) Add(member T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.set[member]; exists {
		return false
	}

	s.set[member] = struct{}{}
	return true
}

// Remove removes a member from the set. Removing an unknown member is a
// no-op and returns false.
func (s *Set[T]) Remove(member T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.set[member]; !exists {
		return false
	}

	delete(s.set, member)
	return true
}

// RemoveFunc removes every member the function matches and returns how
// many were removed.
func (s *Set[T]) RemoveFunc(match func(T) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for member := range s.set {
		if match(member) {
			delete(s.set, member)
			n++
		}
	}

	return n
}

// Overwrite replaces the content of the set in one step.
func (s *Set[T]) Overwrite(members []T) {
	set := make(map[T]struct{}, len(members))
	for _, member := range members {
		set[member] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.set = set
}

// Contains reports whether the member is in the set.
func (s *Set[T]) Contains(member T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.set[member]
	return exists
}

// Len returns the number of members in the set.
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.set)
}

// Copy returns a snapshot of the members. There is no ordering guarantee.
func (s *Set[T]) Copy() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]T, 0, len(s.set))
	for member := range s.set {
		members = append(members, member)
	}

	return members
}

// CopyExcept returns a snapshot of the members without the specified one.
func (s *Set[T]) CopyExcept(self T) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]T, 0, len(s.set))
	for member := range s.set {
		if member != self {
			members = append(members, member)
		}
	}

	return members
}
