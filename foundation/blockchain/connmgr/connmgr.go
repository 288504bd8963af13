// Package connmgr maintains the membership of the network. It accepts
// inbound frames, consumes the membership commands, probes peers for
// liveness and hands every other command to the application.
package connmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// EventHandler defines a function that is called when events
// occur in the processing of the network.
type EventHandler func(v string, args ...any)

// Handler receives every message the manager does not consume. It is told
// whether the sender is a known core peer and the sender's address so it
// can reply point to point.
type Handler func(msg wire.Message, fromCore bool, origin peer.Peer)

// Config represents the configuration required to start a ConnMgr.
type Config struct {
	Host         string
	Port         int
	PingInterval time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	MaxFrameSize int64
	Workers      int64
	Policy       CoreListPolicy
	Handler      Handler
	EvHandler    EventHandler
}

// ConnMgr manages the core peers and edge nodes of this core node.
type ConnMgr struct {
	cfg       Config
	server    *Server
	cores     *peer.PeerSet
	edges     *peer.EdgeSet
	mu        sync.RWMutex
	bootstrap peer.Peer
	shut      chan struct{}
	wg        sync.WaitGroup
	evHandler EventHandler
}

// New constructs a connection manager. The manager does not accept
// connections until Start is called.
func New(cfg Config) *ConnMgr {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Minute
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy
	}
	if cfg.Handler == nil {
		cfg.Handler = func(wire.Message, bool, peer.Peer) {}
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	cm := ConnMgr{
		cfg:       cfg,
		cores:     peer.NewPeerSet(),
		edges:     peer.NewEdgeSet(),
		shut:      make(chan struct{}),
		evHandler: ev,
	}

	cm.server = NewServer(ServerConfig{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Workers:      cfg.Workers,
		MaxFrameSize: cfg.MaxFrameSize,
		ReadTimeout:  cfg.ReadTimeout,
		Handle:       cm.route,
		EvHandler:    ev,
	})

	return &cm
}

// Start opens the listener, registers this node as a core peer and starts
// the liveness timers.
func (cm *ConnMgr) Start() error {
	if err := cm.server.Start(); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}

	cm.cores.Add(cm.server.Self())
	cm.updateGauges()

	cm.wg.Add(2)
	go cm.runTimer("peers", cm.ProbePeers)
	go cm.runTimer("edges", cm.ProbeEdges)

	return nil
}

// Shutdown closes the listener, stops the timers and tells the bootstrap
// node this node is leaving.
func (cm *ConnMgr) Shutdown() error {
	cm.evHandler("connmgr: shutdown: started")
	defer cm.evHandler("connmgr: shutdown: completed")

	close(cm.shut)
	cm.wg.Wait()

	var err error
	err = multierr.Append(err, cm.server.Stop())

	if bootstrap, ok := cm.Bootstrap(); ok {
		err = multierr.Append(err, cm.sendFrame(bootstrap, wire.MsgRemove, nil))
	}

	return err
}

// Self returns the address of this node.
func (cm *ConnMgr) Self() peer.Peer {
	return cm.server.Self()
}

// JoinNetwork sends an ADD to the bootstrap node. Membership converges
// later through the core lists the network broadcasts.
func (cm *ConnMgr) JoinNetwork(bootstrap peer.Peer) error {
	cm.mu.Lock()
	cm.bootstrap = bootstrap
	cm.mu.Unlock()

	cm.evHandler("connmgr: join: bootstrap[%s]", bootstrap)

	frame, err := wire.Build(wire.MsgAdd, cm.Self().Port, nil)
	if err != nil {
		return err
	}

	return Send(bootstrap, frame, cm.cfg.DialTimeout)
}

// Bootstrap returns the node this node joined the network through.
func (cm *ConnMgr) Bootstrap() (peer.Peer, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var zero peer.Peer
	return cm.bootstrap, cm.bootstrap != zero
}

// CorePeers returns a snapshot of the known core peers, this node included.
func (cm *ConnMgr) CorePeers() []peer.Peer {
	return cm.cores.Copy()
}

// Edges returns a snapshot of the registered edge nodes.
func (cm *ConnMgr) Edges() []peer.Edge {
	return cm.edges.Copy()
}

// IsCore reports whether the peer is a known core peer.
func (cm *ConnMgr) IsCore(p peer.Peer) bool {
	return cm.cores.Contains(p)
}

// =============================================================================

// Send delivers a message to a single node. A node that cannot be reached
// is treated as departed and removed from membership.
func (cm *ConnMgr) Send(to peer.Peer, msgType wire.MsgType, payload any) error {
	return cm.sendFrame(to, msgType, payload)
}

// BroadcastToCores sends the message to every core peer except this node.
func (cm *ConnMgr) BroadcastToCores(msgType wire.MsgType, payload any) {
	frame, err := wire.Build(msgType, cm.Self().Port, payload)
	if err != nil {
		cm.evHandler("connmgr: broadcast: %s: ERROR: %s", msgType, err)
		return
	}

	for _, p := range cm.cores.CopyExcept(cm.Self()) {
		cm.deliver(p, frame)
	}
}

// BroadcastToEdges sends the message to every registered edge node.
func (cm *ConnMgr) BroadcastToEdges(msgType wire.MsgType, payload any) {
	frame, err := wire.Build(msgType, cm.Self().Port, payload)
	if err != nil {
		cm.evHandler("connmgr: broadcast: %s: ERROR: %s", msgType, err)
		return
	}

	for _, e := range cm.edges.Copy() {
		cm.deliver(e.Peer, frame)
	}
}

func (cm *ConnMgr) sendFrame(to peer.Peer, msgType wire.MsgType, payload any) error {
	frame, err := wire.Build(msgType, cm.Self().Port, payload)
	if err != nil {
		return err
	}

	return cm.deliver(to, frame)
}

func (cm *ConnMgr) deliver(to peer.Peer, frame []byte) error {
	if err := Send(to, frame, cm.cfg.DialTimeout); err != nil {
		cm.evHandler("connmgr: send: %s: ERROR: %s: removing", to, err)
		cm.cores.Remove(to)
		cm.edges.RemoveFunc(func(e peer.Edge) bool { return e.Peer == to })
		cm.updateGauges()
		return err
	}

	return nil
}

// =============================================================================

func (cm *ConnMgr) route(msg wire.Message, origin peer.Peer) {
	self := cm.Self()

	switch msg.Type {
	case wire.MsgAdd:
		cm.evHandler("connmgr: route: ADD: %s", origin)
		cm.cores.Add(origin)
		cm.updateGauges()
		if origin != self {
			cm.broadcastCoreList()
		}

	case wire.MsgRemove:
		cm.evHandler("connmgr: route: REMOVE: %s", origin)
		if cm.cores.Remove(origin) {
			cm.updateGauges()
			cm.broadcastCoreList()
		}

	case wire.MsgPing:
		// Connecting was the acknowledgement.

	case wire.MsgRequestCoreList:
		cm.evHandler("connmgr: route: REQUEST_CORE_LIST: %s", origin)
		cm.sendFrame(origin, wire.MsgCoreList, cm.cores.Copy())

	case wire.MsgAddAsEdge:
		var payload string
		if msg.Status == wire.StatusOKWithPayload {
			if err := msg.Decode(&payload); err != nil {
				cm.evHandler("connmgr: route: ADD_AS_EDGE: %s: ERROR: %s", origin, err)
				return
			}
		}
		cm.evHandler("connmgr: route: ADD_AS_EDGE: %s: payload[%s]", origin, payload)
		cm.edges.Add(peer.Edge{Peer: origin, Payload: payload})
		cm.updateGauges()
		cm.sendFrame(origin, wire.MsgCoreList, cm.cores.Copy())

	case wire.MsgRemoveEdge:
		cm.evHandler("connmgr: route: REMOVE_EDGE: %s", origin)
		cm.edges.RemoveFunc(func(e peer.Edge) bool { return e.Peer == origin })
		cm.updateGauges()

	case wire.MsgCoreList:
		cm.acceptCoreList(msg, origin)

	default:
		cm.cfg.Handler(msg, cm.cores.Contains(origin), origin)
	}
}

func (cm *ConnMgr) acceptCoreList(msg wire.Message, origin peer.Peer) {
	var candidate []peer.Peer
	if err := msg.Decode(&candidate); err != nil {
		cm.evHandler("connmgr: route: CORE_LIST: %s: ERROR: %s", origin, err)
		return
	}

	bootstrap, _ := cm.Bootstrap()

	in := PolicyInput{
		Self:      cm.Self(),
		Sender:    origin,
		Bootstrap: bootstrap,
		Known:     cm.cores.Copy(),
		Candidate: candidate,
		Probe: func(p peer.Peer) bool {
			return Ping(p, cm.Self().Port, cm.cfg.DialTimeout)
		},
	}

	if !cm.cfg.Policy(in) {
		cm.evHandler("connmgr: route: CORE_LIST: %s: unsafe list discarded", origin)
		prometheusUnsafeCoreList.Inc()
		return
	}

	cm.evHandler("connmgr: route: CORE_LIST: %s: adopted %d peers", origin, len(candidate))
	cm.cores.Overwrite(candidate)
	cm.updateGauges()
}

func (cm *ConnMgr) broadcastCoreList() {
	list := cm.cores.Copy()
	cm.BroadcastToCores(wire.MsgCoreList, list)
	cm.BroadcastToEdges(wire.MsgCoreList, list)
}

// =============================================================================

// ProbePeers pings every core peer and removes, in one batch, the ones that
// do not answer. Survivors receive the updated core list.
func (cm *ConnMgr) ProbePeers() {
	self := cm.Self()
	dead := probe(cm.cores.CopyExcept(self), func(p peer.Peer) bool {
		return Ping(p, self.Port, cm.cfg.DialTimeout)
	})

	if len(dead) == 0 {
		return
	}

	for _, p := range dead {
		cm.evHandler("connmgr: probe: peer %s is dead", p)
		cm.cores.Remove(p)
	}
	cm.updateGauges()

	cm.broadcastCoreList()
}

// ProbeEdges pings every edge node and removes the ones that do not answer.
func (cm *ConnMgr) ProbeEdges() {
	self := cm.Self()
	dead := probe(cm.edges.Copy(), func(e peer.Edge) bool {
		return Ping(e.Peer, self.Port, cm.cfg.DialTimeout)
	})

	for _, e := range dead {
		cm.evHandler("connmgr: probe: edge %s is dead", e.Peer)
		cm.edges.Remove(e)
	}

	if len(dead) > 0 {
		cm.updateGauges()
	}
}

// probe runs the liveness check for every member concurrently so a slow
// member only costs its own dial timeout.
func probe[T any](members []T, alive func(T) bool) []T {
	results := make([]bool, len(members))

	var g errgroup.Group
	g.SetLimit(10)

	for i, m := range members {
		g.Go(func() error {
			results[i] = alive(m)
			return nil
		})
	}
	g.Wait()

	var dead []T
	for i, ok := range results {
		if !ok {
			dead = append(dead, members[i])
		}
	}

	return dead
}

// runTimer runs the function after every interval. The next interval is
// scheduled once the function returns.
func (cm *ConnMgr) runTimer(name string, fn func()) {
	defer cm.wg.Done()

	cm.evHandler("connmgr: timer: %s: started", name)
	defer cm.evHandler("connmgr: timer: %s: completed", name)

	timer := time.NewTimer(cm.cfg.PingInterval)
	defer timer.Stop()

	for {
		select {
		case <-cm.shut:
			return
		case <-timer.C:
			fn()
			timer.Reset(cm.cfg.PingInterval)
		}
	}
}

func (cm *ConnMgr) updateGauges() {
	prometheusCorePeers.Set(float64(cm.cores.Len()))
	prometheusEdges.Set(float64(cm.edges.Len()))
}
