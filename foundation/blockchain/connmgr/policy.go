package connmgr

import "github.com/ardanlabs/p2pledger/foundation/blockchain/peer"

// PolicyInput carries what a CoreListPolicy needs to judge a candidate
// core list.
type PolicyInput struct {
	Self      peer.Peer
	Sender    peer.Peer
	Bootstrap peer.Peer
	Known     []peer.Peer
	Candidate []peer.Peer
	Probe     func(peer.Peer) bool
}

// IsKnown reports whether the sender is a known core peer.
func (in PolicyInput) IsKnown() bool {
	for _, p := range in.Known {
		if p == in.Sender {
			return true
		}
	}

	return false
}

// CoreListPolicy decides whether a received core list replaces the local
// view of the network.
type CoreListPolicy func(in PolicyInput) bool

// DefaultPolicy adopts a candidate list when it comes from a known core
// peer and every other node in it answers a liveness probe, or when the
// local set only holds this node and the list comes from the bootstrap
// node being joined through.
func DefaultPolicy(in PolicyInput) bool {
	if len(in.Known) > 1 && in.IsKnown() {
		for _, p := range in.Candidate {
			if p == in.Self {
				continue
			}
			if !in.Probe(p) {
				return false
			}
		}
		return true
	}

	var zero peer.Peer
	if len(in.Known) <= 1 && in.Bootstrap != zero && in.Sender == in.Bootstrap {
		return true
	}

	return false
}
