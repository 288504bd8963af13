// Package state is the core API for the node. It wires the chain, the pool
// and the network together and implements the rules for admitting
// transactions and blocks received from peers.
package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/builder"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/chain"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/utxo"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
	"github.com/jellydator/ttlcache/v3"
	"github.com/looplab/fsm"
	"go.uber.org/multierr"
)

// Set of error variables for the node.
var (
	ErrNoTransactions    = errors.New("no transactions in mempool")
	ErrDuplicate         = errors.New("transaction already pending")
	ErrDoubleSpend       = errors.New("output already spent")
	ErrUnknownOutput     = errors.New("output does not exist in the chain")
	ErrCoinbaseMisplaced = errors.New("coinbase transaction is only allowed first in a block")
	ErrInvalidReward     = errors.New("coinbase value does not match fees and subsidy")
	ErrNotCore           = errors.New("sender is not a known core peer")
	ErrRaceLost          = errors.New("another block extended the chain first")
	ErrNotRunning        = errors.New("node is not running")
)

// maxMessages is the number of enhanced messages kept for the application.
const maxMessages = 256

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of the node.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for block production.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// Network represents the behavior required from the connection manager.
type Network interface {
	Start() error
	Shutdown() error
	JoinNetwork(bootstrap peer.Peer) error
	Self() peer.Peer
	IsCore(p peer.Peer) bool
	CorePeers() []peer.Peer
	Edges() []peer.Edge
	Send(to peer.Peer, msgType wire.MsgType, payload any) error
	BroadcastToCores(msgType wire.MsgType, payload any)
	BroadcastToEdges(msgType wire.MsgType, payload any)
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	Beneficiary string
	Genesis     genesis.Genesis
	Network     Network
	Bootstrap   peer.Peer
	MessageTTL  time.Duration
	OnChange    func(Change)
	EvHandler   EventHandler
}

// State manages the chain, the pool and the node lifecycle.
type State struct {
	beneficiary string
	genesis     genesis.Genesis
	bootstrap   peer.Peer
	evHandler   EventHandler
	onChange    func(Change)
	mu          sync.Mutex

	fsm      *fsm.FSM
	network  Network
	builder  *builder.Builder
	chain    *chain.Chain
	mempool  *mempool.Mempool
	wallet   *utxo.Manager
	seen     *ttlcache.Cache[string, struct{}]
	msgMu    sync.RWMutex
	messages []Message

	Worker Worker
}

// New constructs the node with a chain holding only the genesis block.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	if !database.ValidAddress(cfg.Beneficiary) {
		return nil, errors.New("beneficiary is not a valid address")
	}

	if cfg.Network == nil {
		return nil, errors.New("network is required")
	}

	if cfg.MessageTTL <= 0 {
		cfg.MessageTTL = 10 * time.Minute
	}

	// Every node computes the same genesis block from the same parameters.
	bldr := builder.New(cfg.Genesis, builder.EventHandler(ev))
	genesisBlock, err := bldr.GenerateGenesis()
	if err != nil {
		return nil, err
	}

	seen := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](cfg.MessageTTL),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)

	go seen.Start()

	state := State{
		beneficiary: cfg.Beneficiary,
		genesis:     cfg.Genesis,
		bootstrap:   cfg.Bootstrap,
		evHandler:   ev,
		onChange:    cfg.OnChange,

		fsm:     newFSM(),
		network: cfg.Network,
		builder: bldr,
		chain:   chain.New(genesisBlock, bldr, chain.EventHandler(ev)),
		mempool: mempool.New(),
		wallet:  utxo.New(cfg.Beneficiary),
		seen:    seen,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	state.updateGauges()

	return &state, nil
}

// Start opens the network and moves the node to standby. If a bootstrap
// node is configured the node joins the network through it, otherwise it
// runs standalone on its own genesis block.
func (s *State) Start() error {
	if err := s.fsm.Event(context.Background(), eventStart); err != nil {
		return err
	}

	if err := s.network.Start(); err != nil {
		return err
	}

	var zero peer.Peer
	if s.bootstrap == zero {
		s.evHandler("state: start: running standalone: genesis[%s]", s.chain.Head().Hash)
		return nil
	}

	if err := s.fsm.Event(context.Background(), eventJoin); err != nil {
		return err
	}

	s.evHandler("state: start: joining network: bootstrap[%s]", s.bootstrap)

	return s.network.JoinNetwork(s.bootstrap)
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	if err := s.fsm.Event(context.Background(), eventShutdown); err != nil {
		return err
	}

	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all block production activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	s.seen.Stop()

	var err error
	err = multierr.Append(err, s.network.Shutdown())

	return err
}

// IsMiningAllowed reports whether the node is in a state to build blocks.
func (s *State) IsMiningAllowed() bool {
	return s.fsm.Is(stateStandby) || s.fsm.Is(stateConnected)
}

// Current returns the name of the lifecycle state of the node.
func (s *State) Current() string {
	return s.fsm.Current()
}

// Genesis returns the parameters the chain runs with.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// =============================================================================

// ChangeKind identifies what changed on the node.
type ChangeKind string

// Set of changes the application is told about.
const (
	ChangeHead     ChangeKind = "head"
	ChangeEnhanced ChangeKind = "enhanced"
)

// Change describes a change the application may want to react to.
type Change struct {
	Kind    ChangeKind      `json:"kind"`
	Head    *database.Block `json:"head,omitempty"`
	Message *Message        `json:"message,omitempty"`
}

// headChanged is called every time the chain gets a new head.
func (s *State) headChanged() {
	head := s.chain.Head()

	s.wallet.Refresh(s.chain.Transactions())
	s.updateGauges()

	s.evHandler("state: head: %s: height[%d]: balance[%d]", head, s.chain.Len(), s.wallet.Balance())

	if s.onChange != nil {
		s.onChange(Change{Kind: ChangeHead, Head: &head})
	}
}

func (s *State) updateGauges() {
	prometheusChainHeight.Set(float64(s.chain.Len()))
	prometheusPoolSize.Set(float64(s.mempool.Count()))
}
