// Package edge implements the light client side of the network. An edge
// registers with one core node, follows the core list that node publishes
// and moves to another core when its core stops answering.
package edge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/connmgr"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// ErrNoCore is returned when no core node answers.
var ErrNoCore = errors.New("no core node available")

// EventHandler defines a function that is called when events
// occur in the processing of the edge.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start an Edge.
type Config struct {
	Host         string
	Port         int
	Core         peer.Peer
	Payload      string
	PingInterval time.Duration
	DialTimeout  time.Duration
	OnChain      func(blocks []database.Block)
	OnBlock      func(blk database.Block)
	OnMessage    func(payload json.RawMessage)
	EvHandler    EventHandler
}

// Edge manages the connection of a light client to the core network.
type Edge struct {
	cfg       Config
	server    *connmgr.Server
	cores     *peer.PeerSet
	core      atomic.Pointer[peer.Peer]
	mu        sync.RWMutex
	chain     []database.Block
	shut      chan struct{}
	wg        sync.WaitGroup
	evHandler EventHandler
}

// New constructs an edge that will register with the specified core. No
// connection is made until Start is called.
func New(cfg Config) *Edge {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Minute
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	e := Edge{
		cfg:       cfg,
		cores:     peer.NewPeerSet(),
		shut:      make(chan struct{}),
		evHandler: ev,
	}

	core := cfg.Core
	e.core.Store(&core)
	e.cores.Add(core)

	e.server = connmgr.NewServer(connmgr.ServerConfig{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Handle:    e.route,
		EvHandler: connmgr.EventHandler(ev),
	})

	return &e
}

// Start opens the listener, registers with the core and starts the timer
// that watches the core.
func (e *Edge) Start() error {
	if err := e.server.Start(); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}

	if err := e.register(e.Core()); err != nil {
		e.server.Stop()
		return fmt.Errorf("registering with %s: %w", e.Core(), err)
	}

	e.wg.Add(1)
	go e.runTimer()

	return nil
}

// Shutdown stops the timer, deregisters from the core and closes the
// listener.
func (e *Edge) Shutdown() error {
	e.evHandler("edge: shutdown: started")
	defer e.evHandler("edge: shutdown: completed")

	close(e.shut)
	e.wg.Wait()

	var err error
	err = multierr.Append(err, e.send(e.Core(), wire.MsgRemoveEdge, nil))
	err = multierr.Append(err, e.server.Stop())

	return err
}

// =============================================================================

// Self returns the address of this edge.
func (e *Edge) Self() peer.Peer {
	return e.server.Self()
}

// Core returns the core node this edge is registered with.
func (e *Edge) Core() peer.Peer {
	return *e.core.Load()
}

// Cores returns the core list last published by the core.
func (e *Edge) Cores() []peer.Peer {
	return e.cores.Copy()
}

// Chain returns the last chain received from the core.
func (e *Edge) Chain() []database.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]database.Block(nil), e.chain...)
}

// SendTransaction hands a signed transaction to the core for admission.
func (e *Edge) SendTransaction(tx database.Tx) error {
	return e.send(e.Core(), wire.MsgNewTransaction, tx)
}

// SendEnhanced hands an application message to the core for relay.
func (e *Edge) SendEnhanced(payload json.RawMessage) error {
	if !json.Valid(payload) {
		return errors.New("payload is not valid json")
	}

	return e.send(e.Core(), wire.MsgEnhanced, payload)
}

// RequestFullChain asks the core for its chain. The reply arrives later
// through the OnChain callback.
func (e *Edge) RequestFullChain() error {
	return e.send(e.Core(), wire.MsgRequestFullChain, nil)
}

// =============================================================================

// CheckCore pings the current core and moves to another listed core when
// it does not answer.
func (e *Edge) CheckCore() error {
	self := e.Self()
	core := e.Core()

	if connmgr.Ping(core, self.Port, e.cfg.DialTimeout) {
		return nil
	}

	e.evHandler("edge: check: core %s is dead", core)
	e.cores.Remove(core)

	for _, p := range e.cores.Copy() {
		if p == core || !connmgr.Ping(p, self.Port, e.cfg.DialTimeout) {
			continue
		}

		if err := e.register(p); err != nil {
			e.evHandler("edge: check: register: %s: ERROR: %s", p, err)
			continue
		}

		e.core.Store(&p)
		prometheusFailovers.Inc()
		e.evHandler("edge: check: moved to core %s", p)

		return nil
	}

	return ErrNoCore
}

func (e *Edge) register(core peer.Peer) error {
	e.evHandler("edge: register: core[%s]: payload[%s]", core, e.cfg.Payload)
	return e.send(core, wire.MsgAddAsEdge, e.cfg.Payload)
}

func (e *Edge) send(to peer.Peer, msgType wire.MsgType, payload any) error {
	frame, err := wire.Build(msgType, e.Self().Port, payload)
	if err != nil {
		return err
	}

	if err := connmgr.Send(to, frame, e.cfg.DialTimeout); err != nil {
		return fmt.Errorf("sending %s to %s: %w", msgType, to, err)
	}

	return nil
}

func (e *Edge) runTimer() {
	defer e.wg.Done()

	e.evHandler("edge: timer: started")
	defer e.evHandler("edge: timer: completed")

	timer := time.NewTimer(e.cfg.PingInterval)
	defer timer.Stop()

	for {
		select {
		case <-e.shut:
			return
		case <-timer.C:
			if err := e.CheckCore(); err != nil {
				e.evHandler("edge: timer: ERROR: %s", err)
			}
			timer.Reset(e.cfg.PingInterval)
		}
	}
}

// =============================================================================

// route handles the frames sent by core nodes. Frames from senders that
// are not listed cores are discarded.
func (e *Edge) route(msg wire.Message, origin peer.Peer) {
	if msg.Type == wire.MsgPing {
		return
	}

	if !e.cores.Contains(origin) {
		e.evHandler("edge: route: %s: %s: sender is not a core node", msg.Type, origin)
		prometheusFramesIgnored.Inc()
		return
	}

	switch msg.Type {
	case wire.MsgCoreList:
		var list []peer.Peer
		if err := msg.Decode(&list); err != nil {
			e.evHandler("edge: route: CORE_LIST: %s: ERROR: %s", origin, err)
			return
		}
		if len(list) == 0 {
			return
		}
		e.evHandler("edge: route: CORE_LIST: %s: adopted %d cores", origin, len(list))
		e.cores.Overwrite(list)
		e.cores.Add(e.Core())

	case wire.MsgFullChainResponse:
		var blocks []database.Block
		if err := msg.Decode(&blocks); err != nil {
			e.evHandler("edge: route: FULL_CHAIN_RESPONSE: %s: ERROR: %s", origin, err)
			return
		}
		e.mu.Lock()
		e.chain = blocks
		e.mu.Unlock()
		e.evHandler("edge: route: FULL_CHAIN_RESPONSE: %s: blocks[%d]", origin, len(blocks))
		if e.cfg.OnChain != nil {
			e.cfg.OnChain(blocks)
		}

	case wire.MsgNewBlock:
		var blk database.Block
		if err := msg.Decode(&blk); err != nil {
			e.evHandler("edge: route: NEW_BLOCK: %s: ERROR: %s", origin, err)
			return
		}
		e.appendBlock(blk)
		if e.cfg.OnBlock != nil {
			e.cfg.OnBlock(blk)
		}

	case wire.MsgEnhanced:
		e.evHandler("edge: route: ENHANCED: %s", origin)
		if e.cfg.OnMessage != nil {
			e.cfg.OnMessage(msg.Payload)
		}

	default:
		e.evHandler("edge: route: %s: unexpected command %s", origin, msg.Type)
	}
}

// appendBlock extends the known chain when the block links to its head.
// Anything else waits for the next full chain.
func (e *Edge) appendBlock(blk database.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.chain); n > 0 && e.chain[n-1].Hash == blk.PrevBlockHash {
		e.chain = append(e.chain, blk)
	}
}
