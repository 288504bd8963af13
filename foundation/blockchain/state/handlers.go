package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/chain"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
)

// HandleMessage receives every frame the connection manager does not
// consume itself. Core only commands from senders that are not known core
// peers are logged and discarded.
func (s *State) HandleMessage(msg wire.Message, fromCore bool, origin peer.Peer) {
	if !s.IsMiningAllowed() {
		s.evHandler("state: HandleMessage: %s: %s: node not running", msg.Type, origin)
		return
	}

	switch msg.Type {
	case wire.MsgNewTransaction:
		s.handleNewTransaction(msg, fromCore, origin)

	case wire.MsgNewBlock:
		s.handleNewBlock(msg, fromCore, origin)

	case wire.MsgRequestFullChain:
		s.handleRequestFullChain(origin)

	case wire.MsgFullChainResponse:
		s.handleFullChainResponse(msg, fromCore, origin)

	case wire.MsgEnhanced:
		s.handleEnhanced(msg, origin)

	default:
		s.evHandler("state: HandleMessage: %s: unexpected command %s", origin, msg.Type)
	}
}

// =============================================================================

func (s *State) handleNewTransaction(msg wire.Message, fromCore bool, origin peer.Peer) {
	var tx database.Tx
	if err := msg.Decode(&tx); err != nil {
		s.evHandler("state: NEW_TRANSACTION: %s: ERROR: %s", origin, err)
		return
	}

	if err := s.admitTransaction(tx); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			s.evHandler("state: NEW_TRANSACTION: %s: %s: rejected: %s", origin, tx, err)
		}
		prometheusTxsRejected.WithLabelValues(rejectReason(err)).Inc()
		return
	}

	s.evHandler("state: NEW_TRANSACTION: %s: %s: admitted: pool[%d]", origin, tx, s.mempool.Count())

	// Transactions from edges enter the core network here. Core peers have
	// already relayed theirs.
	if !fromCore {
		s.network.BroadcastToCores(wire.MsgNewTransaction, tx)
	}
}

func (s *State) handleNewBlock(msg wire.Message, fromCore bool, origin peer.Peer) {
	if !fromCore {
		s.evHandler("state: NEW_BLOCK: %s: %s", origin, ErrNotCore)
		prometheusBlocksRejected.WithLabelValues("not_core").Inc()
		return
	}

	var blk database.Block
	if err := msg.Decode(&blk); err != nil {
		s.evHandler("state: NEW_BLOCK: %s: ERROR: %s", origin, err)
		prometheusBlocksRejected.WithLabelValues("malformed").Inc()
		return
	}

	if err := s.ProcessBlock(blk); err != nil {
		s.evHandler("state: NEW_BLOCK: %s: %s: rejected: %s", origin, blk, err)
	}
}

// ProcessBlock takes a block received from a peer, validates it and if that
// passes, appends it to the chain. A block that does not link to the head
// may mean this node is behind, so the full chains of the peers are
// requested.
func (s *State) ProcessBlock(blk database.Block) error {
	s.evHandler("state: ProcessBlock: started: %s", blk)
	defer s.evHandler("state: ProcessBlock: completed")

	if s.chain.HasBlock(blk.Hash) {
		return nil
	}

	if err := s.chain.IsValidBlock(s.chain.Head().Hash, blk); err != nil {
		if errors.Is(err, chain.ErrNotLinked) {
			prometheusBlocksRejected.WithLabelValues("not_linked").Inc()
			s.RequestFullChain()
			return err
		}
		prometheusBlocksRejected.WithLabelValues("proof").Inc()
		return err
	}

	if err := s.checkBlockTransactions(blk); err != nil {
		prometheusBlocksRejected.WithLabelValues("transactions").Inc()
		return err
	}

	// If a block is being built it needs to stop immediately. The G building
	// the block will not return until done is called. That allows this
	// function to complete its state changes before a new build starts.
	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer func() {
			s.evHandler("state: ProcessBlock: signal runMiningOperation to terminate")
			done()
		}()
	}

	s.mu.Lock()
	err := s.chain.AppendIfHead(blk)
	if err == nil {
		s.purgePool()
	}
	s.mu.Unlock()

	if err != nil {
		prometheusBlocksRejected.WithLabelValues("not_linked").Inc()
		s.RequestFullChain()
		return err
	}

	prometheusBlocksAccepted.Inc()
	s.headChanged()

	return nil
}

func (s *State) handleRequestFullChain(origin peer.Peer) {
	s.evHandler("state: REQUEST_FULL_CHAIN: %s: replying with %d blocks", origin, s.chain.Len())

	if err := s.network.Send(origin, wire.MsgFullChainResponse, s.chain.Copy()); err != nil {
		s.evHandler("state: REQUEST_FULL_CHAIN: %s: ERROR: %s", origin, err)
	}
}

func (s *State) handleFullChainResponse(msg wire.Message, fromCore bool, origin peer.Peer) {
	if !fromCore {
		s.evHandler("state: FULL_CHAIN_RESPONSE: %s: %s", origin, ErrNotCore)
		return
	}

	var blocks []database.Block
	if err := msg.Decode(&blocks); err != nil {
		s.evHandler("state: FULL_CHAIN_RESPONSE: %s: ERROR: %s", origin, err)
		return
	}

	s.ResolveConflicts(blocks)
}

// ResolveConflicts offers a candidate chain to the chain. When the candidate
// is adopted the transactions of the orphaned blocks go back to the pool.
// It reports whether the candidate was adopted.
func (s *State) ResolveConflicts(blocks []database.Block) bool {
	s.evHandler("state: ResolveConflicts: started: candidate[%d]", len(blocks))
	defer s.evHandler("state: ResolveConflicts: completed")

	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer done()
	}

	s.mu.Lock()
	head, orphans := s.chain.ResolveConflicts(blocks)
	if head == "" {
		s.mu.Unlock()
		s.evHandler("state: ResolveConflicts: candidate useless")
		return false
	}

	recovered := s.chain.TransactionsFromOrphanBlocks(orphans)
	for _, tx := range recovered {
		s.mempool.Add(tx)
	}
	s.purgePool()
	s.mu.Unlock()

	prometheusOrphansRecovered.Add(float64(len(recovered)))
	s.evHandler("state: ResolveConflicts: adopted: head[%s]: orphans[%d]: recovered[%d]", head, len(orphans), len(recovered))

	s.headChanged()

	// Recovered transactions do not need to wait for the next tick.
	if len(recovered) > 0 && s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return true
}

func (s *State) handleEnhanced(msg wire.Message, origin peer.Peer) {
	if len(msg.Payload) == 0 {
		return
	}

	if !s.storeMessage(msg.Payload, origin.String()) {
		return
	}

	s.evHandler("state: ENHANCED: %s: stored", origin)

	s.network.BroadcastToCores(wire.MsgEnhanced, msg.Payload)
	s.network.BroadcastToEdges(wire.MsgEnhanced, msg.Payload)
}

// =============================================================================

// Message is an application message relayed by the network.
type Message struct {
	ID      string          `json:"id"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// storeMessage records a message not seen recently and tells the
// application about it. It reports whether the message was new.
func (s *State) storeMessage(payload json.RawMessage, from string) bool {
	sum := sha256.Sum256(payload)
	id := hex.EncodeToString(sum[:])

	if _, found := s.seen.GetOrSet(id, struct{}{}); found {
		return false
	}

	m := Message{
		ID:      id,
		From:    from,
		Payload: append(json.RawMessage(nil), payload...),
	}

	s.msgMu.Lock()
	s.messages = append(s.messages, m)
	if len(s.messages) > maxMessages {
		s.messages = append([]Message(nil), s.messages[len(s.messages)-maxMessages:]...)
	}
	s.msgMu.Unlock()

	prometheusEnhanced.Inc()

	if s.onChange != nil {
		s.onChange(Change{Kind: ChangeEnhanced, Message: &m})
	}

	return true
}
