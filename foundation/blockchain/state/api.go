package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/utxo"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
)

// ErrTxNotFound is returned when a transaction is not part of the chain.
var ErrTxNotFound = errors.New("transaction not found in chain")

// SubmitTransaction runs the pool admission rules for a transaction
// submitted by a local client and shares it with the core peers.
func (s *State) SubmitTransaction(tx database.Tx) error {
	if !s.IsMiningAllowed() {
		return ErrNotRunning
	}

	if err := s.admitTransaction(tx); err != nil {
		prometheusTxsRejected.WithLabelValues(rejectReason(err)).Inc()
		return err
	}

	s.evHandler("state: SubmitTransaction: %s: admitted: pool[%d]", tx, s.mempool.Count())

	s.network.BroadcastToCores(wire.MsgNewTransaction, tx)

	return nil
}

// RequestFullChain asks every core peer for its chain. The responses are
// resolved against the local chain as they arrive.
func (s *State) RequestFullChain() {
	s.evHandler("state: RequestFullChain: requesting chains from %d peers", len(s.network.CorePeers())-1)

	s.network.BroadcastToCores(wire.MsgRequestFullChain, nil)
}

// SendEnhanced stores an application message and relays it to the core
// peers and the edges.
func (s *State) SendEnhanced(payload json.RawMessage) error {
	if !json.Valid(payload) {
		return errors.New("message payload is not valid json")
	}

	if !s.storeMessage(payload, s.network.Self().String()) {
		return nil
	}

	s.network.BroadcastToCores(wire.MsgEnhanced, payload)
	s.network.BroadcastToEdges(wire.MsgEnhanced, payload)

	return nil
}

// =============================================================================

// CurrentChain returns a snapshot of the local chain.
func (s *State) CurrentChain() []database.Block {
	return s.chain.Copy()
}

// LatestBlock returns the head of the local chain.
func (s *State) LatestBlock() database.Block {
	return s.chain.Head()
}

// PendingTransactions returns a copy of the pool.
func (s *State) PendingTransactions() []database.Tx {
	return s.mempool.Copy()
}

// PendingMessages returns the enhanced messages received recently, oldest
// first.
func (s *State) PendingMessages() []Message {
	s.msgMu.RLock()
	defer s.msgMu.RUnlock()

	return append([]Message(nil), s.messages...)
}

// QueryUTXOs returns the outputs of the address the chain has not spent
// and no pending transaction is spending, with their total value.
func (s *State) QueryUTXOs(address string) ([]utxo.UTXO, uint64, error) {
	if !database.ValidAddress(address) {
		return nil, 0, fmt.Errorf("%w: invalid address %q", database.ErrMalformedTx, address)
	}

	var spendable []utxo.UTXO
	var balance uint64
	for _, u := range utxo.Extract(address, s.chain.Transactions()) {
		if s.mempool.HasOutput(u.OutPoint()) {
			continue
		}
		spendable = append(spendable, u)
		balance += u.Output().Value
	}

	return spendable, balance, nil
}

// Proof is a merkle inclusion proof for a transaction in a block.
type Proof struct {
	TxID      string   `json:"tx_id"`
	BlockHash string   `json:"block_hash"`
	Index     uint64   `json:"block_index"`
	TransRoot string   `json:"trans_root"`
	Hashes    []string `json:"proof"`
	Order     []int64  `json:"order"`
}

// QueryProof returns the inclusion proof for the transaction.
func (s *State) QueryProof(txID string) (Proof, error) {
	blk, found := s.chain.FindTx(txID)
	if !found {
		return Proof{}, ErrTxNotFound
	}

	root, hashes, order, err := blk.Proof(txID)
	if err != nil {
		return Proof{}, err
	}

	p := Proof{
		TxID:      txID,
		BlockHash: blk.Hash,
		Index:     blk.Index,
		TransRoot: root,
		Hashes:    hashes,
		Order:     order,
	}

	return p, nil
}

// Peers returns the known core peers and the registered edges.
func (s *State) Peers() ([]peer.Peer, []peer.Edge) {
	return s.network.CorePeers(), s.network.Edges()
}

// Status summarizes the node.
type Status struct {
	State       string `json:"state"`
	Self        string `json:"self"`
	Beneficiary string `json:"beneficiary"`
	Balance     uint64 `json:"balance"`
	Height      int    `json:"height"`
	HeadHash    string `json:"head_hash"`
	Pending     int    `json:"pending"`
	Difficulty  uint16 `json:"difficulty"`
	CorePeers   int    `json:"core_peers"`
	Edges       int    `json:"edges"`
}

// QueryStatus returns the summary of the node.
func (s *State) QueryStatus() Status {
	st := Status{
		State:       s.Current(),
		Self:        s.network.Self().String(),
		Beneficiary: s.beneficiary,
		Balance:     s.wallet.Balance(),
		Height:      s.chain.Len(),
		HeadHash:    s.chain.Head().Hash,
		Pending:     s.mempool.Count(),
		Difficulty:  s.builder.Difficulty(),
		CorePeers:   len(s.network.CorePeers()),
		Edges:       len(s.network.Edges()),
	}

	return st
}
