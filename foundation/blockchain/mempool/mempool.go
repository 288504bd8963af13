// Package mempool maintains the pool of pending transactions waiting to be
// included in a block. The pool keeps insertion order.
package mempool

import (
	"sync"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
)

// Mempool represents an ordered cache of transactions with a second key on
// the transaction identity for duplicate detection.
type Mempool struct {
	mu   sync.RWMutex
	pool []database.Tx
	ids  map[string]struct{}
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		ids: make(map[string]struct{}),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add appends the transaction to the end of the pool. A transaction already
// in the pool is ignored and false is returned.
func (mp *Mempool) Add(tx database.Tx) bool {
	id := tx.ID()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.ids[id]; exists {
		return false
	}

	mp.pool = append(mp.pool, tx)
	mp.ids[id] = struct{}{}

	return true
}

// Contains reports whether a transaction with the identity is pending.
func (mp *Mempool) Contains(id string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.ids[id]
	return exists
}

// Copy returns the pending transactions in insertion order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.Tx, len(mp.pool))
	copy(txs, mp.pool)

	return txs
}

// Renew replaces the content of the pool in one step.
func (mp *Mempool) Renew(txs []database.Tx) {
	pool := make([]database.Tx, 0, len(txs))
	ids := make(map[string]struct{}, len(txs))

	for _, tx := range txs {
		id := tx.ID()
		if _, exists := ids[id]; exists {
			continue
		}
		pool = append(pool, tx)
		ids[id] = struct{}{}
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = pool
	mp.ids = ids
}

// ClearN drops the first n transactions, the ones a block just consumed.
func (mp *Mempool) ClearN(n int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if n > len(mp.pool) {
		n = len(mp.pool)
	}

	for _, tx := range mp.pool[:n] {
		delete(mp.ids, tx.ID())
	}

	mp.pool = append([]database.Tx(nil), mp.pool[n:]...)
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = nil
	mp.ids = make(map[string]struct{})
}

// TotalFee sums the fees of the basic transactions in the pool.
// Transactions whose fee cannot be computed contribute nothing.
func (mp *Mempool) TotalFee() uint64 {
	return TotalFee(mp.Copy())
}

// HasOutput reports whether a pending transaction already consumes the
// output.
func (mp *Mempool) HasOutput(op database.OutPoint) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	for _, tx := range mp.pool {
		for _, in := range tx.Inputs {
			if in.OutPoint() == op {
				return true
			}
		}
	}

	return false
}

// =============================================================================

// TotalFee sums the fees of the basic transactions in the list.
func TotalFee(txs []database.Tx) uint64 {
	var total uint64
	for _, tx := range txs {
		fee, err := tx.Fee()
		if err != nil {
			continue
		}
		total += fee
	}

	return total
}
