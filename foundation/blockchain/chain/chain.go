// Package chain owns the authoritative chain of blocks. It validates and
// appends blocks and applies the longest valid chain rule when a peer
// offers a competing history.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/builder"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
)

// Set of error variables for chain validation.
var (
	ErrNotLinked       = errors.New("block does not link to the expected previous block")
	ErrGenesisMismatch = errors.New("chain does not start with our genesis block")
	ErrEmptyChain      = errors.New("chain has no blocks")
)

// EventHandler defines a function that is called when events
// occur in the processing of the chain.
type EventHandler func(v string, args ...any)

// Chain holds the ordered blocks, index 0 being the genesis block.
type Chain struct {
	mu        sync.RWMutex
	blocks    []database.Block
	builder   *builder.Builder
	evHandler EventHandler
}

// New constructs a chain holding only the genesis block.
func New(genesisBlock database.Block, b *builder.Builder, evHandler EventHandler) *Chain {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	return &Chain{
		blocks:    []database.Block{genesisBlock},
		builder:   b,
		evHandler: evHandler,
	}
}

// Head returns the last block of the chain.
func (c *Chain) Head() database.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blocks[len(c.blocks)-1]
}

// Len returns the number of blocks in the chain, genesis included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.blocks)
}

// Copy returns a snapshot of the chain. Blocks are never modified once in
// the chain so the copy shares their transactions.
func (c *Chain) Copy() []database.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]database.Block(nil), c.blocks...)
}

// =============================================================================

// IsValidBlock checks the block declares prevHash as its previous block and
// that its hash is sound and solves the proof of work. A block that does not
// link may mean the local chain is behind rather than a bad block.
func (c *Chain) IsValidBlock(prevHash string, blk database.Block) error {
	if blk.PrevBlockHash != prevHash {
		return fmt.Errorf("%w: got %s, exp %s", ErrNotLinked, blk.PrevBlockHash, prevHash)
	}

	return c.builder.VerifyProof(blk)
}

// SetNewBlock appends the block. The caller must have validated it against
// the current head.
func (c *Chain) SetNewBlock(blk database.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocks = append(c.blocks, blk)
	c.evHandler("chain: SetNewBlock: %s: height[%d]", blk, len(c.blocks))
}

// AppendIfHead appends the block only if it still follows the current head.
// The check and the append happen under the same lock so a block built on a
// head that moved in the meantime is refused.
func (c *Chain) AppendIfHead(blk database.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.blocks[len(c.blocks)-1]
	if blk.PrevBlockHash != head.Hash || blk.Index != head.Index+1 {
		return fmt.Errorf("%w: head %s, block %s", ErrNotLinked, head, blk)
	}

	c.blocks = append(c.blocks, blk)
	c.evHandler("chain: AppendIfHead: %s: height[%d]", blk, len(c.blocks))

	return nil
}

// RemoveUselessTransactions returns the pending transactions that are not
// already embedded in the chain. Applying it twice gives the same result.
func (c *Chain) RemoveUselessTransactions(pending []database.Tx) []database.Tx {
	ids := c.txIDs()

	useful := make([]database.Tx, 0, len(pending))
	for _, tx := range pending {
		if !ids[tx.ID()] {
			useful = append(useful, tx)
		}
	}

	return useful
}

// =============================================================================

// IsValidChain checks a candidate chain starts with our genesis block and
// that every block links to the one before it with a sound proof of work.
func (c *Chain) IsValidChain(blocks []database.Block) error {
	if len(blocks) == 0 {
		return ErrEmptyChain
	}

	c.mu.RLock()
	genesisHash := c.blocks[0].Hash
	c.mu.RUnlock()

	if blocks[0].Hash != genesisHash {
		return fmt.Errorf("%w: got %s", ErrGenesisMismatch, blocks[0].Hash)
	}

	for i := 1; i < len(blocks); i++ {
		if blocks[i].Index != blocks[i-1].Index+1 {
			return fmt.Errorf("%w: block %d has index %d", ErrNotLinked, i, blocks[i].Index)
		}
		if err := c.IsValidBlock(blocks[i-1].Hash, blocks[i]); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}

	return nil
}

// ResolveConflicts applies the longest valid chain rule. The candidate is
// adopted only if it is valid and longer than the local chain. On adoption
// the new head hash is returned along with the local blocks the candidate
// does not contain, the orphans. An empty head means the local chain was
// kept.
func (c *Chain) ResolveConflicts(candidate []database.Block) (string, []database.Block) {
	if err := c.IsValidChain(candidate); err != nil {
		c.evHandler("chain: ResolveConflicts: candidate rejected: %s", err)
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(candidate) <= len(c.blocks) {
		c.evHandler("chain: ResolveConflicts: candidate not longer: local[%d] candidate[%d]", len(c.blocks), len(candidate))
		return "", nil
	}

	adopted := make(map[string]bool, len(candidate))
	for _, blk := range candidate {
		adopted[blk.Hash] = true
	}

	var orphans []database.Block
	for _, blk := range c.blocks {
		if !adopted[blk.Hash] {
			orphans = append(orphans, blk)
		}
	}

	c.blocks = append([]database.Block(nil), candidate...)
	head := c.blocks[len(c.blocks)-1]

	c.evHandler("chain: ResolveConflicts: adopted: head[%s]: height[%d]: orphans[%d]", head, len(c.blocks), len(orphans))

	return head.Hash, orphans
}

// TransactionsFromOrphanBlocks returns the transactions of the orphaned
// blocks that need to go back to the pool: coinbase transactions and
// transactions the adopted chain already carries are left out.
func (c *Chain) TransactionsFromOrphanBlocks(orphans []database.Block) []database.Tx {
	ids := c.txIDs()

	var txs []database.Tx
	for _, blk := range orphans {
		for _, tx := range blk.Transactions {
			if tx.Type == database.TypeCoinbase {
				continue
			}
			id := tx.ID()
			if ids[id] {
				continue
			}
			ids[id] = true
			txs = append(txs, tx)
		}
	}

	return txs
}

// =============================================================================

// HasSpent reports whether some input in the chain already consumes the
// output.
func (c *Chain) HasSpent(op database.OutPoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, blk := range c.blocks {
		for _, tx := range blk.Transactions {
			for _, in := range tx.Inputs {
				if in.OutPoint() == op {
					return true
				}
			}
		}
	}

	return false
}

// IsValidOutput reports whether the output was produced by a transaction in
// the chain.
func (c *Chain) IsValidOutput(op database.OutPoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, blk := range c.blocks {
		for _, tx := range blk.Transactions {
			if tx.ID() == op.TxID {
				return op.Index >= 0 && op.Index < len(tx.Outputs)
			}
		}
	}

	return false
}

// Transactions returns every transaction in the chain in chain order.
func (c *Chain) Transactions() []database.Tx {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var txs []database.Tx
	for _, blk := range c.blocks {
		txs = append(txs, blk.Transactions...)
	}

	return txs
}

// HasBlock reports whether a block with the hash is part of the chain.
func (c *Chain) HasBlock(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, blk := range c.blocks {
		if blk.Hash == hash {
			return true
		}
	}

	return false
}

// FindTx returns the block carrying the transaction with the identity.
func (c *Chain) FindTx(id string) (database.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, blk := range c.blocks {
		for _, tx := range blk.Transactions {
			if tx.ID() == id {
				return blk, true
			}
		}
	}

	return database.Block{}, false
}

func (c *Chain) txIDs() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[string]bool)
	for _, blk := range c.blocks {
		for _, tx := range blk.Transactions {
			ids[tx.ID()] = true
		}
	}

	return ids
}
