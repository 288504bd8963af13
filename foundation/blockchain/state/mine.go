package state

import (
	"context"
	"fmt"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
)

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. The block carries a coinbase paying
// this node the fees plus the subsidy, followed by the pending transactions
// the chain does not already carry.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// The pool is brought in line with the chain first so the block never
	// carries a transaction its peers would refuse.
	s.mu.Lock()
	s.purgePool()
	txs := s.mempool.Copy()
	s.mu.Unlock()

	if len(txs) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	reward := mempool.TotalFee(txs) + s.genesis.Subsidy
	coinbase := database.NewCoinbase(s.beneficiary, reward)

	trans := make([]database.Tx, 0, len(txs)+1)
	trans = append(trans, coinbase)
	trans = append(trans, txs...)

	s.evHandler("state: MineNewBlock: MINING: perform POW: txs[%d]: reward[%d]", len(txs), reward)

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	prev := s.chain.Head()
	blk, err := s.builder.GenerateNewBlock(ctx, trans, prev)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: update local state")

	if err := s.commitMinedBlock(blk, len(txs)); err != nil {
		return database.Block{}, err
	}

	prometheusBlocksMined.Inc()
	s.headChanged()

	return blk, nil
}

// commitMinedBlock appends the block and drops the consumed prefix of the
// pool. The head may have moved while searching, in which case the block
// is discarded and the pool is left for the next attempt.
func (s *State) commitMinedBlock(blk database.Block, consumed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.chain.AppendIfHead(blk); err != nil {
		return fmt.Errorf("%w: %w", ErrRaceLost, err)
	}

	s.mempool.ClearN(consumed)

	return nil
}

// NetSendBlockToPeers announces a block this node built to the core peers
// and the edges.
func (s *State) NetSendBlockToPeers(blk database.Block) {
	s.evHandler("state: NetSendBlockToPeers: started: %s", blk)
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	s.network.BroadcastToCores(wire.MsgNewBlock, blk)
	s.network.BroadcastToEdges(wire.MsgNewBlock, blk)
}

// QueryMempoolLength returns the number of pending transactions.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}
