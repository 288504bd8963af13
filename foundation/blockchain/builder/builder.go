// Package builder assembles blocks: the deterministic genesis block and the
// successor blocks, each sealed by a proof of work search.
package builder

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
)

// Set of error variables for block verification.
var (
	ErrHashMismatch = errors.New("block hash does not match its contents")
	ErrNotSolved    = errors.New("block hash does not solve the proof of work")
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// Builder constructs and verifies blocks for a set of chain parameters.
type Builder struct {
	genesis   genesis.Genesis
	evHandler EventHandler
}

// New constructs a builder for the chain parameters.
func New(g genesis.Genesis, evHandler EventHandler) *Builder {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	return &Builder{
		genesis:   g,
		evHandler: evHandler,
	}
}

// Difficulty returns the number of leading zeros a block hash needs.
func (b *Builder) Difficulty() uint16 {
	return b.genesis.Difficulty
}

// GenerateGenesis constructs the genesis block. Every node running the same
// parameters produces the same block: there are no transactions, the
// previous hash is all zeros and the nonce search starts at zero.
func (b *Builder) GenerateGenesis() (database.Block, error) {
	blk := database.Block{
		Index:         0,
		TimeStamp:     b.genesis.Date.UTC().Unix(),
		PrevBlockHash: signature.ZeroHash,
		Transactions:  []database.Tx{},
	}

	if err := b.performPOW(context.Background(), &blk, 0); err != nil {
		return database.Block{}, err
	}

	return blk, nil
}

// GenerateNewBlock constructs the block that follows prev and carries the
// transactions. The proof of work search stops when the context is
// cancelled, which is how a build loses the race to a received block.
func (b *Builder) GenerateNewBlock(ctx context.Context, txs []database.Tx, prev database.Block) (database.Block, error) {
	if txs == nil {
		txs = []database.Tx{}
	}

	blk := database.Block{
		Index:         prev.Index + 1,
		TimeStamp:     time.Now().UTC().Unix(),
		PrevBlockHash: prev.Hash,
		Transactions:  txs,
	}

	// Choose a random starting point for the nonce so nodes building the
	// same block do not search the same space.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return database.Block{}, err
	}

	if err := b.performPOW(ctx, &blk, nBig.Uint64()); err != nil {
		return database.Block{}, err
	}

	return blk, nil
}

// VerifyProof checks the block hash matches the contents and solves the
// proof of work.
func (b *Builder) VerifyProof(blk database.Block) error {
	hash, err := blk.CalculateHash()
	if err != nil {
		return err
	}

	if hash != blk.Hash {
		return fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, blk.Hash, hash)
	}

	if !database.IsHashSolved(b.genesis.Difficulty, hash) {
		return fmt.Errorf("%w: %s", ErrNotSolved, hash)
	}

	return nil
}

// performPOW searches for a nonce that solves the puzzle. Pointer semantics
// are being used since a nonce is being discovered.
func (b *Builder) performPOW(ctx context.Context, blk *database.Block, nonce uint64) error {
	b.evHandler("builder: performPOW: MINING: blk[%d]: started: txs[%d]", blk.Index, len(blk.Transactions))
	defer b.evHandler("builder: performPOW: MINING: blk[%d]: completed", blk.Index)

	// The transaction root does not change while searching.
	header, err := blk.Header()
	if err != nil {
		return err
	}
	header.Nonce = nonce

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			b.evHandler("builder: performPOW: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			b.evHandler("builder: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		hash := header.Hash()
		if !database.IsHashSolved(b.genesis.Difficulty, hash) {
			header.Nonce++
			continue
		}

		blk.Nonce = header.Nonce
		blk.Hash = hash

		b.evHandler("builder: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", blk.PrevBlockHash, hash, attempts)

		return nil
	}
}
