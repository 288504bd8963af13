package builder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/builder"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
)

const owner = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"

func newBuilder(difficulty uint16) *builder.Builder {
	g := genesis.Default()
	g.Difficulty = difficulty
	return builder.New(g, nil)
}

func Test_Genesis(t *testing.T) {
	b := newBuilder(2)

	g1, err := b.GenerateGenesis()
	if err != nil {
		t.Fatalf("Should be able to generate the genesis block: %s", err)
	}

	g2, err := b.GenerateGenesis()
	if err != nil {
		t.Fatalf("Should be able to generate the genesis block: %s", err)
	}

	if g1.Hash != g2.Hash {
		t.Logf("got: %s", g2.Hash)
		t.Logf("exp: %s", g1.Hash)
		t.Fatalf("Should generate the same genesis block every time.")
	}

	if g1.Index != 0 || g1.PrevBlockHash != signature.ZeroHash || len(g1.Transactions) != 0 {
		t.Fatalf("Should generate an empty block on top of the zero hash, got %+v.", g1)
	}

	if err := b.VerifyProof(g1); err != nil {
		t.Fatalf("Should verify the genesis block: %s", err)
	}
}

func Test_NewBlock(t *testing.T) {
	b := newBuilder(2)

	gen, err := b.GenerateGenesis()
	if err != nil {
		t.Fatalf("Should be able to generate the genesis block: %s", err)
	}

	txs := []database.Tx{database.NewCoinbase(owner, 30)}

	blk, err := b.GenerateNewBlock(context.Background(), txs, gen)
	if err != nil {
		t.Fatalf("Should be able to build a block: %s", err)
	}

	if blk.Index != 1 || blk.PrevBlockHash != gen.Hash {
		t.Fatalf("Should link the block to its parent, got index %d prev %s.", blk.Index, blk.PrevBlockHash)
	}

	if err := b.VerifyProof(blk); err != nil {
		t.Fatalf("Should verify the new block: %s", err)
	}

	tampered := blk
	tampered.Transactions = []database.Tx{database.NewCoinbase(owner, 3000)}
	if err := b.VerifyProof(tampered); !errors.Is(err, builder.ErrHashMismatch) {
		t.Fatalf("Should detect tampered transactions, got %v.", err)
	}

	// A harder puzzle is not solved by this block's hash in general, so
	// build against a hash that has no leading zeros at all.
	unsolved := blk
	unsolved.Nonce++
	unsolved.Hash, _ = unsolved.CalculateHash()
	if database.IsHashSolved(2, unsolved.Hash) {
		return
	}
	if err := b.VerifyProof(unsolved); !errors.Is(err, builder.ErrNotSolved) {
		t.Fatalf("Should detect an unsolved hash, got %v.", err)
	}
}

func Test_Cancel(t *testing.T) {

	// Difficulty 64 can not be solved, only cancelled.
	b := newBuilder(64)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.GenerateNewBlock(ctx, nil, database.Block{Hash: signature.ZeroHash})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Should stop the search when cancelled, got %v.", err)
	}
}
