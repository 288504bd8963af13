package chain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/builder"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/chain"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	owner = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	other = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
)

type fixture struct {
	b       *builder.Builder
	genesis database.Block
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	g := genesis.Default()
	g.Difficulty = 1

	b := builder.New(g, nil)
	gen, err := b.GenerateGenesis()
	if err != nil {
		t.Fatalf("Should be able to generate the genesis block: %s", err)
	}

	return fixture{b: b, genesis: gen}
}

func (f fixture) extend(t *testing.T, blocks []database.Block, txs ...database.Tx) []database.Block {
	t.Helper()

	blk, err := f.b.GenerateNewBlock(context.Background(), txs, blocks[len(blocks)-1])
	if err != nil {
		t.Fatalf("Should be able to build a block: %s", err)
	}

	return append(append([]database.Block(nil), blocks...), blk)
}

// =============================================================================

func Test_IsValidBlock(t *testing.T) {
	f := newFixture(t)
	c := chain.New(f.genesis, f.b, nil)

	blocks := f.extend(t, c.Copy(), database.NewCoinbase(owner, 30))
	blk := blocks[1]

	if err := c.IsValidBlock(c.Head().Hash, blk); err != nil {
		t.Fatalf("Should accept a block that links to the head: %s", err)
	}

	if err := c.IsValidBlock(blk.Hash, blk); !errors.Is(err, chain.ErrNotLinked) {
		t.Fatalf("Should reject a block that does not link, got %v.", err)
	}

	bad := blk
	bad.Nonce++
	if err := c.IsValidBlock(c.Head().Hash, bad); !errors.Is(err, builder.ErrHashMismatch) {
		t.Fatalf("Should reject a block with a wrong hash, got %v.", err)
	}

	if err := c.AppendIfHead(blk); err != nil {
		t.Fatalf("Should append a block that follows the head: %s", err)
	}

	if err := c.AppendIfHead(blk); !errors.Is(err, chain.ErrNotLinked) {
		t.Fatalf("Should refuse a block built on a stale head, got %v.", err)
	}

	if c.Len() != 2 || c.Head().Hash != blk.Hash {
		t.Fatalf("Should have advanced the head.")
	}
}

func Test_RemoveUselessTransactions(t *testing.T) {
	f := newFixture(t)
	c := chain.New(f.genesis, f.b, nil)

	funding := database.NewCoinbase(owner, 50)
	spend := database.NewBasic(
		[]database.TxInput{{Transaction: &funding, OutputIndex: 0}},
		[]database.TxOutput{{Recipient: other, Value: 40}},
	)
	later := database.NewCoinbase(other, 30)

	blocks := f.extend(t, c.Copy(), funding, spend)
	c.SetNewBlock(blocks[1])

	pending := []database.Tx{spend, later}

	once := c.RemoveUselessTransactions(pending)
	twice := c.RemoveUselessTransactions(once)

	if len(once) != 1 || once[0].ID() != later.ID() {
		t.Fatalf("Should drop the transaction already in the chain, got %d.", len(once))
	}

	if len(twice) != len(once) {
		t.Fatalf("Should get the same result when applied twice.")
	}

	if !c.HasSpent(database.OutPoint{TxID: funding.ID(), Index: 0}) {
		t.Fatalf("Should see the funding output as spent.")
	}

	if c.HasSpent(database.OutPoint{TxID: spend.ID(), Index: 0}) {
		t.Fatalf("Should see the payment output as unspent.")
	}

	if !c.IsValidOutput(database.OutPoint{TxID: spend.ID(), Index: 0}) {
		t.Fatalf("Should find the payment output in the chain.")
	}

	if c.IsValidOutput(database.OutPoint{TxID: spend.ID(), Index: 5}) || c.IsValidOutput(database.OutPoint{TxID: later.ID()}) {
		t.Fatalf("Should not find outputs the chain never produced.")
	}
}

func Test_ResolveConflicts(t *testing.T) {
	f := newFixture(t)

	recovered := database.NewCoinbase(owner, 10)
	shared := database.NewCoinbase(other, 10)
	orphanOnly := database.NewBasic(
		[]database.TxInput{{Transaction: &recovered, OutputIndex: 0}},
		[]database.TxOutput{{Recipient: other, Value: 10}},
	)
	sharedSpend := database.NewBasic(
		[]database.TxInput{{Transaction: &shared, OutputIndex: 0}},
		[]database.TxOutput{{Recipient: owner, Value: 10}},
	)

	base := []database.Block{f.genesis}
	local := f.extend(t, base, database.NewCoinbase(owner, 30), orphanOnly, sharedSpend)

	longer := f.extend(t, base, database.NewCoinbase(other, 30), sharedSpend)
	longer = f.extend(t, longer, database.NewCoinbase(other, 30))

	equalInvalid := f.extend(t, base, database.NewCoinbase(other, 30))
	equalInvalid[1].PrevBlockHash = "0x1234"

	brokenLonger := append([]database.Block(nil), longer...)
	brokenLonger[2].Hash = "0x00"

	otherGenesis := append([]database.Block(nil), longer...)
	otherGenesis[0].Hash = "0xdead"

	type table struct {
		name    string
		cand    []database.Block
		adopted bool
		orphans int
		txs     int
	}

	tt := []table{
		{"longer-valid", longer, true, 1, 1},
		{"equal-invalid", equalInvalid, false, 0, 0},
		{"equal-valid", f.extend(t, base), false, 0, 0},
		{"shorter", base, false, 0, 0},
		{"broken-link", brokenLonger, false, 0, 0},
		{"other-genesis", otherGenesis, false, 0, 0},
		{"empty", nil, false, 0, 0},
	}

	t.Log("Given the need to resolve conflicting chains.")
	{
		for testID, test := range tt {
			tf := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s candidate.", testID, test.name)

				c := chain.New(f.genesis, f.b, nil)
				c.SetNewBlock(local[1])

				head, orphans := c.ResolveConflicts(test.cand)

				if !test.adopted {
					if head != "" || c.Head().Hash != local[1].Hash {
						t.Fatalf("\t%s\tTest %d:\tShould keep the local chain.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould keep the local chain.", success, testID)
					return
				}

				if head != test.cand[len(test.cand)-1].Hash || c.Len() != len(test.cand) {
					t.Fatalf("\t%s\tTest %d:\tShould adopt the candidate.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould adopt the candidate.", success, testID)

				if len(orphans) != test.orphans || orphans[0].Hash != local[1].Hash {
					t.Fatalf("\t%s\tTest %d:\tShould orphan %d local blocks, got %d.", failed, testID, test.orphans, len(orphans))
				}
				t.Logf("\t%s\tTest %d:\tShould orphan the local blocks.", success, testID)

				txs := c.TransactionsFromOrphanBlocks(orphans)
				if len(txs) != test.txs || txs[0].ID() != orphanOnly.ID() {
					t.Fatalf("\t%s\tTest %d:\tShould recover only the transaction missing from the adopted chain, got %d.", failed, testID, len(txs))
				}
				t.Logf("\t%s\tTest %d:\tShould recover the orphaned transaction.", success, testID)
			}

			t.Run(test.name, tf)
		}
	}
}
