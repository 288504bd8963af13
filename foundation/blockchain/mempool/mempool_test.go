package mempool_test

import (
	"testing"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/mempool"
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

func spend(funding database.Tx, value uint64) database.Tx {
	return database.NewBasic(
		[]database.TxInput{{Transaction: &funding, OutputIndex: 0}},
		[]database.TxOutput{{Recipient: other, Value: value}},
	)
}

func TestCRUD(t *testing.T) {
	f1 := database.NewCoinbase(owner, 50)
	f2 := database.NewCoinbase(owner, 20)
	f3 := database.NewCoinbase(owner, 10)

	txs := []database.Tx{spend(f1, 45), spend(f2, 18), spend(f3, 10)}

	t.Log("Given the need to validate mempool api.")
	{
		t.Logf("\tTest 0:\tWhen handling a set of transactions.")
		{
			mp := mempool.New()

			for _, tx := range txs {
				if !mp.Add(tx) {
					t.Fatalf("\t%s\tTest 0:\tShould be able to add transaction %s.", failed, tx)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to add transactions.", success)

			if mp.Add(txs[1]) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a duplicate transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a duplicate transaction.", success)

			got := mp.Copy()
			for i := range txs {
				if got[i].ID() != txs[i].ID() {
					t.Fatalf("\t%s\tTest 0:\tShould keep insertion order at %d.", failed, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould keep insertion order.", success)

			if fee := mp.TotalFee(); fee != 7 {
				t.Fatalf("\t%s\tTest 0:\tShould get a total fee of 7, got %d.", failed, fee)
			}
			t.Logf("\t%s\tTest 0:\tShould sum the fees.", success)

			op := database.OutPoint{TxID: f2.ID(), Index: 0}
			if !mp.HasOutput(op) {
				t.Fatalf("\t%s\tTest 0:\tShould see the output consumed by the pool.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould see the output consumed by the pool.", success)

			mp.ClearN(2)
			if mp.Count() != 1 || mp.Copy()[0].ID() != txs[2].ID() {
				t.Fatalf("\t%s\tTest 0:\tShould drop the consumed prefix.", failed)
			}
			if mp.HasOutput(op) || mp.Contains(txs[0].ID()) {
				t.Fatalf("\t%s\tTest 0:\tShould forget the dropped transactions.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould drop the consumed prefix.", success)

			mp.ClearN(10)
			if mp.Count() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould tolerate clearing more than the pool holds.", failed)
			}

			mp.Renew([]database.Tx{txs[0], txs[0], txs[1]})
			if mp.Count() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould renew without duplicates, got %d.", failed, mp.Count())
			}
			t.Logf("\t%s\tTest 0:\tShould renew the pool.", success)
		}
	}
}
