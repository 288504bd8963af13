package public

import (
	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/state"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/utxo"
)

type status struct {
	state.Status
	BeneficiaryName string `json:"beneficiary_name"`
}

type peers struct {
	Cores []peer.Peer `json:"cores"`
	Edges []peer.Edge `json:"edges"`
}

type pendingTx struct {
	ID   string      `json:"id"`
	Kind string      `json:"kind"`
	Fee  uint64      `json:"fee"`
	Tx   database.Tx `json:"tx"`
}

type utxoAddress struct {
	Address string `json:"address" validate:"required,address"`
}

type balance struct {
	Address string      `json:"address"`
	Name    string      `json:"name"`
	Balance uint64      `json:"balance"`
	UTXOs   []utxo.UTXO `json:"utxos"`
}

type submitted struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}
