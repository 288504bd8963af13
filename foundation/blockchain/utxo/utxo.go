// Package utxo derives the spendable outputs of an address from a list of
// transactions and builds payments out of them.
package utxo

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
)

// ErrInsufficientFunds is returned when the outputs of an address cannot
// cover a payment.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Kind is the ledger classification of a transaction.
type Kind int

// Set of classifications. Unknown transactions take no part in the ledger
// and only get a signature check.
const (
	KindUnknown Kind = iota
	KindBasic
	KindCoinbase
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindBasic:
		return "basic"
	case KindCoinbase:
		return "coinbase"
	}
	return "unknown"
}

// Classify returns the ledger classification of the transaction's tag.
func Classify(tx database.Tx) Kind {
	switch tx.Type {
	case database.TypeBasic:
		return KindBasic
	case database.TypeCoinbase:
		return KindCoinbase
	}
	return KindUnknown
}

// =============================================================================

// UTXO is an output of a transaction that has not been consumed.
type UTXO struct {
	Tx    database.Tx `json:"transaction"`
	Index int         `json:"output_index"`
}

// Output returns the output the UTXO refers to.
func (u UTXO) Output() database.TxOutput {
	return u.Tx.Outputs[u.Index]
}

// OutPoint returns the identity of the output.
func (u UTXO) OutPoint() database.OutPoint {
	return database.OutPoint{TxID: u.Tx.ID(), Index: u.Index}
}

// Input returns the transaction input that consumes the output.
func (u UTXO) Input() database.TxInput {
	tx := u.Tx
	return database.TxInput{Transaction: &tx, OutputIndex: u.Index}
}

// Extract scans the transactions in two passes. The first collects every
// output addressed to the address, the second collects every input that
// consumes such an output. Outputs consumed by a known input are dropped.
func Extract(address string, txs []database.Tx) []UTXO {
	var candidates []UTXO
	seen := make(map[database.OutPoint]bool)

	for _, tx := range txs {
		if Classify(tx) == KindUnknown {
			continue
		}
		for i, out := range tx.Outputs {
			if !database.SameAddress(out.Recipient, address) {
				continue
			}
			u := UTXO{Tx: tx, Index: i}
			op := u.OutPoint()
			if seen[op] {
				continue
			}
			seen[op] = true
			candidates = append(candidates, u)
		}
	}

	spent := make(map[database.OutPoint]bool)
	for _, tx := range txs {
		if Classify(tx) != KindBasic {
			continue
		}
		for _, in := range tx.Inputs {
			out, err := in.Output()
			if err != nil || !database.SameAddress(out.Recipient, address) {
				continue
			}
			spent[in.OutPoint()] = true
		}
	}

	utxos := make([]UTXO, 0, len(candidates))
	for _, u := range candidates {
		if !spent[u.OutPoint()] {
			utxos = append(utxos, u)
		}
	}

	return utxos
}

// =============================================================================

// Manager tracks the UTXO set and balance of a single address.
type Manager struct {
	mu      sync.RWMutex
	address string
	utxos   []UTXO
	balance uint64
}

// New constructs a manager for the address with an empty set.
func New(address string) *Manager {
	return &Manager{
		address: address,
	}
}

// Address returns the address the manager tracks.
func (m *Manager) Address() string {
	return m.address
}

// Refresh rebuilds the set from the transactions.
func (m *Manager) Refresh(txs []database.Tx) {
	utxos := Extract(m.address, txs)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.utxos = utxos
	m.computeBalance()
}

// Put adds an output to the set. Outputs addressed to someone else and
// outputs already present are ignored.
func (m *Manager) Put(u UTXO) {
	if u.Index < 0 || u.Index >= len(u.Tx.Outputs) || !database.SameAddress(u.Output().Recipient, m.address) {
		return
	}

	op := u.OutPoint()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, have := range m.utxos {
		if have.OutPoint() == op {
			return
		}
	}

	m.utxos = append(m.utxos, u)
	m.computeBalance()
}

// Remove drops an output from the set.
func (m *Manager) Remove(op database.OutPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, u := range m.utxos {
		if u.OutPoint() == op {
			m.utxos = append(m.utxos[:i:i], m.utxos[i+1:]...)
			break
		}
	}

	m.computeBalance()
}

// UTXOs returns a copy of the set.
func (m *Manager) UTXOs() []UTXO {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]UTXO(nil), m.utxos...)
}

// Balance returns the sum of the values in the set.
func (m *Manager) Balance() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.balance
}

// Pay builds and signs a transaction sending value to the recipient and
// leaving fee for the block producer. Outputs are selected in order until
// they cover both, the remainder comes back as a change output. The
// consumed outputs leave the set and the change enters it.
func (m *Manager) Pay(privateKey *ecdsa.PrivateKey, recipient string, value uint64, fee uint64) (database.Tx, error) {
	need, err := database.AddValues(value, fee)
	if err != nil {
		return database.Tx{}, err
	}

	m.mu.RLock()
	var inputs []database.TxInput
	var total uint64
	for _, u := range m.utxos {
		if total >= need {
			break
		}
		if total, err = database.AddValues(total, u.Output().Value); err != nil {
			break
		}
		inputs = append(inputs, u.Input())
	}
	m.mu.RUnlock()

	if err != nil {
		return database.Tx{}, err
	}

	if total < need {
		return database.Tx{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, need, total)
	}

	outputs := []database.TxOutput{{Recipient: recipient, Value: value}}
	if change := total - need; change > 0 {
		outputs = append(outputs, database.TxOutput{Recipient: m.address, Value: change})
	}

	tx, err := database.NewBasic(inputs, outputs).Sign(privateKey)
	if err != nil {
		return database.Tx{}, err
	}

	for _, in := range inputs {
		m.Remove(in.OutPoint())
	}
	if len(outputs) == 2 {
		m.Put(UTXO{Tx: tx, Index: 1})
	}

	return tx, nil
}

func (m *Manager) computeBalance() {
	var balance uint64
	for _, u := range m.utxos {
		balance += u.Output().Value
	}
	m.balance = balance
}
