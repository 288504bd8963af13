// Package database defines the ledger data model: the transaction envelope
// and its variants, and the blocks that batch them.
package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of error variables for transaction validation.
var (
	ErrMalformedTx  = errors.New("malformed transaction")
	ErrNegativeFee  = errors.New("outputs exceed inputs")
	ErrUnsignedTx   = errors.New("transaction is not signed")
	ErrInvalidOwner = errors.New("input is not owned by the signer")
	ErrOverflow     = errors.New("value overflows")
)

// TxType is the tag that identifies the variant of a transaction.
type TxType string

// Set of transaction variants the ledger understands. Any other tag is a
// foreign transaction that only gets a signature check.
const (
	TypeBasic    TxType = "basic"
	TypeCoinbase TxType = "coinbase_transaction"
	TypeEngraved TxType = "engraved"
)

// ValidAddress reports whether the string is a hex encoded address.
func ValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// SameAddress compares two addresses ignoring the checksum casing.
func SameAddress(a string, b string) bool {
	return strings.EqualFold(a, b)
}

// =============================================================================

// TxOutput assigns a value to a recipient.
type TxOutput struct {
	Recipient string `json:"recipient"`
	Value     uint64 `json:"value"`
}

// TxInput references an output slot of a prior transaction. The referenced
// transaction travels with the input.
type TxInput struct {
	Transaction *Tx `json:"transaction"`
	OutputIndex int `json:"output_index"`
}

// Output returns the output the input consumes.
func (in TxInput) Output() (TxOutput, error) {
	if in.Transaction == nil {
		return TxOutput{}, fmt.Errorf("%w: input without transaction", ErrMalformedTx)
	}

	if in.OutputIndex < 0 || in.OutputIndex >= len(in.Transaction.Outputs) {
		return TxOutput{}, fmt.Errorf("%w: output index %d out of range", ErrMalformedTx, in.OutputIndex)
	}

	return in.Transaction.Outputs[in.OutputIndex], nil
}

// OutPoint returns the identity of the output the input consumes.
func (in TxInput) OutPoint() OutPoint {
	if in.Transaction == nil {
		return OutPoint{Index: in.OutputIndex}
	}

	return OutPoint{TxID: in.Transaction.ID(), Index: in.OutputIndex}
}

// OutPoint identifies a single output of a transaction.
type OutPoint struct {
	TxID  string `json:"tx_id"`
	Index int    `json:"index"`
}

// String implements the fmt.Stringer interface for logging.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Index)
}

// =============================================================================

// Tx is the envelope shared by every transaction variant. Fields that do
// not belong to a variant stay empty and are omitted from the encoding.
type Tx struct {
	Inputs        []TxInput  `json:"inputs"`
	Outputs       []TxOutput `json:"outputs"`
	TimeStamp     int64      `json:"timestamp"`
	Type          TxType     `json:"t_type"`
	Signature     string     `json:"signature,omitempty"`
	Sender        string     `json:"sender,omitempty"`
	SenderAltName string     `json:"sender_alt_name,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// NewBasic constructs an unsigned value transfer.
func NewBasic(inputs []TxInput, outputs []TxOutput) Tx {
	return Tx{
		Inputs:    inputs,
		Outputs:   outputs,
		TimeStamp: time.Now().UTC().UnixNano(),
		Type:      TypeBasic,
	}
}

// NewCoinbase constructs the reward transaction for a block producer.
func NewCoinbase(recipient string, value uint64) Tx {
	return Tx{
		Inputs:    []TxInput{},
		Outputs:   []TxOutput{{Recipient: recipient, Value: value}},
		TimeStamp: time.Now().UTC().UnixNano(),
		Type:      TypeCoinbase,
	}
}

// NewEngraved constructs an unsigned message transaction. The sender is
// filled in when the transaction is signed.
func NewEngraved(altName string, message string) Tx {
	return Tx{
		Inputs:        []TxInput{},
		Outputs:       []TxOutput{},
		TimeStamp:     time.Now().UTC().UnixNano(),
		Type:          TypeEngraved,
		SenderAltName: altName,
		Message:       message,
	}
}

// ID returns the identity of the transaction, a hash over the complete
// encoding including the signature.
func (tx Tx) ID() string {
	return signature.Hash(tx)
}

// Hash implements the merkle Hashable interface.
func (tx Tx) Hash() ([]byte, error) {
	return hexutil.Decode(tx.ID())
}

// Equals implements the merkle Hashable interface. Two transactions are the
// same when their identities match.
func (tx Tx) Equals(other Tx) bool {
	return tx.ID() == other.ID()
}

// Sign signs the transaction with the private key. Engraved transactions
// record the signer as the sender.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	if tx.Type == TypeEngraved {
		tx.Sender = signature.PublicKeyToAddress(privateKey.PublicKey)
	}

	tx.Signature = ""
	sig, err := signature.Sign(tx, privateKey)
	if err != nil {
		return Tx{}, err
	}

	tx.Signature = sig
	return tx, nil
}

// Signer recovers the address that signed the transaction.
func (tx Tx) Signer() (string, error) {
	if tx.Signature == "" {
		return "", ErrUnsignedTx
	}

	return signature.FromAddress(tx, tx.Signature)
}

// InputValue sums the values of the outputs the inputs consume.
func (tx Tx) InputValue() (uint64, error) {
	var total uint64
	for _, in := range tx.Inputs {
		out, err := in.Output()
		if err != nil {
			return 0, err
		}
		if total, err = AddValues(total, out.Value); err != nil {
			return 0, fmt.Errorf("inputs: %w", err)
		}
	}

	return total, nil
}

// OutputValue sums the values of the outputs.
func (tx Tx) OutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		var err error
		if total, err = AddValues(total, out.Value); err != nil {
			return 0, fmt.Errorf("outputs: %w", err)
		}
	}

	return total, nil
}

// AddValues adds two values, failing when the sum does not fit.
func AddValues(a uint64, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}

	return sum, nil
}

// Fee returns what is left for the block producer after the outputs are
// paid. Only basic transactions carry a fee.
func (tx Tx) Fee() (uint64, error) {
	if tx.Type != TypeBasic {
		return 0, nil
	}

	in, err := tx.InputValue()
	if err != nil {
		return 0, err
	}

	out, err := tx.OutputValue()
	if err != nil {
		return 0, err
	}
	if out > in {
		return 0, fmt.Errorf("%w: inputs %d, outputs %d", ErrNegativeFee, in, out)
	}

	return in - out, nil
}

// Validate checks the shape of the transaction for its variant. Foreign
// variants are not checked here.
func (tx Tx) Validate() error {
	switch tx.Type {
	case TypeBasic:
		if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
			return fmt.Errorf("%w: basic transaction needs inputs and outputs", ErrMalformedTx)
		}
		for _, in := range tx.Inputs {
			if _, err := in.Output(); err != nil {
				return err
			}
		}
		for _, out := range tx.Outputs {
			if !ValidAddress(out.Recipient) {
				return fmt.Errorf("%w: invalid recipient %q", ErrMalformedTx, out.Recipient)
			}
		}
		if _, err := tx.Fee(); err != nil {
			return err
		}

	case TypeCoinbase:
		if len(tx.Inputs) != 0 || len(tx.Outputs) != 1 {
			return fmt.Errorf("%w: coinbase needs no inputs and one output", ErrMalformedTx)
		}
		if !ValidAddress(tx.Outputs[0].Recipient) {
			return fmt.Errorf("%w: invalid recipient %q", ErrMalformedTx, tx.Outputs[0].Recipient)
		}

	case TypeEngraved:
		if len(tx.Inputs) != 0 || len(tx.Outputs) != 0 {
			return fmt.Errorf("%w: engraved transaction carries no value", ErrMalformedTx)
		}
		if !ValidAddress(tx.Sender) {
			return fmt.Errorf("%w: invalid sender %q", ErrMalformedTx, tx.Sender)
		}
	}

	return nil
}

// VerifySignature checks the transaction is signed and, for variants that
// claim ownership, that the signer owns what it claims. Every input of a
// basic transaction must consume an output addressed to the signer and an
// engraved transaction must be signed by its sender.
func (tx Tx) VerifySignature() error {
	if err := signature.VerifySignature(tx.Signature); err != nil {
		return err
	}

	signer, err := tx.Signer()
	if err != nil {
		return err
	}

	switch tx.Type {
	case TypeBasic:
		for _, in := range tx.Inputs {
			out, err := in.Output()
			if err != nil {
				return err
			}
			if !SameAddress(out.Recipient, signer) {
				return fmt.Errorf("%w: %s owned by %s, signed by %s", ErrInvalidOwner, in.OutPoint(), out.Recipient, signer)
			}
		}

	case TypeEngraved:
		if !SameAddress(tx.Sender, signer) {
			return fmt.Errorf("%w: sender %s, signed by %s", ErrInvalidOwner, tx.Sender, signer)
		}
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	id := tx.ID()
	if len(id) > 10 {
		id = id[:10]
	}

	return fmt.Sprintf("%s:%s", tx.Type, id)
}
