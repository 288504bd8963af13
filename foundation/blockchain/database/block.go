package database

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
)

// BlockHeader is the part of a block covered by the hash. The transactions
// are committed through their merkle root.
type BlockHeader struct {
	Index         uint64 `json:"index"`
	TimeStamp     int64  `json:"timestamp"`
	PrevBlockHash string `json:"previous_block"`
	TransRoot     string `json:"trans_root"`
	Nonce         uint64 `json:"nonce"`
}

// Hash returns the unique hash for the header.
func (h BlockHeader) Hash() string {
	return signature.Hash(h)
}

// =============================================================================

// Block represents a group of transactions batched together. A block is
// never modified once it has been accepted into a chain.
type Block struct {
	Index         uint64 `json:"index"`
	TimeStamp     int64  `json:"timestamp"`
	PrevBlockHash string `json:"previous_block"`
	Transactions  []Tx   `json:"transactions"`
	Nonce         uint64 `json:"nonce"`
	Hash          string `json:"hash"`
}

// TransRoot returns the merkle root of the block's transactions.
func (b Block) TransRoot() (string, error) {
	tree, err := merkle.NewTree(b.Transactions)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// Header builds the header the block hash is computed over.
func (b Block) Header() (BlockHeader, error) {
	root, err := b.TransRoot()
	if err != nil {
		return BlockHeader{}, err
	}

	h := BlockHeader{
		Index:         b.Index,
		TimeStamp:     b.TimeStamp,
		PrevBlockHash: b.PrevBlockHash,
		TransRoot:     root,
		Nonce:         b.Nonce,
	}

	return h, nil
}

// CalculateHash recomputes the hash of the block from its contents.
func (b Block) CalculateHash() (string, error) {
	h, err := b.Header()
	if err != nil {
		return "", err
	}

	return h.Hash(), nil
}

// Proof returns the merkle inclusion proof for the transaction with the
// specified id, hex encoded, along with the transaction root.
func (b Block) Proof(txID string) (root string, proof []string, order []int64, err error) {
	for _, tx := range b.Transactions {
		if tx.ID() != txID {
			continue
		}

		tree, err := merkle.NewTree(b.Transactions)
		if err != nil {
			return "", nil, nil, err
		}

		hashes, order, err := tree.Proof(tx)
		if err != nil {
			return "", nil, nil, err
		}

		proof = make([]string, len(hashes))
		for i, h := range hashes {
			proof[i] = fmt.Sprintf("0x%x", h)
		}

		return tree.RootHex(), proof, order, nil
	}

	return "", nil, nil, merkle.ErrNotFound
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk[%d]:%s", b.Index, short(b.Hash))
}

// =============================================================================

// IsHashSolved checks the hash complies with the proof of work rule. The
// hex digits after the 0x prefix need difficulty leading zeros.
func IsHashSolved(difficulty uint16, hash string) bool {
	hash = strings.TrimPrefix(hash, "0x")

	if len(hash) != 64 || int(difficulty) > len(hash) {
		return false
	}

	for i := range int(difficulty) {
		if hash[i] != '0' {
			return false
		}
	}

	return true
}

func short(hash string) string {
	if len(hash) > 10 {
		return hash[:10]
	}

	return hash
}
