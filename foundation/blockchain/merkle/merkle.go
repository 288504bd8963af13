// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkel tree used to commit
// a block header to the transactions the block carries.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNotFound is returned when a proof is requested for data not in the tree.
var ErrNotFound = errors.New("unable to find data in tree")

// zeroRoot is the root of a tree with no values.
var zeroRoot = make([]byte, sha256.Size)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	Root       *Node[T]
	Leafs      []*Node[T]
	MerkleRoot []byte
}

// NewTree constructs a new merkle tree. A tree constructed with no values has
// a root of all zeros.
func NewTree[T Hashable[T]](values []T) (*Tree[T], error) {
	var t Tree[T]
	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. If the tree has been generated previously, the tree is re-generated
// from scratch.
func (t *Tree[T]) Generate(values []T) error {
	t.Root = nil
	t.Leafs = nil
	t.MerkleRoot = zeroRoot

	if len(values) == 0 {
		return nil
	}

	leafs := make([]*Node[T], 0, len(values)+1)
	for _, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}

		leafs = append(leafs, &Node[T]{
			Hash:  hash,
			Value: value,
			leaf:  true,
		})
	}

	if len(leafs)%2 == 1 {
		last := leafs[len(leafs)-1]
		leafs = append(leafs, &Node[T]{
			Hash:  last.Hash,
			Value: last.Value,
			leaf:  true,
			dup:   true,
		})
	}

	t.Root = buildIntermediate(leafs)
	t.Leafs = leafs
	t.MerkleRoot = t.Root.Hash

	return nil
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving the data is in the tree. An order of 0 means the proof
// hash comes first, 1 means it comes second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		var proof [][]byte
		var order []int64

		for parent := node.Parent; parent != nil; parent = parent.Parent {
			if parent.Left == node {
				proof = append(proof, parent.Right.Hash)
				order = append(order, 1)
			} else {
				proof = append(proof, parent.Left.Hash)
				order = append(order, 0)
			}
			node = parent
		}

		return proof, order, nil
	}

	return nil, nil, ErrNotFound
}

// Verify recalculates the hashes at each level of the tree and checks the
// result matches the stored root.
func (t *Tree[T]) Verify() error {
	if t.Root == nil {
		return nil
	}

	root, err := t.Root.verify()
	if err != nil {
		return err
	}

	if !bytes.Equal(t.MerkleRoot, root) {
		return errors.New("root hash invalid")
	}

	return nil
}

// Values returns the values stored in the tree without the padding leaf.
func (t *Tree[T]) Values() []T {
	values := make([]T, 0, len(t.Leafs))
	for _, node := range t.Leafs {
		if node.dup {
			continue
		}
		values = append(values, node.Value)
	}

	return values
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// =============================================================================

// VerifyProof folds a data hash through a proof produced by Tree.Proof and
// reports whether the result matches the expected root.
func VerifyProof(dataHash []byte, proof [][]byte, order []int64, root []byte) bool {
	if len(proof) != len(order) {
		return false
	}

	h := dataHash
	for i, p := range proof {
		var sum [sha256.Size]byte
		switch order[i] {
		case 0:
			sum = sha256.Sum256(append(append([]byte{}, p...), h...))
		default:
			sum = sha256.Sum256(append(append([]byte{}, h...), p...))
		}
		h = sum[:]
	}

	return bytes.Equal(h, root)
}

// =============================================================================

// Node represents a node, root, or leaf in the tree.
type Node[T Hashable[T]] struct {
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   []byte
	Value  T
	leaf   bool
	dup    bool
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node[T]) verify() ([]byte, error) {
	if n.leaf {
		return n.Value.Hash()
	}

	left, err := n.Left.verify()
	if err != nil {
		return nil, err
	}

	right, err := n.Right.verify()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(append(left, right...))
	return sum[:], nil
}

// buildIntermediate constructs the intermediate and root levels of the tree
// for a given list of nodes and returns the root.
func buildIntermediate[T Hashable[T]](nl []*Node[T]) *Node[T] {
	if len(nl) == 1 {
		return nl[0]
	}

	nodes := make([]*Node[T], 0, (len(nl)+1)/2)
	for i := 0; i < len(nl); i += 2 {
		left, right := nl[i], nl[i]
		if i+1 < len(nl) {
			right = nl[i+1]
		}

		sum := sha256.Sum256(append(append([]byte{}, left.Hash...), right.Hash...))
		n := Node[T]{
			Left:  left,
			Right: right,
			Hash:  sum[:],
		}

		left.Parent = &n
		if right != left {
			right.Parent = &n
		}
		nodes = append(nodes, &n)
	}

	return buildIntermediate(nodes)
}
