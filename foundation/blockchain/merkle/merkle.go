// Package merkle provides an implementation of a merkle tree over transaction
// ids for validation support for the blockchain.
package merkle

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powchain/foundation/blockchain/codec"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Set of error variables for the merkle tree.
var (
	ErrNoLeaves    = errors.New("cannot construct proof with no leaves")
	ErrOutOfBounds = errors.New("leaf index out of bounds")
)

// =============================================================================

// Tree represents a merkle tree over an ordered list of ids. Levels are kept
// in internal byte order, level 0 being the leaves. Odd levels are not padded
// in storage, the last node is paired with itself when the next level is built.
type Tree struct {
	levels [][]chainhash.Hash
}

// NewTree constructs a tree from display form ids.
func NewTree(ids []string) (*Tree, error) {
	leaves := make([]chainhash.Hash, len(ids))
	for i, id := range ids {
		h, err := codec.HashFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("leaf[%d]: %w", i, err)
		}
		leaves[i] = h
	}

	t := Tree{
		levels: [][]chainhash.Hash{leaves},
	}

	for level := leaves; len(level) > 1; {
		next := make([]chainhash.Hash, (len(level)+1)/2)
		for i := range next {
			left := level[2*i]
			right := left
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = hashPair(left, right)
		}
		t.levels = append(t.levels, next)
		level = next
	}

	return &t, nil
}

// Root returns the display form of the merkle root. An empty tree has the
// zero hash as its root and a single leaf is its own root.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return signature.ZeroHash
	}
	return codec.HashToHex(top[0])
}

// Proof returns the sibling hashes on the path from the leaf at index to the
// root, in display form, ordered from the leaf level upward. The last node of
// an odd level is its own sibling.
func (t *Tree) Proof(index int) ([]string, error) {
	if len(t.levels[0]) == 0 {
		return nil, ErrNoLeaves
	}
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("%w: index %d, leaves %d", ErrOutOfBounds, index, len(t.levels[0]))
	}

	path := make([]string, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		path = append(path, codec.HashToHex(level[sibling]))
		index /= 2
	}

	return path, nil
}

// =============================================================================

// ComputeRoot returns the merkle root for the ordered list of ids.
func ComputeRoot(ids []string) (string, error) {
	t, err := NewTree(ids)
	if err != nil {
		return "", err
	}
	return t.Root(), nil
}

// InclusionPath returns the proof for the id at index.
func InclusionPath(ids []string, index int) ([]string, error) {
	t, err := NewTree(ids)
	if err != nil {
		return nil, err
	}
	return t.Proof(index)
}

// VerifyInclusion folds the path into a running hash starting at leaf. Bit i
// of index selects whether the running hash is the right operand at step i.
//
// A right child equal to its left sibling is treated as the padding copy of
// the last node of an odd level and rejected, since it does not correspond to
// a real leaf. The same rule rejects a valid proof for a right hand leaf
// whose subtree repeats its left sibling, as with ids [x, x] at index 1 or
// [x, y, x, y] at index 2 or 3. Block transaction ids never repeat because a
// repeated transaction spends the same outputs twice.
func VerifyInclusion(leaf string, root string, path []string, index int) bool {
	if index < 0 || (len(path) < 63 && index>>len(path) != 0) {
		return false
	}

	cur, err := codec.HashFromHex(leaf)
	if err != nil {
		return false
	}

	want, err := codec.HashFromHex(root)
	if err != nil {
		return false
	}

	for i, p := range path {
		sibling, err := codec.HashFromHex(p)
		if err != nil {
			return false
		}

		if (index>>i)&1 == 1 {
			if sibling == cur {
				return false
			}
			cur = hashPair(sibling, cur)
			continue
		}

		cur = hashPair(cur, sibling)
	}

	return cur == want
}

// hashPair double hashes the concatenation of two nodes.
func hashPair(left, right chainhash.Hash) chainhash.Hash {
	var buf [2 * chainhash.HashSize]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return signature.DoubleHash(buf[:])
}
