// Package merkle builds binary Merkle trees over sorted dighash.Hash leaves
// and produces/verifies inclusion proofs (spec §3, §4.3).
//
// The level-by-level layer construction follows the shape of
// ssz.Merkleize (pkg/ssz/merkle.go in the reference pack): build leaf
// hashes, then repeatedly halve the layer by hashing adjacent pairs until
// one root remains. Unlike SSZ, which pads to a power of two with zero
// chunks, digstore duplicates the last node of an odd-length level — the
// convention named in spec §3 — so no synthetic zero leaf ever appears in
// a proof.
package merkle

import (
	"crypto/sha256"

	"golang.org/x/sync/errgroup"

	"github.com/DIG-Network/digstore-sub002/pkg/dighash"
)

// parallelThreshold is the number of pairs in a level at or above which
// computing the next level is split across an errgroup (spec §5: "parallelism is used
// inside ... Merkle tree construction above a size threshold").
const parallelThreshold = 4096

// Tree is an immutable binary Merkle tree over a sorted leaf set.
type Tree struct {
	levels [][]dighash.Hash // levels[0] = leaves, levels[len-1] = [root]
}

// Root is the tree's single root hash. BuildTree on a nil/empty leaf set
// returns a Tree whose Root is the zero hash.
func (t *Tree) Root() dighash.Hash {
	if t == nil || len(t.levels) == 0 {
		return dighash.Zero
	}
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return dighash.Zero
	}
	return top[0]
}

// Leaves returns the tree's leaf hashes in their sorted order.
func (t *Tree) Leaves() []dighash.Hash {
	if t == nil || len(t.levels) == 0 {
		return nil
	}
	return t.levels[0]
}

func hashPair(a, b dighash.Hash) dighash.Hash {
	var buf [2 * dighash.Size]byte
	copy(buf[:dighash.Size], a[:])
	copy(buf[dighash.Size:], b[:])
	return sha256.Sum256(buf[:])
}

// BuildTree sorts leaves and builds a Merkle tree over them. The input
// slice is not mutated; BuildTree copies before sorting.
func BuildTree(leaves []dighash.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}

	sorted := make([]dighash.Hash, len(leaves))
	copy(sorted, leaves)
	dighash.Sort(sorted)

	levels := [][]dighash.Hash{sorted}
	cur := sorted
	for len(cur) > 1 {
		next := nextLevel(cur)
		levels = append(levels, next)
		cur = next
	}
	return &Tree{levels: levels}
}

func nextLevel(cur []dighash.Hash) []dighash.Hash {
	pairs := (len(cur) + 1) / 2
	next := make([]dighash.Hash, pairs)

	compute := func(i int) {
		left := cur[2*i]
		right := left
		if 2*i+1 < len(cur) {
			right = cur[2*i+1]
		}
		next[i] = hashPair(left, right)
	}

	if pairs < parallelThreshold {
		for i := 0; i < pairs; i++ {
			compute(i)
		}
		return next
	}

	g := new(errgroup.Group)
	workers := 8
	chunk := (pairs + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if start >= pairs {
			break
		}
		if end > pairs {
			end = pairs
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				compute(i)
			}
			return nil
		})
	}
	_ = g.Wait() // compute never errors
	return next
}

// ProofStep is one sibling hash on the path from a leaf to the root.
type ProofStep struct {
	Sibling dighash.Hash
	Right   bool // true if Sibling sits to the right of the running hash
}

// Proof is an ordered list of sibling hashes, leaf-to-root.
type Proof []ProofStep

// Prove returns the inclusion proof for the leaf at index idx in the
// tree's sorted leaf order, along with that leaf's hash.
func (t *Tree) Prove(idx int) (dighash.Hash, Proof, bool) {
	if t == nil || len(t.levels) == 0 || idx < 0 || idx >= len(t.levels[0]) {
		return dighash.Hash{}, nil, false
	}

	leaf := t.levels[0][idx]
	var proof Proof
	pos := idx
	for level := 0; level < len(t.levels)-1; level++ {
		cur := t.levels[level]
		var sibling dighash.Hash
		var right bool
		if pos%2 == 0 {
			if pos+1 < len(cur) {
				sibling = cur[pos+1]
			} else {
				sibling = cur[pos] // duplicated-odd-node convention
			}
			right = true
		} else {
			sibling = cur[pos-1]
			right = false
		}
		proof = append(proof, ProofStep{Sibling: sibling, Right: right})
		pos /= 2
	}
	return leaf, proof, true
}

// VerifyProof reconstructs the root from leaf and proof and reports
// whether it matches root.
func VerifyProof(leaf dighash.Hash, proof Proof, root dighash.Hash) bool {
	cur := leaf
	for _, step := range proof {
		if step.Right {
			cur = hashPair(cur, step.Sibling)
		} else {
			cur = hashPair(step.Sibling, cur)
		}
	}
	return cur == root
}

// IndexOf returns the position of leaf in the tree's sorted leaf order, or
// false if leaf is not present.
func (t *Tree) IndexOf(leaf dighash.Hash) (int, bool) {
	if t == nil || len(t.levels) == 0 {
		return 0, false
	}
	leaves := t.levels[0]
	lo, hi := 0, len(leaves)
	for lo < hi {
		mid := (lo + hi) / 2
		if leaves[mid].Less(leaf) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(leaves) && leaves[lo] == leaf {
		return lo, true
	}
	return 0, false
}
