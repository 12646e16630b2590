// Package commitment implements the commitment core: per-item
// hashing, an incremental Merkle bridge-tree seeded with a fixed
// leaf, a packed B-bit projection stream, and a first-diff locator
// for online audit comparison.
//
// The bridge tree itself is golang.org/x/mod/sumdb/tlog: an overlay
// map of stored hashes feeds a HashReaderFunc; appending a leaf calls
// tlog.StoredHashes to get the new hashes to retain and tlog.TreeHash
// to get the new root, one item at a time.
package commitment

import (
	"fmt"

	"golang.org/x/mod/sumdb/tlog"

	"github.com/raster-lang/raster/internal/identity"
)

// Tree is an incremental Merkle bridge-tree. A freshly constructed
// Tree already contains record 0, the fixed seed leaf; AppendItem adds
// trace-item hashes on top of it.
type Tree struct {
	hashes map[int64]tlog.Hash
	n      int64
}

// NewTree constructs a Tree anchored on the fixed seed leaf.
func NewTree() *Tree {
	t := &Tree{hashes: make(map[int64]tlog.Hash)}
	if _, err := t.append(identity.Seed().Bytes()); err != nil {
		// The first append can only fail if tlog's own algorithm is
		// broken; a fresh, empty overlay can always resolve record 0.
		panic(fmt.Sprintf("commitment: seeding tree: %v", err))
	}
	return t
}

func (t *Tree) reader() tlog.HashReaderFunc {
	return func(indexes []int64) ([]tlog.Hash, error) {
		out := make([]tlog.Hash, len(indexes))
		for i, idx := range indexes {
			h, ok := t.hashes[idx]
			if !ok {
				return nil, fmt.Errorf("commitment: no stored hash at index %d (tree has %d records)", idx, t.n)
			}
			out[i] = h
		}
		return out, nil
	}
}

func (t *Tree) append(record []byte) (tlog.Hash, error) {
	newHashes, err := tlog.StoredHashes(t.n, record, t.reader())
	if err != nil {
		return tlog.Hash{}, fmt.Errorf("commitment: computing stored hashes for record %d: %w", t.n, err)
	}
	base := tlog.StoredHashIndex(0, t.n)
	for i, h := range newHashes {
		t.hashes[base+int64(i)] = h
	}
	t.n++
	root, err := tlog.TreeHash(t.n, t.reader())
	if err != nil {
		return tlog.Hash{}, fmt.Errorf("commitment: computing tree hash at size %d: %w", t.n, err)
	}
	return root, nil
}

// AppendItem appends one item's hash on top of the tree and returns
// the new root: roots[i] commits exactly to
// [SEED, item_hash_1, ..., item_hash_i].
func (t *Tree) AppendItem(itemHash identity.Hash) (identity.Hash, error) {
	root, err := t.append(itemHash.Bytes())
	if err != nil {
		return identity.Hash{}, err
	}
	var out identity.Hash
	copy(out[:], root[:])
	return out, nil
}

// Size returns the number of records committed so far, including the
// seed leaf (so Size() - 1 is the number of trace items committed).
func (t *Tree) Size() int64 { return t.n }

// Root returns the tree's current root without appending anything; on a
// freshly constructed Tree this is the seed leaf's own hash.
func (t *Tree) Root() (identity.Hash, error) {
	root, err := tlog.TreeHash(t.n, t.reader())
	if err != nil {
		return identity.Hash{}, fmt.Errorf("commitment: computing tree hash at size %d: %w", t.n, err)
	}
	var out identity.Hash
	copy(out[:], root[:])
	return out, nil
}
