// Package identity computes the SHA-256 domain hash used both for
// trace-item digests and for deriving a guest image's content
// identity, plus the fixed seed leaf the commitment tree is anchored
// on.
package identity

import "crypto/sha256"

// Size is the byte length of every hash produced here.
const Size = sha256.Size

// DST is the domain-separation tag mixed into the commitment tree's
// seed leaf.
const DST = "raster.commitment.v1"

// Hash is a 32-byte SHA-256 domain hash.
type Hash [Size]byte

// H hashes the concatenation of b under the SHA-256 domain.
func H(b []byte) Hash {
	return sha256.Sum256(b)
}

// HashLeaves hashes the concatenation of multiple byte strings without
// an intermediate allocation for the join.
func HashLeaves(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Seed is the fixed anchor leaf for the commitment tree: H(DST || 0x00).
func Seed() Hash {
	return HashLeaves([]byte(DST), []byte{0x00})
}

// ImageID derives a 32-byte content identity from guest image bytes.
// Equal images produce equal identities; unequal images produce
// unequal identities with overwhelming probability.
func ImageID(image []byte) Hash {
	return H(image)
}

// Bytes returns the hash as a plain byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}
