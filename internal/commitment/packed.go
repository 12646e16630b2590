package commitment

import (
	"encoding/binary"
	"fmt"

	"github.com/raster-lang/raster/internal/identity"
)

// Packer projects commitment roots down to their lowest B bits
// (little-endian bit order) and packs consecutive cropped values into
// little-endian u64 blocks, emitting each block as it fills.
// B must be a positive integer <= 64, fixed for the run.
type Packer struct {
	b        uint
	buf      uint64
	bitCount uint
}

// NewPacker constructs a Packer with the given bits-per-item width.
func NewPacker(b uint) (*Packer, error) {
	if b == 0 || b > 64 {
		return nil, fmt.Errorf("commitment: bits-per-item must be in [1,64], got %d", b)
	}
	return &Packer{b: b}, nil
}

// Add crops root to its lowest B bits and appends them to the bit
// buffer, returning zero or more newly-completed u64 blocks in order.
func (p *Packer) Add(root identity.Hash) []uint64 {
	value := lowBits(root, p.b)
	var completed []uint64
	remaining := p.b
	shift := uint(0)
	for remaining > 0 {
		free := 64 - p.bitCount
		take := remaining
		if take > free {
			take = free
		}
		var mask uint64
		if take == 64 {
			mask = ^uint64(0)
		} else {
			mask = (uint64(1) << take) - 1
		}
		chunk := (value >> shift) & mask
		p.buf |= chunk << p.bitCount
		p.bitCount += take
		shift += take
		remaining -= take
		if p.bitCount == 64 {
			completed = append(completed, p.buf)
			p.buf = 0
			p.bitCount = 0
		}
	}
	return completed
}

// Flush returns the final, possibly partial, right-padded-with-zeros
// block, if any bits are pending. Called once on on_complete.
func (p *Packer) Flush() (block uint64, ok bool) {
	if p.bitCount == 0 {
		return 0, false
	}
	return p.buf, true
}

// lowBits treats root as a little-endian-encoded integer and returns
// its lowest b bits (b <= 64), so only the first 8 bytes matter.
func lowBits(root identity.Hash, b uint) uint64 {
	var first8 [8]byte
	copy(first8[:], root[:8])
	v := binary.LittleEndian.Uint64(first8[:])
	if b == 64 {
		return v
	}
	return v & ((uint64(1) << b) - 1)
}

// ItemsPerBlock returns how many B-bit projections pack into one u64
// block, assuming B divides 64 evenly (true for the usual deployment
// widths, 16 and 64).
func ItemsPerBlock(b uint) int {
	if b == 0 {
		return 0
	}
	return 64 / int(b)
}

// FirstDiff compares two equal-length packed streams and returns the
// lowest index at which they differ, plus the 1-based item index of
// the first trace item covered by that block (root_1 is the first
// item's root). ok is false if the streams are identical.
func FirstDiff(expected, got []uint64, b uint) (slot int, itemIndex int, ok bool) {
	n := len(expected)
	if len(got) < n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		if expected[i] != got[i] {
			perBlock := ItemsPerBlock(b)
			return i, i*perBlock + 1, true
		}
	}
	return 0, 0, false
}
