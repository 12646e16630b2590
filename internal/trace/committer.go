package trace

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/raster-lang/raster/internal/commitment"
)

// Committer computes a running commitment over the trace stream and
// writes the packed bits of each new root to w in little-endian u64
// blocks, flushing the final partial block on OnComplete.
type Committer struct {
	w      io.Writer
	tree   *commitment.Tree
	packer *commitment.Packer
	b      uint
}

// NewCommitter constructs a Committer with the given bits-per-item
// projection width (B=16 is the usual width for fast audit).
func NewCommitter(w io.Writer, bitsPerItem uint) (*Committer, error) {
	packer, err := commitment.NewPacker(bitsPerItem)
	if err != nil {
		return nil, err
	}
	return &Committer{
		w:      w,
		tree:   commitment.NewTree(),
		packer: packer,
		b:      bitsPerItem,
	}, nil
}

func (c *Committer) OnTrace(item commitment.TraceItem) error {
	root, err := c.tree.AppendItem(commitment.ItemHash(item))
	if err != nil {
		return fmt.Errorf("trace: committing item %q: %w", item.FnName, err)
	}
	for _, block := range c.packer.Add(root) {
		if err := writeBlock(c.w, block); err != nil {
			return err
		}
	}
	return nil
}

func (c *Committer) OnComplete() error {
	if block, ok := c.packer.Flush(); ok {
		return writeBlock(c.w, block)
	}
	return nil
}

func writeBlock(w io.Writer, block uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], block)
	_, err := w.Write(buf[:])
	return err
}
