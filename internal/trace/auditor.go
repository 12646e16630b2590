package trace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/raster-lang/raster/internal/commitment"
	"github.com/raster-lang/raster/internal/rasterrors"
)

// Auditor compares a live run's commitment stream against a
// previously recorded expected packed stream, online: it never
// buffers, and halts at the first divergent packed value.
type Auditor struct {
	expected io.Reader
	tree     *commitment.Tree
	packer   *commitment.Packer
	slot     int
	lastItem string
	done     bool
}

// NewAuditor constructs an Auditor reading the expected packed stream
// from expected, with the same bits-per-item width used to record it.
func NewAuditor(expected io.Reader, bitsPerItem uint) (*Auditor, error) {
	packer, err := commitment.NewPacker(bitsPerItem)
	if err != nil {
		return nil, err
	}
	return &Auditor{
		expected: expected,
		tree:     commitment.NewTree(),
		packer:   packer,
	}, nil
}

func (a *Auditor) OnTrace(item commitment.TraceItem) error {
	if a.done {
		return nil
	}
	root, err := a.tree.AppendItem(commitment.ItemHash(item))
	if err != nil {
		return fmt.Errorf("trace: auditing item %q: %w", item.FnName, err)
	}
	a.lastItem = item.FnName
	for _, computed := range a.packer.Add(root) {
		if err := a.compareBlock(computed); err != nil {
			a.done = true
			return err
		}
		a.slot++
	}
	return nil
}

func (a *Auditor) OnComplete() error {
	if a.done {
		return nil
	}
	if block, ok := a.packer.Flush(); ok {
		if err := a.compareBlock(block); err != nil {
			return err
		}
		a.slot++
	}
	// The expected stream must be fully consumed now; any remaining
	// bytes mean the run completed before the expected stream did.
	var probe [1]byte
	n, err := a.expected.Read(probe[:])
	if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
		return rasterrors.Wrap(rasterrors.AuditLength, "run completed before expected stream was consumed",
			&rasterrors.AuditLengthError{Expected: -1, Got: a.slot})
	}
	return nil
}

func (a *Auditor) compareBlock(computed uint64) error {
	var buf [8]byte
	if _, err := io.ReadFull(a.expected, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return rasterrors.Wrap(rasterrors.AuditLength, "expected stream exhausted before run completed",
				&rasterrors.AuditLengthError{Expected: a.slot, Got: -1})
		}
		return fmt.Errorf("trace: reading expected packed stream: %w", err)
	}
	expected := binary.LittleEndian.Uint64(buf[:])
	if expected != computed {
		return rasterrors.Wrap(rasterrors.AuditMismatch, "packed commitment diverged",
			&rasterrors.AuditMismatchError{
				Index:    a.slot,
				Expected: expected,
				Computed: computed,
				ItemFn:   a.lastItem,
			})
	}
	return nil
}
