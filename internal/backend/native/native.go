// Package native implements the Native backend: an
// in-process execution backend with no guest image, meant for
// development.
package native

import (
	"context"
	"sync"

	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/rasterrors"
)

// Registry holds the process's in-process tile implementations, keyed
// by tile id. A process-wide instance is exposed as a convenience, but
// callers can construct an isolated instance for tests; the global is
// not a load-bearing singleton.
type Registry struct {
	mu  sync.RWMutex
	fns map[cfs.TileID]backend.WrappedTileFunc
}

// NewRegistry constructs an empty, isolated registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[cfs.TileID]backend.WrappedTileFunc)}
}

// Register installs a tile's ABI-wrapped implementation. Call
// backend.Wrap to build one from a typed TileFunc plus its arity.
func (r *Registry) Register(id cfs.TileID, fn backend.WrappedTileFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[id] = fn
}

// Lookup returns the registered implementation for id, if any.
func (r *Registry) Lookup(id cfs.TileID) (backend.WrappedTileFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[id]
	return fn, ok
}

var global = NewRegistry()

// Global returns the process-wide registry that New(nil) uses. No
// package in this module, cmd/raster included, registers tiles into
// it, so it stays empty unless the embedding process populates it;
// unit tests should prefer NewRegistry for isolation.
func Global() *Registry { return global }

// Backend is the Native backend: CompileTile produces an empty image
// with a placeholder method id, and ExecuteTile invokes the registry
// directly. It never supports Prove.
type Backend struct {
	registry *Registry
}

// New constructs a Native backend against the given registry. A nil
// registry uses the process-wide Global().
func New(registry *Registry) *Backend {
	if registry == nil {
		registry = global
	}
	return &Backend{registry: registry}
}

func (b *Backend) Name() string { return "native" }

// CompileTile returns an empty image and a placeholder method id: the
// UTF-8 bytes of the tile id. No guest binary is produced.
func (b *Backend) CompileTile(_ context.Context, meta backend.Metadata, _ string) (backend.CompilationOutput, error) {
	return backend.CompilationOutput{
		Image:    nil,
		MethodID: []byte(meta.TileID),
	}, nil
}

// ExecuteTile rejects Prove with a typed error; for Estimate it looks
// the tile up in the registry by the tile id recovered from
// compilation.MethodID and invokes it directly.
func (b *Backend) ExecuteTile(_ context.Context, compilation backend.CompilationOutput, input []byte, mode backend.ExecutionMode) (backend.TileExecution, error) {
	if mode.Kind == backend.ProveMode {
		return backend.TileExecution{}, rasterrors.New(rasterrors.BackendExecute, "native backend does not support Prove")
	}

	tileID := cfs.TileID(compilation.MethodID)
	fn, ok := b.registry.Lookup(tileID)
	if !ok {
		return backend.TileExecution{}, rasterrors.New(rasterrors.BackendExecute, "no native implementation registered for tile "+string(tileID))
	}

	out, err := fn(input)
	if err != nil {
		return backend.TileExecution{}, rasterrors.Wrap(rasterrors.BackendExecute, "native tile invocation failed", err)
	}
	return backend.TileExecution{Output: out}, nil
}

// VerifyReceipt always fails: the Native backend never produces
// receipts.
func (b *Backend) VerifyReceipt(context.Context, backend.CompilationOutput, []byte) (bool, error) {
	return false, rasterrors.New(rasterrors.Verification, "native backend does not produce receipts")
}
