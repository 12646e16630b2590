// Package artifact implements the artifact builder and cache: it
// drives a Backend's compile step per tile, persists the
// resulting image/method_id/manifest triple via write-to-temp-then-
// rename, and short-circuits recompilation when a tile's source
// fingerprint is unchanged.
package artifact

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/metrics"
	"github.com/raster-lang/raster/internal/rasterrors"
)

// TileBuildInput is one tile's compile request: its backend metadata
// and the path to its primary source file.
type TileBuildInput struct {
	Meta       backend.Metadata
	SourcePath string
}

// BuildResult is one tile's outcome from BuildAll: Err is non-nil only
// when that single tile's compile failed; BuildAll continues past it.
type BuildResult struct {
	TileID cfs.TileID
	Output backend.CompilationOutput
	Err    error
}

// Builder orchestrates compilation for one backend against one
// artifact root.
type Builder struct {
	backend backend.Backend
	root    string
	cache   *cacheIndex
}

// New constructs a Builder writing under root/tiles/ and indexing its
// cache at root/cache.db. root is created if it does not exist.
func New(be backend.Backend, root string) (*Builder, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: creating artifact root %s: %w", root, err)
	}
	cache, err := openCacheIndex(filepath.Join(root, "cache.db"))
	if err != nil {
		return nil, err
	}
	return &Builder{backend: be, root: root, cache: cache}, nil
}

// Close releases the Builder's cache index connection.
func (b *Builder) Close() error {
	return b.cache.close()
}

// BuildOne compiles a single tile, failing the whole operation on any
// error.
func (b *Builder) BuildOne(ctx context.Context, in TileBuildInput) (backend.CompilationOutput, error) {
	out, err := b.buildTile(ctx, in)
	if err != nil {
		return backend.CompilationOutput{}, err
	}
	return out, nil
}

// BuildAll compiles every tile in inputs, continuing past individual
// compile failures and reporting each as a diagnostic in the returned
// results rather than aborting the whole run. inputs are sorted by
// tile id before scheduling, so the returned results (and the
// diagnostics reported from them) are in tile-id order regardless of
// jobs; compiles and cache writes also run in that order only when
// jobs == 1. jobs <= 0 means unlimited
// parallelism; per-tile artifact directories are disjoint, so
// concurrent builds never write the same file.
func (b *Builder) BuildAll(ctx context.Context, inputs []TileBuildInput, jobs int) []BuildResult {
	sorted := make([]TileBuildInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Meta.TileID < sorted[j].Meta.TileID })

	results := make([]BuildResult, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, in := range sorted {
		i, in := i, in
		g.Go(func() error {
			out, err := b.buildTile(gctx, in)
			results[i] = BuildResult{TileID: in.Meta.TileID, Output: out, Err: err}
			return nil // BuildAll never aborts the group on a single tile's error
		})
	}
	_ = g.Wait()
	return results
}

// buildTile runs the per-tile algorithm: cache check, compile on
// miss, then persist.
func (b *Builder) buildTile(ctx context.Context, in TileBuildInput) (backend.CompilationOutput, error) {
	tileID := in.Meta.TileID
	backendName := b.backend.Name()
	dir := tileDir(b.root, tileID, backendName)

	sourceBytes, err := os.ReadFile(in.SourcePath)
	if err != nil {
		return backend.CompilationOutput{}, rasterrors.Wrap(rasterrors.Io, fmt.Sprintf("reading source for tile %s", tileID), err)
	}
	fingerprint := Fingerprint(sourceBytes)

	if out, ok := b.tryLoadCached(tileID, backendName, dir, fingerprint); ok {
		metrics.ObserveCacheLookup(tileID, metrics.CacheHit)
		return out, nil
	}
	metrics.ObserveCacheLookup(tileID, metrics.CacheMiss)

	start := time.Now()
	output, err := b.backend.CompileTile(ctx, in.Meta, in.SourcePath)
	metrics.ObserveCompile(backendName, err == nil, time.Since(start))
	if err != nil {
		return backend.CompilationOutput{}, rasterrors.Wrap(rasterrors.BackendCompile, fmt.Sprintf("compiling tile %s", tileID), err)
	}

	manifest := Manifest{
		TileID:            tileID,
		Backend:           backendName,
		MethodIDHex:       hex.EncodeToString(output.MethodID),
		ImageSizeBytes:    int64(len(output.Image)),
		SourceFingerprint: fingerprint,
	}
	if err := writeManifest(dir, manifest, output.Image); err != nil {
		return backend.CompilationOutput{}, err
	}
	if err := b.cache.record(cacheEntry{TileID: tileID, Backend: backendName, Fingerprint: fingerprint, Dir: dir}); err != nil {
		return backend.CompilationOutput{}, err
	}
	if output.ArtifactDir == "" {
		output.ArtifactDir = dir
	}
	return output, nil
}

// tryLoadCached consults the sqlite/LRU cache index as a fast-reject,
// then always re-validates against the on-disk manifest before
// trusting it. A CacheCorrupt manifest or a fingerprint mismatch is
// treated as a miss, never a hard failure.
func (b *Builder) tryLoadCached(tileID cfs.TileID, backendName, dir, fingerprint string) (backend.CompilationOutput, bool) {
	if entry, ok, err := b.cache.lookup(tileID, backendName); err == nil && ok {
		if entry.Fingerprint != fingerprint {
			return backend.CompilationOutput{}, false
		}
	}

	manifest, image, methodID, err := readManifest(dir)
	if err != nil {
		return backend.CompilationOutput{}, false
	}
	if manifest.SourceFingerprint != fingerprint {
		return backend.CompilationOutput{}, false
	}
	return backend.CompilationOutput{Image: image, MethodID: methodID, ArtifactDir: dir}, true
}
