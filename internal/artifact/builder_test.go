package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/cfs"
)

var errCompileFailed = errors.New("compile failed")

// countingBackend wraps the Native backend's shape but records a
// compile counter and lets tests control the produced image bytes, to
// exercise cache-hit/cache-miss behavior without a real toolchain.
type countingBackend struct {
	compiles atomic.Int64
	image    []byte
}

func (b *countingBackend) Name() string { return "counting" }

func (b *countingBackend) CompileTile(_ context.Context, meta backend.Metadata, _ string) (backend.CompilationOutput, error) {
	b.compiles.Add(1)
	return backend.CompilationOutput{
		Image:    b.image,
		MethodID: []byte(meta.TileID + ":" + string(b.image)),
	}, nil
}

func (b *countingBackend) ExecuteTile(context.Context, backend.CompilationOutput, []byte, backend.ExecutionMode) (backend.TileExecution, error) {
	return backend.TileExecution{}, nil
}

func (b *countingBackend) VerifyReceipt(context.Context, backend.CompilationOutput, []byte) (bool, error) {
	return false, nil
}

func writeSource(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestCacheHitSkipsRecompile: building twice with no source change
// invokes the backend exactly once.
func TestCacheHitSkipsRecompile(t *testing.T) {
	dir := t.TempDir()
	sourcePath := writeSource(t, dir, "double.rs", "fn double(x) { x * 2 }")

	be := &countingBackend{image: []byte("image-v1")}
	builder, err := New(be, filepath.Join(dir, "target"))
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	meta := backend.Metadata{TileID: cfs.TileID("double"), Kind: cfs.Iter, Inputs: 1, Outputs: 1}
	in := TileBuildInput{Meta: meta, SourcePath: sourcePath}

	out1, err := builder.BuildOne(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	out2, err := builder.BuildOne(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if be.compiles.Load() != 1 {
		t.Fatalf("expected exactly one compile, got %d", be.compiles.Load())
	}
	if string(out1.MethodID) != string(out2.MethodID) {
		t.Fatalf("expected method ids to match across cached builds: %q != %q", out1.MethodID, out2.MethodID)
	}
}

// TestCacheMissRecompilesOnSourceChange: mutating the source file
// between builds forces a recompile and a new method id.
func TestCacheMissRecompilesOnSourceChange(t *testing.T) {
	dir := t.TempDir()
	sourcePath := writeSource(t, dir, "double.rs", "fn double(x) { x * 2 }")

	be := &countingBackend{image: []byte("image-v1")}
	builder, err := New(be, filepath.Join(dir, "target"))
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	meta := backend.Metadata{TileID: cfs.TileID("double"), Kind: cfs.Iter, Inputs: 1, Outputs: 1}
	in := TileBuildInput{Meta: meta, SourcePath: sourcePath}

	out1, err := builder.BuildOne(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	writeSource(t, dir, "double.rs", "fn double(x) { x * 2 + 0 }")
	be.image = []byte("image-v2")

	out2, err := builder.BuildOne(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if be.compiles.Load() != 2 {
		t.Fatalf("expected exactly two compiles, got %d", be.compiles.Load())
	}
	if string(out1.MethodID) == string(out2.MethodID) {
		t.Fatal("expected method id to change after source mutation")
	}
}

// TestBuildAllContinuesPastErrors checks the BuildAll continuation
// policy: one tile's compile failure does not prevent the rest from
// building, and is reported as a per-tile diagnostic.
func TestBuildAllContinuesPastErrors(t *testing.T) {
	dir := t.TempDir()
	goodPath := writeSource(t, dir, "good.rs", "fn good(x) { x }")
	badPath := writeSource(t, dir, "bad.rs", "fn bad(x) { x }")

	be := &failingBackend{failTile: "bad"}
	builder, err := New(be, filepath.Join(dir, "target"))
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	inputs := []TileBuildInput{
		{Meta: backend.Metadata{TileID: "good", Kind: cfs.Iter, Inputs: 1, Outputs: 1}, SourcePath: goodPath},
		{Meta: backend.Metadata{TileID: "bad", Kind: cfs.Iter, Inputs: 1, Outputs: 1}, SourcePath: badPath},
	}

	results := builder.BuildAll(context.Background(), inputs, 0)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	var sawGoodOK, sawBadErr bool
	for _, r := range results {
		switch r.TileID {
		case "good":
			if r.Err != nil {
				t.Fatalf("expected good tile to succeed, got %v", r.Err)
			}
			sawGoodOK = true
		case "bad":
			if r.Err == nil {
				t.Fatal("expected bad tile to fail")
			}
			sawBadErr = true
		}
	}
	if !sawGoodOK || !sawBadErr {
		t.Fatal("expected both tiles represented in results")
	}
}

type failingBackend struct {
	failTile string
}

func (b *failingBackend) Name() string { return "failing" }

func (b *failingBackend) CompileTile(_ context.Context, meta backend.Metadata, _ string) (backend.CompilationOutput, error) {
	if meta.TileID == b.failTile {
		return backend.CompilationOutput{}, errCompileFailed
	}
	return backend.CompilationOutput{Image: []byte("ok"), MethodID: []byte(meta.TileID)}, nil
}

func (b *failingBackend) ExecuteTile(context.Context, backend.CompilationOutput, []byte, backend.ExecutionMode) (backend.TileExecution, error) {
	return backend.TileExecution{}, nil
}

func (b *failingBackend) VerifyReceipt(context.Context, backend.CompilationOutput, []byte) (bool, error) {
	return false, nil
}
