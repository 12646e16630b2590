package discovery

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/raster-lang/raster/internal/cfs"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDiscoverExtractsTilesAndSequences(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiles.go", `package tiles

// tile()
func Greet(name string) string { return "hello, " + name }

// tile(kind=recur, description="counts n down to zero")
func Countdown(n uint64) (bool, uint64) { return n-1 == 0, n - 1 }

// sequence()
func Main(name string) string {
	g := Greet(name)
	return Exclaim(g)
}
`)
	writeFile(t, dir, "more.go", `package tiles

// tile(estimated_cycles=1000)
func Exclaim(s string) string { return s + "!" }

func helper() {}
`)

	result, diags, err := Discover(dir, GoASTProvider{}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}

	if len(result.Tiles) != 3 {
		t.Fatalf("expected 3 tiles, got %d: %+v", len(result.Tiles), result.Tiles)
	}
	// Tiles are sorted by id.
	for i, want := range []string{"Countdown", "Exclaim", "Greet"} {
		if result.Tiles[i].ID != want {
			t.Fatalf("expected tile %d to be %s, got %s", i, want, result.Tiles[i].ID)
		}
	}

	countdown := result.Tiles[0]
	if countdown.Kind != cfs.Recur || countdown.Inputs != 1 || countdown.Outputs != 2 {
		t.Fatalf("unexpected countdown shape: %+v", countdown)
	}
	exclaim := result.Tiles[1]
	if exclaim.EstimatedCycles == nil || *exclaim.EstimatedCycles != 1000 {
		t.Fatalf("expected estimated_cycles 1000, got %+v", exclaim.EstimatedCycles)
	}
	greet := result.Tiles[2]
	if greet.Kind != cfs.Iter || greet.Inputs != 1 || greet.Outputs != 1 {
		t.Fatalf("unexpected greet shape: %+v", greet)
	}

	if len(result.Sequences) != 1 {
		t.Fatalf("expected 1 sequence, got %d", len(result.Sequences))
	}
	main := result.Sequences[0]
	if main.ID != "Main" || len(main.ParamNames) != 1 || main.ParamNames[0] != "name" {
		t.Fatalf("unexpected sequence: %+v", main)
	}
	if len(main.Items) != 2 {
		t.Fatalf("expected 2 call sites, got %+v", main.Items)
	}
	if main.Items[0].Callee != "Greet" || main.Items[0].ResultBinding == nil || *main.Items[0].ResultBinding != "g" {
		t.Fatalf("unexpected call site 0: %+v", main.Items[0])
	}
	if main.Items[1].Callee != "Exclaim" || main.Items[1].Arguments[0] != "g" {
		t.Fatalf("unexpected call site 1: %+v", main.Items[1])
	}
}

func TestDiscoverSkipsUnparseableFileWithDiagnostic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.go", "package tiles\nfunc broken( {")
	writeFile(t, dir, "good.go", `package tiles

// tile()
func Fine(x uint64) uint64 { return x }
`)

	result, diags, err := Discover(dir, GoASTProvider{}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic for the unparseable file, got %v", diags)
	}
	if len(result.Tiles) != 1 || result.Tiles[0].ID != "Fine" {
		t.Fatalf("expected discovery of the parseable file to survive, got %+v", result.Tiles)
	}
}

func TestDiscoverRejectsUnknownKindValue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiles.go", `package tiles

// tile(kind=bogus)
func Weird(x uint64) uint64 { return x }

// tile()
func Fine(x uint64) uint64 { return x }
`)

	result, diags, err := Discover(dir, GoASTProvider{}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic for the bogus kind, got %v", diags)
	}
	if len(result.Tiles) != 1 || result.Tiles[0].ID != "Fine" {
		t.Fatalf("expected only the well-formed tile, got %+v", result.Tiles)
	}
}

func TestDiscoverRejectsRecurArityViolation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiles.go", `package tiles

// tile(kind=recur)
func Step(x uint64) uint64 { return x }
`)

	result, diags, err := Discover(dir, GoASTProvider{}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected a diagnostic for the arity violation, got %v", diags)
	}
	if len(result.Tiles) != 0 {
		t.Fatalf("expected no tiles, got %+v", result.Tiles)
	}
}

func TestDiscoverIgnoresUnknownAttributeKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiles.go", `package tiles

// tile(future_knob=42, description="survives unknown keys")
func Fine(x uint64) uint64 { return x }
`)

	result, diags, err := Discover(dir, GoASTProvider{}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected unknown keys to be ignored, got %v", diags)
	}
	if len(result.Tiles) != 1 || result.Tiles[0].Description != "survives unknown keys" {
		t.Fatalf("unexpected tiles: %+v", result.Tiles)
	}
}

func TestDiscoverSkipsQualifiedAndMethodCalls(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tiles.go", `package tiles

import "fmt"

// sequence()
func Main(x uint64) {
	fmt.Println(x)
	Compute(x)
}

// tile()
func Compute(x uint64) {}
`)

	result, _, err := Discover(dir, GoASTProvider{}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Sequences) != 1 {
		t.Fatalf("expected 1 sequence, got %+v", result.Sequences)
	}
	items := result.Sequences[0].Items
	if len(items) != 1 || items[0].Callee != "Compute" {
		t.Fatalf("expected only the plain-identifier call to be captured, got %+v", items)
	}
}

func TestDiscoverEmptyProjectIsSuccess(t *testing.T) {
	result, diags, err := Discover(t.TempDir(), GoASTProvider{}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 0 || len(result.Tiles) != 0 || len(result.Sequences) != 0 {
		t.Fatalf("expected empty success, got %+v %v", result, diags)
	}
}
