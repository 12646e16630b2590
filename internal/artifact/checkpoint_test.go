package artifact

import (
	"errors"
	"testing"

	"github.com/raster-lang/raster/internal/backend"
)

func fakeOutput(methodID string) backend.CompilationOutput {
	return backend.CompilationOutput{MethodID: []byte(methodID)}
}

// TestManifestRootSkipsFailedTilesAndIsOrderIndependent checks that
// ManifestRoot only folds in successful results, and that it does not
// depend on the order results happen to arrive in (BuildAll's
// goroutine-per-tile fan-out makes that order non-deterministic).
func TestManifestRootSkipsFailedTilesAndIsOrderIndependent(t *testing.T) {
	ordered := []BuildResult{
		{TileID: "alpha", Output: fakeOutput("alpha")},
		{TileID: "beta", Output: fakeOutput("beta")},
		{TileID: "gamma", Err: errors.New("compile failed")},
	}
	reversed := []BuildResult{ordered[2], ordered[1], ordered[0]}

	root1, err := ManifestRoot(ordered)
	if err != nil {
		t.Fatal(err)
	}
	root2, err := ManifestRoot(reversed)
	if err != nil {
		t.Fatal(err)
	}
	if root1 != root2 {
		t.Fatal("expected ManifestRoot to be independent of input order")
	}

	withoutFailure, err := ManifestRoot(ordered[:2])
	if err != nil {
		t.Fatal(err)
	}
	if root1 != withoutFailure {
		t.Fatal("expected a failed tile's entry to be excluded from the manifest root")
	}
}

// TestManifestRootChangesWithMethodID checks that the root is sensitive
// to a tile's compiled identity, not just its id.
func TestManifestRootChangesWithMethodID(t *testing.T) {
	a := []BuildResult{{TileID: "alpha", Output: fakeOutput("v1")}}
	b := []BuildResult{{TileID: "alpha", Output: fakeOutput("v2")}}

	rootA, err := ManifestRoot(a)
	if err != nil {
		t.Fatal(err)
	}
	rootB, err := ManifestRoot(b)
	if err != nil {
		t.Fatal(err)
	}
	if rootA == rootB {
		t.Fatal("expected differing method ids to produce differing manifest roots")
	}
}
