package flow

import (
	"testing"

	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/discovery"
)

func TestResolveLinearPipeline(t *testing.T) {
	// main(name){ g := greet(name); exclaim(g) }
	binding := "g"
	seq := discovery.Sequence{
		ID:         "main",
		ParamNames: []string{"name"},
		Items: []discovery.CallSite{
			{Callee: "greet", Arguments: []string{"name"}, ResultBinding: &binding},
			{Callee: "exclaim", Arguments: []string{"g"}},
		},
	}
	tileIDs := map[string]bool{"greet": true, "exclaim": true}
	seqIDs := map[string]bool{"main": true}

	items := Resolve(seq, tileIDs, seqIDs)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Kind != cfs.TileItem || items[0].Callee != "greet" {
		t.Fatalf("unexpected item 0: %+v", items[0])
	}
	if items[0].InputSources[0] != cfs.NewSeqInput(0) {
		t.Fatalf("expected greet's arg to resolve to SeqInput(0), got %+v", items[0].InputSources[0])
	}
	if items[1].InputSources[0] != cfs.NewItemOutput(0, 0) {
		t.Fatalf("expected exclaim's arg to resolve to ItemOutput(0,0), got %+v", items[1].InputSources[0])
	}
}

func TestResolveFallsThroughToExternal(t *testing.T) {
	seq := discovery.Sequence{
		ID:         "main",
		ParamNames: []string{"x"},
		Items: []discovery.CallSite{
			{Callee: "compute", Arguments: []string{"42"}},
		},
	}
	items := Resolve(seq, map[string]bool{"compute": true}, map[string]bool{"main": true})
	if items[0].InputSources[0] != cfs.NewExternal() {
		t.Fatalf("expected literal argument to resolve to External, got %+v", items[0].InputSources[0])
	}
}

func TestResolveUnknownCalleeFallsBackToTile(t *testing.T) {
	seq := discovery.Sequence{
		ID:         "main",
		ParamNames: nil,
		Items: []discovery.CallSite{
			{Callee: "mystery"},
		},
	}
	items := Resolve(seq, map[string]bool{}, map[string]bool{})
	if items[0].Kind != cfs.TileItem {
		t.Fatalf("expected fallback classification Tile, got %v", items[0].Kind)
	}
}
