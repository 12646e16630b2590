package cfs

import (
	"testing"

	"github.com/raster-lang/raster/internal/discovery"
)

func TestBuildLinearPipeline(t *testing.T) {
	result := &discovery.Result{
		Tiles: []discovery.Tile{
			{ID: "greet", Kind: Iter, Inputs: 1, Outputs: 1},
			{ID: "exclaim", Kind: Iter, Inputs: 1, Outputs: 1},
		},
		Sequences: []discovery.Sequence{
			{
				ID:         "main",
				ParamNames: []string{"name"},
				Items: []discovery.CallSite{
					{Callee: "greet", Arguments: []string{"name"}, ResultBinding: strPtr("g")},
					{Callee: "exclaim", Arguments: []string{"g"}},
				},
			},
		},
	}

	schema, err := Build(t.TempDir(), result)
	if err != nil {
		t.Fatal(err)
	}
	if schema.Version != "1.0" || schema.Encoding != "canonical/v1" {
		t.Fatalf("unexpected version/encoding: %+v", schema)
	}
	if len(schema.Sequences) != 1 {
		t.Fatalf("expected 1 sequence, got %d", len(schema.Sequences))
	}
	main := schema.Sequences[0]
	if len(main.InputSources) != 1 || main.InputSources[0].Kind != External {
		t.Fatalf("expected main to have one external input, got %+v", main.InputSources)
	}
	if len(main.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(main.Items))
	}
	if main.Items[0].Callee != "greet" || main.Items[0].InputSources[0] != NewSeqInput(0) {
		t.Fatalf("unexpected item 0: %+v", main.Items[0])
	}
	if main.Items[1].Callee != "exclaim" || main.Items[1].InputSources[0] != NewItemOutput(0, 0) {
		t.Fatalf("unexpected item 1: %+v", main.Items[1])
	}

	if errs := ValidateBindings(schema); len(errs) != 0 {
		t.Fatalf("expected no binding errors, got %v", errs)
	}
}

func TestValidateBindingsCatchesOutOfRange(t *testing.T) {
	schema := &ControlFlowSchema{
		Tiles: []TileDef{{ID: "greet", Inputs: 1, Outputs: 1}},
		Sequences: []SequenceDef{{
			ID:           "main",
			InputSources: []InputBinding{NewExternal()},
			Items: []Item{
				{Kind: TileItem, Callee: "greet", InputSources: []InputBinding{NewSeqInput(5)}},
			},
		}},
	}
	errs := ValidateBindings(schema)
	if len(errs) == 0 {
		t.Fatal("expected a binding error for out-of-range seq_input")
	}
}

func strPtr(s string) *string { return &s }
