package runtime

import (
	"bytes"
	"context"
	"testing"

	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/backend/native"
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/codec"
	"github.com/raster-lang/raster/internal/trace"
)

// buildGreetExclaimSchema hand-lowers a two-tile linear pipeline,
// main(name){ g := greet(name); exclaim(g) }, rather than going
// through discovery and flow resolution, since this test exercises
// the runtime orchestrator in isolation.
func buildGreetExclaimSchema() *cfs.ControlFlowSchema {
	return &cfs.ControlFlowSchema{
		Version:  "1.0",
		Project:  "greet-exclaim",
		Encoding: "canonical/v1",
		Tiles: []cfs.TileDef{
			{ID: "greet", Kind: cfs.Iter, Inputs: 1, Outputs: 1},
			{ID: "exclaim", Kind: cfs.Iter, Inputs: 1, Outputs: 1},
		},
		Sequences: []cfs.SequenceDef{
			{
				ID:           cfs.EntrySequenceID,
				InputSources: []cfs.InputBinding{cfs.NewExternal()},
				Items: []cfs.Item{
					{Kind: cfs.TileItem, Callee: "greet", InputSources: []cfs.InputBinding{cfs.NewSeqInput(0)}},
					{Kind: cfs.TileItem, Callee: "exclaim", InputSources: []cfs.InputBinding{cfs.NewItemOutput(0, 0)}},
				},
			},
		},
	}
}

func TestProgramRunLinearPipeline(t *testing.T) {
	registry := native.NewRegistry()
	registry.Register("greet", backend.Wrap(1, 1, func(args []codec.Value) ([]codec.Value, error) {
		return []codec.Value{codec.Bytes([]byte("hello, " + string(args[0].Bytes)))}, nil
	}))
	registry.Register("exclaim", backend.Wrap(1, 1, func(args []codec.Value) ([]codec.Value, error) {
		return []codec.Value{codec.Bytes(append(append([]byte{}, args[0].Bytes...), '!'))}, nil
	}))

	be := native.New(registry)
	schema := buildGreetExclaimSchema()
	compilations := map[cfs.TileID]backend.CompilationOutput{
		"greet":   {MethodID: []byte("greet")},
		"exclaim": {MethodID: []byte("exclaim")},
	}

	var emitted bytes.Buffer
	emitter := trace.NewJsonEmitter(&emitted)
	program := NewProgram(schema, be, compilations, emitter)

	out, err := program.Run(context.Background(), cfs.EntrySequenceID, []codec.Value{codec.Bytes([]byte("world"))})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || string(out[0].Bytes) != "hello, world!" {
		t.Fatalf("expected %q, got %+v", "hello, world!", out)
	}
	if emitted.Len() == 0 {
		t.Fatal("expected the JsonEmitter to have observed both tile invocations")
	}
}

func TestProgramRunDrivesRecurToCompletion(t *testing.T) {
	registry := native.NewRegistry()
	// countdown(n) -> (done, n-1); done when n-1 == 0.
	registry.Register("countdown", backend.Wrap(1, 2, func(args []codec.Value) ([]codec.Value, error) {
		n := args[0].Uint
		next := n - 1
		return []codec.Value{codec.Bool(next == 0), codec.Uint64(next)}, nil
	}))

	be := native.New(registry)
	schema := &cfs.ControlFlowSchema{
		Tiles: []cfs.TileDef{{ID: "countdown", Kind: cfs.Recur, Inputs: 1, Outputs: 2}},
		Sequences: []cfs.SequenceDef{{
			ID:           cfs.EntrySequenceID,
			InputSources: []cfs.InputBinding{cfs.NewExternal()},
			Items: []cfs.Item{
				{Kind: cfs.TileItem, Callee: "countdown", InputSources: []cfs.InputBinding{cfs.NewSeqInput(0)}},
			},
		}},
	}
	compilations := map[cfs.TileID]backend.CompilationOutput{"countdown": {MethodID: []byte("countdown")}}

	program := NewProgram(schema, be, compilations)
	out, err := program.Run(context.Background(), cfs.EntrySequenceID, []codec.Value{codec.Uint64(3)})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Uint != 0 {
		t.Fatalf("expected final state 0, got %+v", out)
	}
}

func TestProgramRunRejectsUnknownSequence(t *testing.T) {
	schema := &cfs.ControlFlowSchema{}
	program := NewProgram(schema, native.New(native.NewRegistry()), nil)
	if _, err := program.Run(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected an error for an unknown sequence id")
	}
}
