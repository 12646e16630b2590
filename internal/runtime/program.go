// Package runtime drives a whole-program native run: it walks a
// ControlFlowSchema's sequences in authoring order, resolves each
// item's data-flow bindings to concrete values, invokes tiles through
// a Backend, and feeds the resulting TraceItem stream to the runtime
// Subscribers.
package runtime

import (
	"context"
	"fmt"

	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/codec"
	"github.com/raster-lang/raster/internal/commitment"
	"github.com/raster-lang/raster/internal/rasterrors"
	"github.com/raster-lang/raster/internal/trace"
)

// MaxRecurSteps bounds a Recur tile's orchestrator-driven loop so a
// tile that never reports done=true cannot hang a whole-program run
// forever; a real deployment would size this from estimated_cycles,
// but no budget is specified so a generous fixed ceiling stands in.
const MaxRecurSteps = 1_000_000

// Program binds a ControlFlowSchema to the compiled outputs and
// Backend needed to actually execute it, plus the subscribers that
// observe every tile invocation in program order.
type Program struct {
	Schema       *cfs.ControlFlowSchema
	Backend      backend.Backend
	Compilations map[cfs.TileID]backend.CompilationOutput
	Subscribers  []trace.Subscriber

	// Mode is the ExecutionMode every tile invocation in this run
	// executes under. A whole-program run is always Estimate; Prove is
	// tied to single-tile execution via run-tile.
	Mode backend.ExecutionMode
}

// NewProgram constructs a Program in Estimate mode.
func NewProgram(schema *cfs.ControlFlowSchema, be backend.Backend, compilations map[cfs.TileID]backend.CompilationOutput, subscribers ...trace.Subscriber) *Program {
	return &Program{
		Schema:       schema,
		Backend:      be,
		Compilations: compilations,
		Subscribers:  subscribers,
		Mode:         backend.Estimate(),
	}
}

// Run executes the named sequence (normally cfs.EntrySequenceID) with
// the given external arguments, in program order, and returns its
// final item's output values. It calls OnComplete on every subscriber
// exactly once, after the run terminates normally.
func (p *Program) Run(ctx context.Context, sequenceID cfs.SequenceID, externalArgs []codec.Value) ([]codec.Value, error) {
	out, err := p.runSequence(ctx, sequenceID, externalArgs)
	if err != nil {
		return nil, err
	}
	for _, sub := range p.Subscribers {
		if err := sub.OnComplete(); err != nil {
			return nil, fmt.Errorf("runtime: subscriber OnComplete: %w", err)
		}
	}
	return out, nil
}

func (p *Program) runSequence(ctx context.Context, sequenceID cfs.SequenceID, externalArgs []codec.Value) ([]codec.Value, error) {
	seq, ok := p.Schema.SequenceByID(sequenceID)
	if !ok {
		return nil, rasterrors.New(rasterrors.Discovery, "unknown sequence "+sequenceID)
	}

	itemOutputs := make([][]codec.Value, len(seq.Items))
	var last []codec.Value

	for itemIndex, item := range seq.Items {
		args, err := p.resolveArgs(item.InputSources, externalArgs, itemOutputs)
		if err != nil {
			return nil, fmt.Errorf("runtime: sequence %s item %d (%s): %w", sequenceID, itemIndex, item.Callee, err)
		}

		var results []codec.Value
		switch item.Kind {
		case cfs.SequenceItem:
			results, err = p.runSequence(ctx, item.Callee, args)
		default:
			results, err = p.invokeTile(ctx, item.Callee, args)
		}
		if err != nil {
			return nil, fmt.Errorf("runtime: sequence %s item %d (%s): %w", sequenceID, itemIndex, item.Callee, err)
		}

		itemOutputs[itemIndex] = results
		last = results
	}
	return last, nil
}

// resolveArgs turns a call site's InputBindings into concrete values,
// given the enclosing sequence's external arguments and the outputs
// recorded for every strictly-prior item. An External binding at item
// level (rather than at the sequence's own input_sources) means the
// flow resolver could not trace the argument to a known source, so it
// is supplied as Unit.
func (p *Program) resolveArgs(bindings []cfs.InputBinding, externalArgs []codec.Value, itemOutputs [][]codec.Value) ([]codec.Value, error) {
	args := make([]codec.Value, len(bindings))
	for i, b := range bindings {
		switch b.Kind {
		case cfs.SeqInput:
			if int(b.InputIndex) >= len(externalArgs) {
				return nil, fmt.Errorf("seq_input %d out of range (sequence has %d supplied arguments)", b.InputIndex, len(externalArgs))
			}
			args[i] = externalArgs[b.InputIndex]
		case cfs.ItemOutput:
			if int(b.ItemIndex) >= len(itemOutputs) {
				return nil, fmt.Errorf("item_output references item %d, which has not run yet", b.ItemIndex)
			}
			outputs := itemOutputs[b.ItemIndex]
			if int(b.OutputIndex) >= len(outputs) {
				return nil, fmt.Errorf("item_output references output %d of item %d, which has %d outputs", b.OutputIndex, b.ItemIndex, len(outputs))
			}
			args[i] = outputs[b.OutputIndex]
		default: // External
			args[i] = codec.Unit()
		}
	}
	return args, nil
}

// invokeTile runs one tile invocation: encode, execute via Backend,
// decode, then notify every subscriber with the resulting TraceItem
// before the next invocation begins. A Recur tile is driven to
// completion here, one
// TraceItem per step, rather than producing one TraceItem for the
// whole loop; each step is a real tile invocation.
func (p *Program) invokeTile(ctx context.Context, tileID cfs.TileID, args []codec.Value) ([]codec.Value, error) {
	tileDef, ok := p.Schema.TileByID(tileID)
	if !ok {
		return nil, rasterrors.New(rasterrors.Discovery, "unknown tile "+tileID)
	}
	compilation, ok := p.Compilations[tileID]
	if !ok {
		return nil, rasterrors.New(rasterrors.BackendExecute, "no compiled artifact for tile "+tileID)
	}

	if tileDef.Kind != cfs.Recur {
		return p.stepTile(ctx, tileDef, compilation, args)
	}
	return p.runRecur(ctx, tileDef, compilation, args)
}

func (p *Program) runRecur(ctx context.Context, tileDef cfs.TileDef, compilation backend.CompilationOutput, args []codec.Value) ([]codec.Value, error) {
	state := args
	for step := 0; step < MaxRecurSteps; step++ {
		results, err := p.stepTile(ctx, tileDef, compilation, state)
		if err != nil {
			// Design Notes (b): the orchestrator aborts the recursion
			// and surfaces the failed step's error (BackendExecute for
			// an execution failure, Serialization for an encode or
			// decode failure); it does not commit a partial failure
			// record.
			return nil, err
		}
		if len(results) == 0 || results[0].Kind != codec.KindBool {
			return nil, rasterrors.New(rasterrors.BackendExecute, "recur tile "+tileDef.ID+" did not return a leading done flag")
		}
		done := results[0].Bool
		state = results[1:]
		if done {
			return state, nil
		}
	}
	return nil, rasterrors.New(rasterrors.BackendExecute, "recur tile "+tileDef.ID+" did not reach done within the step ceiling")
}

// stepTile invokes a tile exactly once and records one TraceItem.
func (p *Program) stepTile(ctx context.Context, tileDef cfs.TileDef, compilation backend.CompilationOutput, args []codec.Value) ([]codec.Value, error) {
	input, err := codec.EncodeArgs(int(tileDef.Inputs), args)
	if err != nil {
		return nil, rasterrors.Wrap(rasterrors.Serialization, "encoding arguments for tile "+tileDef.ID, err)
	}

	exec, err := p.Backend.ExecuteTile(ctx, compilation, input, p.Mode)
	if err != nil {
		return nil, rasterrors.Wrap(rasterrors.BackendExecute, "executing tile "+tileDef.ID, err)
	}

	results, err := codec.DecodeArgs(int(tileDef.Outputs), exec.Output)
	if err != nil {
		return nil, rasterrors.Wrap(rasterrors.Serialization, "decoding output for tile "+tileDef.ID, err)
	}

	item := commitment.TraceItem{
		FnName:  tileDef.ID,
		Inputs:  input,
		Outputs: exec.Output,
		SignatureMeta: commitment.SignatureMeta{
			Backend: p.Backend.Name(),
			Mode:    modeLabel(p.Mode),
		},
	}
	for _, sub := range p.Subscribers {
		if err := sub.OnTrace(item); err != nil {
			return nil, fmt.Errorf("runtime: subscriber OnTrace for tile %s: %w", tileDef.ID, err)
		}
	}

	return results, nil
}

func modeLabel(mode backend.ExecutionMode) string {
	if mode.Kind == backend.ProveMode {
		return "prove"
	}
	return "estimate"
}
