package cfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/mod/modfile"

	"github.com/raster-lang/raster/internal/discovery"
	"github.com/raster-lang/raster/internal/flow"
)

const (
	version  = "1.0"
	encoding = "canonical/v1"
)

// Build assembles a ControlFlowSchema from a Discovery result,
// resolving every sequence's call-site arguments through the flow
// resolver. The project name is derived from the project root's build
// metadata (its go.mod module path) or, failing that, the directory
// name.
func Build(root string, result *discovery.Result) (*ControlFlowSchema, error) {
	tileIDs := make(map[string]bool, len(result.Tiles))
	for _, t := range result.Tiles {
		tileIDs[t.ID] = true
	}
	sequenceIDs := make(map[string]bool, len(result.Sequences))
	for _, s := range result.Sequences {
		sequenceIDs[s.ID] = true
	}

	tiles := make([]TileDef, len(result.Tiles))
	for i, t := range result.Tiles {
		tiles[i] = TileDef{
			ID:      t.ID,
			Kind:    t.Kind,
			Inputs:  t.Inputs,
			Outputs: t.Outputs,
		}
	}

	sequences := make([]SequenceDef, len(result.Sequences))
	for i, s := range result.Sequences {
		inputSources := make([]InputBinding, len(s.ParamNames))
		for j := range s.ParamNames {
			inputSources[j] = NewExternal()
		}

		resolved := flow.Resolve(s, tileIDs, sequenceIDs)
		items := make([]Item, len(resolved))
		for j, r := range resolved {
			items[j] = Item{
				Kind:         r.Kind,
				Callee:       r.Callee,
				InputSources: r.InputSources,
			}
		}

		sequences[i] = SequenceDef{
			ID:           s.ID,
			InputSources: inputSources,
			Items:        items,
		}
	}

	return &ControlFlowSchema{
		Version:   version,
		Project:   projectName(root),
		Encoding:  encoding,
		Tiles:     tiles,
		Sequences: sequences,
	}, nil
}

// projectName derives the CFS "project" field from the project root's
// go.mod module path, falling back to the directory's base name. This
// reuses golang.org/x/mod (already in the dependency graph for
// internal/commitment's tlog package) rather than hand-rolling a
// go.mod line scanner.
func projectName(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err == nil {
		if mf, err := modfile.ParseLax("go.mod", data, nil); err == nil && mf.Module != nil {
			return mf.Module.Mod.Path
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return filepath.Base(abs)
}

// ValidateBindings checks every SeqInput and ItemOutput binding in the
// schema against the binding invariants: SeqInput
// indices stay within the enclosing sequence's parameter count, and
// ItemOutput indices only reference prior items and their declared
// output arity.
func ValidateBindings(c *ControlFlowSchema) []error {
	var errs []error
	for _, seq := range c.Sequences {
		checkBindings(c, seq.ID, seq.InputSources, len(seq.InputSources), -1, &errs)
		for itemIndex, item := range seq.Items {
			checkBindings(c, seq.ID, item.InputSources, len(seq.InputSources), itemIndex, &errs)
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

func checkBindings(c *ControlFlowSchema, seqID string, bindings []InputBinding, paramCount int, currentItemIndex int, errs *[]error) {
	for _, b := range bindings {
		switch b.Kind {
		case SeqInput:
			if int(b.InputIndex) >= paramCount {
				*errs = append(*errs, bindingError(seqID, "seq_input index %d out of range (sequence has %d inputs)", b.InputIndex, paramCount))
			}
		case ItemOutput:
			if currentItemIndex >= 0 && int(b.ItemIndex) >= currentItemIndex {
				*errs = append(*errs, bindingError(seqID, "item_output references item %d from item %d (must be strictly prior)", b.ItemIndex, currentItemIndex))
				continue
			}
			seq, ok := c.SequenceByID(seqID)
			if !ok || int(b.ItemIndex) >= len(seq.Items) {
				*errs = append(*errs, bindingError(seqID, "item_output references out-of-range item %d", b.ItemIndex))
				continue
			}
			callee := seq.Items[b.ItemIndex].Callee
			arity, ok := c.OutputArity(callee)
			if !ok || b.OutputIndex >= arity {
				*errs = append(*errs, bindingError(seqID, "item_output references output %d of item %d (%q has %d outputs)", b.OutputIndex, b.ItemIndex, callee, arity))
			}
		}
	}
}

type bindingValidationError struct {
	seqID string
	msg   string
}

func (e *bindingValidationError) Error() string {
	return "sequence " + e.seqID + ": " + e.msg
}

func bindingError(seqID, format string, args ...any) error {
	return &bindingValidationError{seqID: seqID, msg: fmt.Sprintf(format, args...)}
}
