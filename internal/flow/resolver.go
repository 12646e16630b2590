// Package flow resolves a discovered sequence's data flow: every call
// argument token becomes an InputSource, and each call site is
// classified as a tile or sequence invocation.
package flow

import (
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/discovery"
)

// ResolvedItem is one call site after argument resolution.
type ResolvedItem struct {
	Kind         cfs.ItemKind
	Callee       string
	InputSources []cfs.InputBinding
}

// Resolve resolves every item in seq against the set of all discovered
// tile and sequence ids. Resolution order is fixed: a parameter name
// match wins over a prior result-binding match, which wins over
// falling through to External.
func Resolve(seq discovery.Sequence, tileIDs, sequenceIDs map[string]bool) []ResolvedItem {
	bound := make(map[string]int, len(seq.Items)) // result_binding -> item index
	out := make([]ResolvedItem, 0, len(seq.Items))

	for itemIndex, call := range seq.Items {
		sources := make([]cfs.InputBinding, len(call.Arguments))
		for i, tok := range call.Arguments {
			sources[i] = resolveToken(tok, seq.ParamNames, bound)
		}

		// A callee matching neither known set falls back to Tile.
		kind := cfs.TileItem
		if !tileIDs[call.Callee] && sequenceIDs[call.Callee] {
			kind = cfs.SequenceItem
		}

		out = append(out, ResolvedItem{
			Kind:         kind,
			Callee:       call.Callee,
			InputSources: sources,
		})

		if call.ResultBinding != nil {
			bound[*call.ResultBinding] = itemIndex
		}
	}
	return out
}

func resolveToken(tok string, params []string, bound map[string]int) cfs.InputBinding {
	for i, p := range params {
		if p == tok {
			return cfs.NewSeqInput(uint32(i))
		}
	}
	if itemIndex, ok := bound[tok]; ok {
		// Only output index 0 is modeled today.
		return cfs.NewItemOutput(uint32(itemIndex), 0)
	}
	return cfs.NewExternal()
}
