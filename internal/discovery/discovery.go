// Package discovery scans a project tree, parses source through an
// abstract ASTProvider, and extracts tile and sequence definitions and
// their call graphs, deterministically.
package discovery

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/rasterrors"
)

// Tile is one discovered tile: its static shape plus the source file
// it came from, used later as the Artifact Builder's fingerprint
// input.
type Tile struct {
	ID              cfs.TileID
	Kind            cfs.TileKind
	Inputs          uint32
	Outputs         uint32
	SourceFile      string
	EstimatedCycles *uint64
	MaxMemory       *uint64
	Description     string
}

// Sequence is one discovered sequence: its parameter list and ordered
// call sites.
type Sequence struct {
	ID          cfs.SequenceID
	ParamNames  []string
	Items       []CallSite
	SourceFile  string
	Description string
}

// Result is the full, deterministically-ordered output of a Discovery
// pass.
type Result struct {
	Tiles     []Tile
	Sequences []Sequence
}

// Diagnostic is a recoverable, non-fatal finding surfaced during
// Discovery: a file that failed to parse, or a tile/sequence attribute
// that was malformed.
type Diagnostic struct {
	File    string
	Message string
	Err     error
}

func (d Diagnostic) String() string {
	if d.Err != nil {
		return fmt.Sprintf("%s: %s: %v", d.File, d.Message, d.Err)
	}
	return fmt.Sprintf("%s: %s", d.File, d.Message)
}

// Discover walks every source file under root, in lexicographic order,
// asks provider for each file's functions, and extracts tile and
// sequence definitions. Authoring order is preserved within a file;
// the overall Tiles/Sequences lists are additionally sorted by id so
// output is deterministic even if file traversal order can't be
// trusted end to end.
//
// An unreadable root is a fatal I/O error. A parser failure on one
// file is recovered by skipping that file with a diagnostic. Empty
// discovery (no tiles, no sequences) is success.
func Discover(root string, provider ASTProvider, log *slog.Logger) (*Result, []Diagnostic, error) {
	if log == nil {
		log = slog.Default()
	}
	files, err := sourceFiles(root)
	if err != nil {
		return nil, nil, rasterrors.Wrap(rasterrors.Io, fmt.Sprintf("walking project root %s", root), err)
	}

	var diags []Diagnostic
	var tiles []Tile
	var sequences []Sequence

	for _, path := range files {
		functions, err := provider.FunctionsInFile(path)
		if err != nil {
			diags = append(diags, Diagnostic{File: path, Message: "parse failed, skipping file", Err: err})
			log.Warn("discovery: skipping file after parse failure", "file", path, "error", err)
			continue
		}
		for _, fn := range functions {
			switch {
			case fn.HasAttr("tile"):
				t, diag, ok := buildTile(fn, path)
				if !ok {
					diags = append(diags, diag)
					log.Warn("discovery: skipping malformed tile", "file", path, "tile", fn.Name, "error", diag.Err)
					continue
				}
				tiles = append(tiles, t)
			case fn.HasAttr("sequence"):
				sequences = append(sequences, buildSequence(fn, path))
			}
		}
	}

	sort.Slice(tiles, func(i, j int) bool { return tiles[i].ID < tiles[j].ID })
	sort.Slice(sequences, func(i, j int) bool { return sequences[i].ID < sequences[j].ID })

	return &Result{Tiles: tiles, Sequences: sequences}, diags, nil
}

func sourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (name == "vendor" || name == "target" || name[0] == '.') {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) == ".go" && !isTestFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isTestFile(path string) bool {
	base := filepath.Base(path)
	n := len(base)
	return n > len("_test.go") && base[n-len("_test.go"):] == "_test.go"
}

func buildTile(fn FunctionInfo, path string) (Tile, Diagnostic, bool) {
	attrs := fn.Attrs["tile"]

	kind := cfs.Iter
	if kindStr, ok := attrs["kind"]; ok {
		switch kindStr {
		case "iter":
			kind = cfs.Iter
		case "recur":
			kind = cfs.Recur
		default:
			return Tile{}, Diagnostic{
				File:    path,
				Message: fmt.Sprintf("tile %q: unknown kind %q", fn.Name, kindStr),
				Err:     rasterrors.New(rasterrors.Discovery, "unknown kind value"),
			}, false
		}
	}

	inputs := uint32(len(fn.Inputs))
	outputs := uint32(fn.Outputs)

	if kind == cfs.Recur && outputs != inputs+1 {
		return Tile{}, Diagnostic{
			File:    path,
			Message: fmt.Sprintf("recur tile %q must have output_arity = input_arity + 1, got inputs=%d outputs=%d", fn.Name, inputs, outputs),
			Err:     rasterrors.New(rasterrors.Discovery, "recur arity invariant violated"),
		}, false
	}

	t := Tile{
		ID:         fn.Name,
		Kind:       kind,
		Inputs:     inputs,
		Outputs:    outputs,
		SourceFile: path,
	}
	if v, ok := attrs["estimated_cycles"]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Tile{}, Diagnostic{
				File: path, Message: fmt.Sprintf("tile %q: invalid estimated_cycles %q", fn.Name, v),
				Err: rasterrors.Wrap(rasterrors.Discovery, "invalid estimated_cycles", err),
			}, false
		}
		t.EstimatedCycles = &n
	}
	if v, ok := attrs["max_memory"]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Tile{}, Diagnostic{
				File: path, Message: fmt.Sprintf("tile %q: invalid max_memory %q", fn.Name, v),
				Err: rasterrors.Wrap(rasterrors.Discovery, "invalid max_memory", err),
			}, false
		}
		t.MaxMemory = &n
	}
	t.Description = attrs["description"]

	return t, Diagnostic{}, true
}

func buildSequence(fn FunctionInfo, path string) Sequence {
	attrs := fn.Attrs["sequence"]
	names := make([]string, len(fn.Inputs))
	for i, p := range fn.Inputs {
		names[i] = p.Name
	}
	return Sequence{
		ID:          fn.Name,
		ParamNames:  names,
		Items:       fn.CallSites,
		SourceFile:  path,
		Description: attrs["description"],
	}
}
