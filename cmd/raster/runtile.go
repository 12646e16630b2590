package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/raster-lang/raster/internal/artifact"
	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/codec"
)

// runRunTile implements `raster run-tile`: compile (or
// load from cache) one tile against the chosen backend, then execute
// it once under Estimate or Prove mode.
func runRunTile(args []string) error {
	fs := flag.NewFlagSet("run-tile", flag.ContinueOnError)
	backendName := fs.String("backend", "native", "backend to run against")
	tileID := fs.String("tile", "", "tile id to run (required)")
	input := fs.String("input", "[]", "JSON array of ABI arguments")
	prove := fs.Bool("prove", false, "run under Prove mode instead of Estimate")
	verify := fs.Bool("verify", false, "request local receipt verification (meaningful only with --prove)")
	project := fs.String("project", ".", "project root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tileID == "" {
		return fmt.Errorf("run-tile: --tile is required")
	}

	cfg, err := loadConfig(*project)
	if err != nil {
		return err
	}
	result, _, err := discoverAndBuildCFS(*project)
	if err != nil {
		return err
	}

	var tileInput artifact.TileBuildInput
	found := false
	for _, in := range buildInputsFor(result) {
		if in.Meta.TileID == *tileID {
			tileInput = in
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no discovered tile named %q", *tileID)
	}

	be, err := resolveBackend(*backendName, cfg)
	if err != nil {
		return err
	}

	builder, err := artifact.New(be, artifactRoot(*project, cfg))
	if err != nil {
		return err
	}
	defer builder.Close()

	compilation, err := builder.BuildOne(context.Background(), tileInput)
	if err != nil {
		return err
	}

	args2, err := decodeJSONInput(*input)
	if err != nil {
		return err
	}
	encoded, err := codec.EncodeArgs(int(tileInput.Meta.Inputs), args2)
	if err != nil {
		return err
	}

	mode := backend.Estimate()
	if *prove {
		mode = backend.Prove(*verify)
	}

	exec, err := be.ExecuteTile(context.Background(), compilation, encoded, mode)
	if err != nil {
		return err
	}

	outputs, decodeErr := codec.DecodeArgs(int(tileInput.Meta.Outputs), exec.Output)

	report := struct {
		Output      []codec.Value `json:"output,omitempty"`
		RawOutput   []byte        `json:"raw_output"`
		Cycles      *uint64       `json:"cycles,omitempty"`
		ProofCycles *uint64       `json:"proof_cycles,omitempty"`
		Verified    *bool         `json:"verified,omitempty"`
	}{
		RawOutput:   exec.Output,
		Cycles:      exec.Cycles,
		ProofCycles: exec.ProofCycles,
		Verified:    exec.Verified,
	}
	if decodeErr == nil {
		report.Output = outputs
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
