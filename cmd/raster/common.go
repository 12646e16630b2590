package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/raster-lang/raster/internal/artifact"
	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/backend/native"
	"github.com/raster-lang/raster/internal/backend/zkvm"
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/codec"
	"github.com/raster-lang/raster/internal/config"
	"github.com/raster-lang/raster/internal/discovery"
)

// artifactRoot returns the default artifact root under a project:
// <project_root>/target/raster, unless cfg overrides it.
func artifactRoot(project string, cfg config.Config) string {
	if cfg.ArtifactRoot != "" {
		return cfg.ArtifactRoot
	}
	return filepath.Join(project, "target", "raster")
}

// loadConfig reads raster.yaml from the project root, applying
// defaults when absent.
func loadConfig(project string) (config.Config, error) {
	return config.Load(filepath.Join(project, "raster.yaml"))
}

// discoverAndBuildCFS runs Discovery + CFS Builder end to end, logging
// any recoverable per-file diagnostics at Warn level rather than
// failing the whole build.
func discoverAndBuildCFS(project string) (*discovery.Result, *cfs.ControlFlowSchema, error) {
	result, diags, err := discovery.Discover(project, discovery.GoASTProvider{}, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	for _, d := range diags {
		slog.Warn("discovery diagnostic", "detail", d.String())
	}

	schema, err := cfs.Build(project, result)
	if err != nil {
		return nil, nil, err
	}
	if errs := cfs.ValidateBindings(schema); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("cfs binding validation failed", "error", e)
		}
		return nil, nil, fmt.Errorf("cfs: %d binding validation error(s), first: %w", len(errs), errs[0])
	}
	return result, schema, nil
}

// resolveBackend constructs the named backend. "native" needs no
// further configuration; "zkvm" is wired against the toolchain
// discovered via RASTER_ZKVM_TOOLCHAIN or the per-user toolchain
// directory and, when raster.yaml names a bucket/table,
// the optional S3/DynamoDB mirror.
func resolveBackend(name string, cfg config.Config) (backend.Backend, error) {
	switch name {
	case "", "native":
		return native.New(nil), nil
	case "zkvm":
		path, err := zkvm.DiscoverToolchainPath()
		if err != nil {
			return nil, err
		}
		toolchain := zkvm.SubprocessToolchain{Path: path}
		executor := zkvm.SubprocessExecutor{Path: path}

		// The S3/DynamoDB mirror is opt-in: only constructed when
		// raster.yaml names a bucket or a table, so `raster
		// build --backend zkvm` works against a bare local toolchain
		// with no cloud credentials configured.
		var images *zkvm.ImageStore
		var index *zkvm.MethodIndex
		if cfg.ZKVM.ImageBucket != "" || cfg.ZKVM.MethodIDsTable != "" {
			var opts []func(*awsconfig.LoadOptions) error
			if cfg.ZKVM.Region != "" {
				opts = append(opts, awsconfig.WithRegion(cfg.ZKVM.Region))
			}
			awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
			if err != nil {
				return nil, fmt.Errorf("loading aws config for zkvm artifact mirror: %w", err)
			}
			if cfg.ZKVM.ImageBucket != "" {
				images = zkvm.NewImageStore(awsCfg, cfg.ZKVM.ImageBucket)
			}
			if cfg.ZKVM.MethodIDsTable != "" {
				index = zkvm.NewMethodIndex(awsCfg, cfg.ZKVM.MethodIDsTable)
			}
		}
		return zkvm.New(toolchain, executor, images, index), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// buildInputsFor turns a Discovery result into the Artifact Builder's
// per-tile build requests.
func buildInputsFor(result *discovery.Result) []artifact.TileBuildInput {
	inputs := make([]artifact.TileBuildInput, len(result.Tiles))
	for i, t := range result.Tiles {
		inputs[i] = artifact.TileBuildInput{
			Meta: backend.Metadata{
				TileID:          t.ID,
				Kind:            t.Kind,
				Inputs:          t.Inputs,
				Outputs:         t.Outputs,
				EstimatedCycles: t.EstimatedCycles,
				MaxMemory:       t.MaxMemory,
			},
			SourcePath: t.SourceFile,
		}
	}
	return inputs
}

// decodeJSONInput parses a JSON array of tile ABI arguments (as the
// CLI's --input flag carries them) into codec.Values. Supported JSON
// shapes: a JSON number becomes Uint64, a JSON string becomes Bytes
// (its UTF-8 bytes), a JSON bool becomes Bool, and a JSON array
// becomes a nested Tuple.
func decodeJSONInput(raw string) ([]codec.Value, error) {
	if raw == "" {
		return nil, nil
	}
	var vals []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil, fmt.Errorf("parsing --input as a JSON array: %w", err)
	}
	out := make([]codec.Value, len(vals))
	for i, raw := range vals {
		v, err := jsonToValue(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func jsonToValue(raw json.RawMessage) (codec.Value, error) {
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return codec.Bool(asBool), nil
	}
	var asUint uint64
	if err := json.Unmarshal(raw, &asUint); err == nil {
		return codec.Uint64(asUint), nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return codec.Bytes([]byte(asString)), nil
	}
	var asArray []json.RawMessage
	if err := json.Unmarshal(raw, &asArray); err == nil {
		elems := make([]codec.Value, len(asArray))
		for i, e := range asArray {
			v, err := jsonToValue(e)
			if err != nil {
				return codec.Value{}, err
			}
			elems[i] = v
		}
		return codec.Tuple(elems...), nil
	}
	return codec.Value{}, fmt.Errorf("unsupported JSON value %s", raw)
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
