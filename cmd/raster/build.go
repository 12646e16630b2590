package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/raster-lang/raster/internal/artifact"
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/identity"
	"github.com/raster-lang/raster/internal/keys"
)

// runBuild implements `raster build`: compile every
// discovered tile (or one, with --tile) against the chosen backend,
// writing artifacts under the project's artifact root.
func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	backendName := fs.String("backend", "native", "backend to compile against (native or zkvm)")
	tileID := fs.String("tile", "", "build only this tile id; fails the whole operation on error")
	project := fs.String("project", ".", "project root")
	jobs := fs.Int("jobs", 1, "max parallel tile compiles (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*project)
	if err != nil {
		return err
	}
	result, schema, err := discoverAndBuildCFS(*project)
	if err != nil {
		return err
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

	inputs := buildInputsFor(result)

	if *tileID != "" {
		for _, in := range inputs {
			if in.Meta.TileID == *tileID {
				if _, err := builder.BuildOne(context.Background(), in); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "built %s (%s)\n", *tileID, *backendName)
				return nil
			}
		}
		return fmt.Errorf("no discovered tile named %q", *tileID)
	}

	results := builder.BuildAll(context.Background(), inputs, *jobs)
	var failures int
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "build %s: %v\n", r.TileID, r.Err)
			continue
		}
		fmt.Fprintf(os.Stdout, "built %s (%s)\n", r.TileID, *backendName)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d tiles failed to build", failures, len(results))
	}

	bindArtifactIdentities(schema, *backendName, results)
	schemaJSON, err := schema.ToJSON()
	if err != nil {
		return fmt.Errorf("build: rendering cfs.json: %w", err)
	}
	if err := artifact.WriteFile(artifactRoot(*project, cfg), "cfs.json", schemaJSON); err != nil {
		return fmt.Errorf("build: writing cfs.json: %w", err)
	}

	checkpoint, err := signBuildCheckpoint(*project, schema, results)
	if err != nil {
		return fmt.Errorf("build: signing build checkpoint: %w", err)
	}
	if err := artifact.WriteFile(artifactRoot(*project, cfg), "checkpoint", checkpoint); err != nil {
		return fmt.Errorf("build: writing build checkpoint: %w", err)
	}
	return nil
}

// bindArtifactIdentities records each successfully built tile's method
// id in the schema's optional per-backend identity map, so verifier
// tooling reading cfs.json can check a receipt against the exact
// artifact the build produced.
func bindArtifactIdentities(schema *cfs.ControlFlowSchema, backendName string, results []artifact.BuildResult) {
	byID := make(map[string][]byte, len(results))
	for _, r := range results {
		if r.Err == nil {
			byID[r.TileID] = r.Output.MethodID
		}
	}
	for i := range schema.Tiles {
		methodID, ok := byID[schema.Tiles[i].ID]
		if !ok {
			continue
		}
		if schema.Tiles[i].ArtifactIdentity == nil {
			schema.Tiles[i].ArtifactIdentity = make(map[string][]byte, 1)
		}
		schema.Tiles[i].ArtifactIdentity[backendName] = methodID
	}
}

// signBuildCheckpoint renders and signs a tamper-evident summary of a
// successful full build: a manifest root over every built tile's
// method id (reusing the commitment tree engine) plus a digest of the
// CFS that was built against, signed as a note. The signing key lives at
// <project>/.raster/checkpoint.key, generated on first use: a build
// checkpoint has no external verifier to coordinate with, so a
// per-project key is sufficient.
func signBuildCheckpoint(project string, schema *cfs.ControlFlowSchema, results []artifact.BuildResult) ([]byte, error) {
	manifestRoot, err := artifact.ManifestRoot(results)
	if err != nil {
		return nil, err
	}
	schemaJSON, err := schema.ToJSON()
	if err != nil {
		return nil, err
	}
	cfsDigest := identity.H(schemaJSON)

	keyPath := filepath.Join(project, ".raster", "checkpoint.key")
	signer, err := keys.LoadPrivate(keyPath)
	if err != nil {
		pair, genErr := keys.Generate("raster-build-checkpoint")
		if genErr != nil {
			return nil, fmt.Errorf("generating checkpoint signing key: %w", genErr)
		}
		if mkErr := os.MkdirAll(filepath.Dir(keyPath), 0o755); mkErr != nil {
			return nil, fmt.Errorf("creating key directory: %w", mkErr)
		}
		if saveErr := pair.Save(keyPath); saveErr != nil {
			return nil, fmt.Errorf("saving checkpoint signing key: %w", saveErr)
		}
		signer, err = pair.Signer()
		if err != nil {
			return nil, err
		}
	}

	text := fmt.Sprintf("raster-checkpoint/v1\nmanifest_root %x\ncfs_digest %x\n",
		manifestRoot.Bytes(), cfsDigest.Bytes())
	return keys.SignCheckpoint(signer, text)
}
