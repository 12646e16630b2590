package zkvm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/raster-lang/raster/internal/rasterrors"
)

// ToolchainEnvVar is the environment variable the zkVM backend honors
// for an explicit toolchain path override.
const ToolchainEnvVar = "RASTER_ZKVM_TOOLCHAIN"

// defaultToolchainDir is the well-known per-user toolchain directory
// searched when ToolchainEnvVar is unset.
func defaultToolchainDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".raster", "toolchains")
	}
	return filepath.Join(home, ".raster", "toolchains")
}

// DiscoverToolchainPath locates the toolchain: honor
// ToolchainEnvVar if set; otherwise list defaultToolchainDir()'s
// entries and select the lexicographically greatest one (so a
// directory of version-named subdirectories picks the newest by plain
// string ordering, e.g. "1.10.0" over "1.9.0" is NOT guaranteed;
// deployments are expected to name toolchain directories so that
// lexicographic order matches version order, e.g. zero-padded).
func DiscoverToolchainPath() (string, error) {
	if p := os.Getenv(ToolchainEnvVar); p != "" {
		return p, nil
	}
	dir := defaultToolchainDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", rasterrors.Wrap(rasterrors.BackendCompile, fmt.Sprintf("no %s set and no toolchain directory at %s", ToolchainEnvVar, dir), err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", rasterrors.New(rasterrors.BackendCompile, fmt.Sprintf("toolchain directory %s has no entries", dir))
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// Toolchain drives the external build tool that turns a GuestPlan
// into a target image. The concrete binary and its build protocol
// live outside this module, so the contract is kept to the one
// operation the rest of the backend depends on.
type Toolchain interface {
	Build(ctx context.Context, plan GuestPlan) (image []byte, err error)
}

// SubprocessToolchain drives a toolchain binary found under a
// discovered toolchain path: it writes the plan's manifest and entry
// source to a scratch build directory, invokes "<path>/bin/raster-
// zkvm-build" with that directory, and reads the produced image from
// its stdout.
type SubprocessToolchain struct {
	Path string // toolchain root, as returned by DiscoverToolchainPath
}

// Build implements Toolchain by shelling out to the discovered
// toolchain's build binary.
func (t SubprocessToolchain) Build(ctx context.Context, plan GuestPlan) ([]byte, error) {
	buildDir, err := os.MkdirTemp("", "raster-guest-"+plan.TileID+"-*")
	if err != nil {
		return nil, rasterrors.Wrap(rasterrors.Io, "creating guest build directory", err)
	}
	defer os.RemoveAll(buildDir)

	if err := os.WriteFile(filepath.Join(buildDir, "manifest.toml"), plan.ManifestSource, 0o644); err != nil {
		return nil, rasterrors.Wrap(rasterrors.Io, "writing guest manifest", err)
	}
	if err := os.WriteFile(filepath.Join(buildDir, "main.rs"), plan.EntrySource, 0o644); err != nil {
		return nil, rasterrors.Wrap(rasterrors.Io, "writing guest entry source", err)
	}

	bin := filepath.Join(t.Path, "bin", "raster-zkvm-build")
	cmd := exec.CommandContext(ctx, bin, "--channel", plan.ToolchainChannel, "--src", buildDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, rasterrors.Wrap(rasterrors.BackendCompile, fmt.Sprintf("building guest image for tile %s: %s", plan.TileID, stderr.String()), err)
	}
	return stdout.Bytes(), nil
}
