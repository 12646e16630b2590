// Package backend defines the abstract compile/execute/verify contract
// every tile execution backend implements, plus the shared types that
// cross the contract boundary: a small collaborator abstracted behind
// a handful of methods, with one production implementation and one
// in-process implementation swapped in for development and tests.
package backend

import (
	"context"

	"github.com/raster-lang/raster/internal/cfs"
)

// Metadata is what a backend needs to know about a tile to compile it,
// independent of the tile's source bytes.
type Metadata struct {
	TileID          cfs.TileID
	Kind            cfs.TileKind
	Inputs          uint32
	Outputs         uint32
	EstimatedCycles *uint64
	MaxMemory       *uint64
}

// CompilationOutput is what compiling one tile against one backend
// produces.
type CompilationOutput struct {
	Image []byte
	// MethodID is opaque, backend-scoped bytes. For the zkVM backend
	// it MUST be derivable from Image.
	MethodID []byte
	// ArtifactDir is set by a backend that wrote supporting files beyond
	// the image/method_id/manifest triple the Artifact Builder already
	// persists. When a backend leaves it empty, the Artifact Builder
	// fills it with the tile's artifact directory.
	ArtifactDir string
}

// ExecutionModeKind discriminates Estimate from Prove.
type ExecutionModeKind int

const (
	EstimateMode ExecutionModeKind = iota
	ProveMode
)

// ExecutionMode selects between a cheap cycle estimate and a full
// proving run, optionally with local verification.
type ExecutionMode struct {
	Kind   ExecutionModeKind
	Verify bool // meaningful only when Kind == ProveMode
}

// Estimate constructs the Estimate execution mode.
func Estimate() ExecutionMode { return ExecutionMode{Kind: EstimateMode} }

// Prove constructs the Prove execution mode, optionally requesting
// local receipt verification.
func Prove(verify bool) ExecutionMode { return ExecutionMode{Kind: ProveMode, Verify: verify} }

// TileExecution is the result of one ExecuteTile call.
type TileExecution struct {
	Output      []byte
	Cycles      *uint64
	ProofCycles *uint64
	Receipt     []byte
	// Verified is set only in Prove mode: Some(ok) if verification was
	// requested, Some(false) as a "not verified" indicator (not a
	// failure) if it was not requested, nil in Estimate mode.
	Verified *bool
}

// Backend is the abstract contract for compiling, executing, and
// verifying one tile.
type Backend interface {
	// Name is a stable backend identifier, e.g. "native" or "zkvm".
	Name() string

	// CompileTile is deterministic given pinned inputs.
	CompileTile(ctx context.Context, meta Metadata, sourcePath string) (CompilationOutput, error)

	// ExecuteTile runs one tile invocation under the given mode.
	ExecuteTile(ctx context.Context, compilation CompilationOutput, input []byte, mode ExecutionMode) (TileExecution, error)

	// VerifyReceipt reports whether receipt is valid for the image
	// identity derivable from compilation.
	VerifyReceipt(ctx context.Context, compilation CompilationOutput, receipt []byte) (bool, error)
}

// ProofCycles computes the reported proving cost: proof_cycles, when
// reported, equals max(2^16, next_power_of_two(cycles)).
func ProofCycles(cycles uint64) uint64 {
	const floor = 1 << 16
	p := nextPowerOfTwo(cycles)
	if p < floor {
		return floor
	}
	return p
}

func nextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
