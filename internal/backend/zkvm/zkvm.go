// Package zkvm implements the zkVM backend: it
// synthesizes a guest program per tile, drives an external toolchain
// to produce a target image, derives the tile's method id from that
// image, and executes/proves/verifies through an Executor that
// abstracts the prover itself. Produced images and their method-id index
// are optionally mirrored to S3/DynamoDB so a build fleet shares one
// content-addressed store (a blob store plus an index table).
package zkvm

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/identity"
	"github.com/raster-lang/raster/internal/rasterrors"
)

// Backend is the zkVM tile execution backend.
type Backend struct {
	Toolchain Toolchain
	Executor  Executor

	// Images and Index are optional; when both are nil, CompileTile
	// persists nothing beyond what the Artifact Builder already writes
	// to the local artifact directory.
	Images *ImageStore
	Index  *MethodIndex
}

// New constructs a zkVM Backend. toolchain and executor must not be
// nil; images and index may be nil to disable the optional S3/DynamoDB
// mirror.
func New(toolchain Toolchain, executor Executor, images *ImageStore, index *MethodIndex) *Backend {
	return &Backend{Toolchain: toolchain, Executor: executor, Images: images, Index: index}
}

func (b *Backend) Name() string { return "zkvm" }

// CompileTile synthesizes the guest plan, drives the toolchain,
// derives method_id = IMAGE_ID(image), and optionally mirrors both to
// the shared content store.
func (b *Backend) CompileTile(ctx context.Context, meta backend.Metadata, _ string) (backend.CompilationOutput, error) {
	plan := BuildGuestPlan(meta)

	image, err := b.Toolchain.Build(ctx, plan)
	if err != nil {
		return backend.CompilationOutput{}, err // already a rasterrors.BackendCompile
	}
	if len(image) == 0 {
		return backend.CompilationOutput{}, rasterrors.New(rasterrors.BackendCompile, "toolchain produced an empty image for tile "+meta.TileID)
	}

	methodID := identity.ImageID(image)

	if b.Images != nil || b.Index != nil {
		if err := persistArtifact(ctx, b.Images, b.Index, meta.TileID, b.Name(), methodIDHex(methodID), image); err != nil {
			return backend.CompilationOutput{}, rasterrors.Wrap(rasterrors.BackendCompile, "mirroring compiled artifact", err)
		}
	}

	return backend.CompilationOutput{
		Image:    image,
		MethodID: methodID.Bytes(),
	}, nil
}

// ExecuteTile frames the input per the host→guest wire convention,
// then runs or proves depending on mode.
func (b *Backend) ExecuteTile(ctx context.Context, compilation backend.CompilationOutput, input []byte, mode backend.ExecutionMode) (backend.TileExecution, error) {
	framed := frameInput(input)

	if mode.Kind == backend.EstimateMode {
		result, err := b.Executor.Run(ctx, compilation.Image, framed)
		if err != nil {
			return backend.TileExecution{}, err // already a rasterrors.BackendExecute
		}
		proofCycles := backend.ProofCycles(result.Cycles)
		return backend.TileExecution{
			Output:      result.Journal,
			Cycles:      &result.Cycles,
			ProofCycles: &proofCycles,
		}, nil
	}

	result, err := b.Executor.Prove(ctx, compilation.Image, framed)
	if err != nil {
		return backend.TileExecution{}, err
	}
	proofCycles := backend.ProofCycles(result.Cycles)
	exec := backend.TileExecution{
		Output:      result.Journal,
		Cycles:      &result.Cycles,
		ProofCycles: &proofCycles,
		Receipt:     result.Receipt,
	}

	if !mode.Verify {
		// "Not verified" (verification was never attempted), distinct
		// from "verification failed"; callers MUST tell them apart.
		notVerified := false
		exec.Verified = &notVerified
		return exec, nil
	}

	ok, err := b.Executor.VerifyReceipt(ctx, compilation.Image, result.Receipt)
	if err != nil {
		return backend.TileExecution{}, rasterrors.Wrap(rasterrors.Verification, "local receipt verification", err)
	}
	exec.Verified = &ok
	return exec, nil
}

// VerifyReceipt passes compilation.Image and the receipt to the
// Executor, which checks the receipt against that image; the Backend
// computes no image id itself here. Executor errors (deserialization
// or image-id failures) surface as typed Verification errors, never as
// a plain false.
func (b *Backend) VerifyReceipt(ctx context.Context, compilation backend.CompilationOutput, receipt []byte) (bool, error) {
	ok, err := b.Executor.VerifyReceipt(ctx, compilation.Image, receipt)
	if err != nil {
		return false, rasterrors.Wrap(rasterrors.Verification, "verifying receipt", err)
	}
	return ok, nil
}

// frameInput implements the host half of the host↔guest framing: a
// u32_le length prefix followed by exactly that many raw bytes.
func frameInput(input []byte) []byte {
	framed := make([]byte, 4+len(input))
	binary.LittleEndian.PutUint32(framed[:4], uint32(len(input)))
	copy(framed[4:], input)
	return framed
}

func methodIDHex(h identity.Hash) string {
	return fmt.Sprintf("%x", h.Bytes())
}
