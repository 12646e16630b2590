package zkvm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/raster-lang/raster/internal/rasterrors"
)

// ExecutorResult is one guest run's raw outcome, as reported by an
// Executor. Receipt is nil in Estimate mode.
type ExecutorResult struct {
	Journal []byte
	Cycles  uint64
	Receipt []byte
}

// Executor abstracts the zkVM prover itself. The zkVM Backend owns
// guest synthesis, toolchain invocation, and host/guest framing; it
// delegates only the actual execute/prove/verify step to this
// interface, the same way Discovery delegates parsing to an
// ASTProvider.
type Executor interface {
	// Run executes image against framedInput (already framed per
	// the u32_le(L) || input convention) and returns its
	// journal and cycle count. No receipt is produced.
	Run(ctx context.Context, image []byte, framedInput []byte) (ExecutorResult, error)

	// Prove executes image and additionally produces an opaque,
	// backend-scoped receipt.
	Prove(ctx context.Context, image []byte, framedInput []byte) (ExecutorResult, error)

	// VerifyReceipt reports whether receipt is a valid proof of
	// correct execution of image. Deserialization or image-id
	// failures must be returned as errors, never folded into a false
	// result.
	VerifyReceipt(ctx context.Context, image []byte, receipt []byte) (bool, error)
}

// SubprocessExecutor drives the same toolchain-discovered binary
// directory's "raster-zkvm-run" executable for Run/Prove/VerifyReceipt,
// exchanging a small JSON envelope over stdin/stdout so the prover
// process itself stays entirely external to this module (per the
// spec's explicit scope boundary).
type SubprocessExecutor struct {
	Path string // toolchain root, as returned by DiscoverToolchainPath
}

type runRequest struct {
	Mode        string `json:"mode"` // "run", "prove", or "verify"
	ImagePath   string `json:"image_path"`
	FramedInput []byte `json:"framed_input,omitempty"`
	Receipt     []byte `json:"receipt,omitempty"`
}

type runResponse struct {
	Journal  []byte `json:"journal"`
	Cycles   uint64 `json:"cycles"`
	Receipt  []byte `json:"receipt,omitempty"`
	Verified *bool  `json:"verified,omitempty"`
}

func (e SubprocessExecutor) invoke(ctx context.Context, req runRequest) (runResponse, error) {
	bin := filepath.Join(e.Path, "bin", "raster-zkvm-run")

	payload, err := json.Marshal(req)
	if err != nil {
		return runResponse{}, fmt.Errorf("zkvm: marshaling executor request: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, "--mode", req.Mode)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return runResponse{}, fmt.Errorf("zkvm: executor subprocess failed: %s: %w", stderr.String(), err)
	}

	var resp runResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return runResponse{}, fmt.Errorf("zkvm: parsing executor response: %w", err)
	}
	return resp, nil
}

func (e SubprocessExecutor) Run(ctx context.Context, image []byte, framedInput []byte) (ExecutorResult, error) {
	imagePath, cleanup, err := writeTempImage(image)
	if err != nil {
		return ExecutorResult{}, err
	}
	defer cleanup()

	resp, err := e.invoke(ctx, runRequest{Mode: "run", ImagePath: imagePath, FramedInput: framedInput})
	if err != nil {
		return ExecutorResult{}, rasterrors.Wrap(rasterrors.BackendExecute, "estimating execution", err)
	}
	return ExecutorResult{Journal: resp.Journal, Cycles: resp.Cycles}, nil
}

func (e SubprocessExecutor) Prove(ctx context.Context, image []byte, framedInput []byte) (ExecutorResult, error) {
	imagePath, cleanup, err := writeTempImage(image)
	if err != nil {
		return ExecutorResult{}, err
	}
	defer cleanup()

	resp, err := e.invoke(ctx, runRequest{Mode: "prove", ImagePath: imagePath, FramedInput: framedInput})
	if err != nil {
		return ExecutorResult{}, rasterrors.Wrap(rasterrors.BackendExecute, "proving execution", err)
	}
	return ExecutorResult{Journal: resp.Journal, Cycles: resp.Cycles, Receipt: resp.Receipt}, nil
}

func (e SubprocessExecutor) VerifyReceipt(ctx context.Context, image []byte, receipt []byte) (bool, error) {
	imagePath, cleanup, err := writeTempImage(image)
	if err != nil {
		return false, err
	}
	defer cleanup()

	resp, err := e.invoke(ctx, runRequest{Mode: "verify", ImagePath: imagePath, Receipt: receipt})
	if err != nil {
		return false, rasterrors.Wrap(rasterrors.Verification, "verifying receipt", err)
	}
	if resp.Verified == nil {
		return false, rasterrors.New(rasterrors.Verification, "executor did not report a verification result")
	}
	return *resp.Verified, nil
}

// writeTempImage spills image bytes to a scratch file for handoff to
// the subprocess executor, which takes a path rather than a stdin
// stream so very large images don't round-trip through the JSON
// envelope.
func writeTempImage(image []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "raster-guest-image-*")
	if err != nil {
		return "", nil, fmt.Errorf("zkvm: creating scratch image file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(image); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("zkvm: writing scratch image file: %w", err)
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
