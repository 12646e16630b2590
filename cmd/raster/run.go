package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/raster-lang/raster/internal/artifact"
	"github.com/raster-lang/raster/internal/backend"
	"github.com/raster-lang/raster/internal/backend/native"
	"github.com/raster-lang/raster/internal/cfs"
	"github.com/raster-lang/raster/internal/metrics"
	"github.com/raster-lang/raster/internal/rasterrors"
	"github.com/raster-lang/raster/internal/runtime"
	"github.com/raster-lang/raster/internal/trace"
)

// runRun implements `raster run`: drive the entry
// sequence to completion against the Native backend, emitting its
// trace as JSON by default, or committing/auditing it when --commit
// or --audit names a packed-stream path.
func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	backendName := fs.String("backend", "native", "backend to run against (only native supports whole-program run)")
	input := fs.String("input", "[]", "JSON array of the entry sequence's external arguments")
	commitPath := fs.String("commit", "", "write a packed commitment stream to this path instead of a JSON trace")
	auditPath := fs.String("audit", "", "audit the run against a previously recorded packed commitment stream")
	project := fs.String("project", ".", "project root")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *commitPath != "" && *auditPath != "" {
		return fmt.Errorf("run: --commit and --audit are mutually exclusive")
	}
	if *backendName != "" && *backendName != "native" {
		return fmt.Errorf("run: whole-program run only supports the native backend")
	}

	cfg, err := loadConfig(*project)
	if err != nil {
		return err
	}
	result, schema, err := discoverAndBuildCFS(*project)
	if err != nil {
		return err
	}

	be := native.New(nil)
	builder, err := artifact.New(be, artifactRoot(*project, cfg))
	if err != nil {
		return err
	}
	defer builder.Close()

	compilations := make(map[cfs.TileID]backend.CompilationOutput, len(result.Tiles))
	for _, in := range buildInputsFor(result) {
		out, err := builder.BuildOne(context.Background(), in)
		if err != nil {
			return err
		}
		compilations[in.Meta.TileID] = out
	}

	args2, err := decodeJSONInput(*input)
	if err != nil {
		return err
	}

	var subs []trace.Subscriber
	var cleanup func()
	switch {
	case *commitPath != "":
		f, err := os.Create(*commitPath)
		if err != nil {
			return fmt.Errorf("creating commit output %s: %w", *commitPath, err)
		}
		committer, err := trace.NewCommitter(f, cfg.Commitment.BitsPerItem)
		if err != nil {
			f.Close()
			return err
		}
		subs = append(subs, committer)
		cleanup = func() { f.Close() }
	case *auditPath != "":
		f, err := os.Open(*auditPath)
		if err != nil {
			return fmt.Errorf("opening expected audit stream %s: %w", *auditPath, err)
		}
		auditor, err := trace.NewAuditor(f, cfg.Commitment.BitsPerItem)
		if err != nil {
			f.Close()
			return err
		}
		subs = append(subs, auditor)
		cleanup = func() { f.Close() }
	default:
		subs = append(subs, trace.NewJsonEmitter(os.Stdout))
		cleanup = func() {}
	}
	defer cleanup()

	program := runtime.NewProgram(schema, be, compilations, subs...)
	_, err = program.Run(context.Background(), cfs.EntrySequenceID, args2)
	if *auditPath != "" {
		metrics.ObserveAudit(auditOutcome(err))
	}
	if err != nil {
		var mismatch *rasterrors.AuditMismatchError
		if errors.As(err, &mismatch) {
			return auditMismatchExit{err: err}
		}
		return err
	}
	return nil
}

func auditOutcome(err error) string {
	if err != nil {
		return metrics.AuditMismatch
	}
	return metrics.AuditPass
}
