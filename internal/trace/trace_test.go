package trace

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/raster-lang/raster/internal/commitment"
	"github.com/raster-lang/raster/internal/rasterrors"
)

func traceItem(fn string) commitment.TraceItem {
	return commitment.TraceItem{
		FnName:        fn,
		Inputs:        []byte("in-" + fn),
		Outputs:       []byte("out-" + fn),
		SignatureMeta: commitment.SignatureMeta{Backend: "native", Mode: "estimate"},
	}
}

func runItems(t *testing.T, sub Subscriber, items []commitment.TraceItem) error {
	t.Helper()
	for _, it := range items {
		if err := sub.OnTrace(it); err != nil {
			return err
		}
	}
	return sub.OnComplete()
}

// TestJsonEmitterNoDelimiter checks that successive objects are
// concatenated with no separator, so the stream is parseable only by
// a streaming decoder, matching the fixed-format wire contract.
func TestJsonEmitterNoDelimiter(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewJsonEmitter(&buf)
	items := []commitment.TraceItem{traceItem("a"), traceItem("b")}
	if err := runItems(t, emitter, items); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Contains(out, "}\n{") || strings.Contains(out, "} {") {
		t.Fatalf("expected no delimiter between objects, got: %s", out)
	}
	if !strings.Contains(out, `"fn_name":"a"`) || !strings.Contains(out, `"fn_name":"b"`) {
		t.Fatalf("expected both items rendered, got: %s", out)
	}
	if !strings.Contains(out, `}{"fn_name":"b"`) {
		t.Fatalf("expected second object to begin immediately after first, got: %s", out)
	}
}

// TestCommitterAuditorRoundTrip records a run with Committer, then
// replays the identical items through Auditor against the recorded
// stream: it must accept with no error.
func TestCommitterAuditorRoundTrip(t *testing.T) {
	const b = 16
	items := []commitment.TraceItem{
		traceItem("a"), traceItem("b"), traceItem("c"),
		traceItem("d"), traceItem("e"),
	}

	var recorded bytes.Buffer
	committer, err := NewCommitter(&recorded, b)
	if err != nil {
		t.Fatal(err)
	}
	if err := runItems(t, committer, items); err != nil {
		t.Fatal(err)
	}
	if recorded.Len() == 0 {
		t.Fatal("expected committer to write packed blocks")
	}

	auditor, err := NewAuditor(bytes.NewReader(recorded.Bytes()), b)
	if err != nil {
		t.Fatal(err)
	}
	if err := runItems(t, auditor, items); err != nil {
		t.Fatalf("expected identical replay to pass audit, got: %v", err)
	}
}

// TestAuditorDetectsMismatch mutates a single tile's output after
// recording, then replays: the Auditor must fail on first divergence
// with AuditMismatchError at the slot covering the mutated item.
func TestAuditorDetectsMismatch(t *testing.T) {
	const b = 16
	recordedItems := []commitment.TraceItem{
		traceItem("a"), traceItem("b"), traceItem("c"),
		traceItem("d"), traceItem("e"),
	}

	var recorded bytes.Buffer
	committer, err := NewCommitter(&recorded, b)
	if err != nil {
		t.Fatal(err)
	}
	if err := runItems(t, committer, recordedItems); err != nil {
		t.Fatal(err)
	}

	mutated := make([]commitment.TraceItem, len(recordedItems))
	copy(mutated, recordedItems)
	mutated[2] = traceItem("c-mutated")

	auditor, err := NewAuditor(bytes.NewReader(recorded.Bytes()), b)
	if err != nil {
		t.Fatal(err)
	}
	err = runItems(t, auditor, mutated)
	if err == nil {
		t.Fatal("expected mutated replay to fail audit")
	}

	var mismatch *rasterrors.AuditMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected AuditMismatchError, got: %v", err)
	}
	if mismatch.Index != 0 {
		t.Fatalf("expected divergence in slot 0 (4 16-bit items per block), got %d", mismatch.Index)
	}
}

// TestAuditorDetectsShortExpectedStream covers the run-longer-than-
// expected length mismatch branch.
func TestAuditorDetectsShortExpectedStream(t *testing.T) {
	const b = 16
	items := []commitment.TraceItem{traceItem("a"), traceItem("b")}

	// An expected stream too short to cover even one full block.
	short := bytes.NewReader([]byte{0x01, 0x02, 0x03})

	auditor, err := NewAuditor(short, b)
	if err != nil {
		t.Fatal(err)
	}
	err = runItems(t, auditor, items)
	if err == nil {
		t.Fatal("expected short expected-stream to fail audit")
	}
	var lengthErr *rasterrors.AuditLengthError
	if !errors.As(err, &lengthErr) {
		t.Fatalf("expected AuditLengthError, got: %v", err)
	}
}

// TestAuditorDetectsLongExpectedStream covers the expected-stream-
// longer-than-run length mismatch branch.
func TestAuditorDetectsLongExpectedStream(t *testing.T) {
	const b = 16
	items := []commitment.TraceItem{traceItem("a")}

	var recorded bytes.Buffer
	committer, err := NewCommitter(&recorded, b)
	if err != nil {
		t.Fatal(err)
	}
	if err := runItems(t, committer, items); err != nil {
		t.Fatal(err)
	}
	// Append an extra block the live run will never produce.
	var extra [8]byte
	binary.LittleEndian.PutUint64(extra[:], 0xdeadbeef)
	recorded.Write(extra[:])

	auditor, err := NewAuditor(bytes.NewReader(recorded.Bytes()), b)
	if err != nil {
		t.Fatal(err)
	}
	err = runItems(t, auditor, items)
	if err == nil {
		t.Fatal("expected long expected-stream to fail audit")
	}
	var lengthErr *rasterrors.AuditLengthError
	if !errors.As(err, &lengthErr) {
		t.Fatalf("expected AuditLengthError, got: %v", err)
	}
}
