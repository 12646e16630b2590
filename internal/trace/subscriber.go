// Package trace implements the runtime trace subscribers:
// JsonEmitter, Committer, and Auditor observe a native
// whole-program run's per-tile I/O, in program order.
package trace

import "github.com/raster-lang/raster/internal/commitment"

// Subscriber observes a whole-program run's tile invocations. The Nth
// on_trace call corresponds to the Nth invocation in program order;
// on_complete fires exactly once when the program terminates normally.
type Subscriber interface {
	OnTrace(item commitment.TraceItem) error
	OnComplete() error
}
