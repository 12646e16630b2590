// Package metrics exposes Prometheus collectors for the build
// pipeline: compiles, artifact cache hits/misses, and audit outcomes.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	compiles       *prometheus.CounterVec
	compileSeconds *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	auditResults   *prometheus.CounterVec
)

const (
	// CacheHit and CacheMiss label the cache lookup outcome observed
	// by the Artifact Builder.
	CacheHit  = "hit"
	CacheMiss = "miss"

	// AuditPass and AuditMismatch label an Auditor run's outcome.
	AuditPass     = "pass"
	AuditMismatch = "mismatch"
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes all collectors. Used by tests to
// ensure isolated state between runs.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

// Handler returns an HTTP handler exposing the registry in Prometheus
// text format. raster's own subcommands are short-lived batch
// operations rather than a long-running server, so nothing in
// cmd/raster mounts this on a listening socket; it exists for a
// caller embedding this package inside a longer-lived process (a CI
// runner polling build metrics across many invocations, for example).
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveCompile records one tile compile attempt against a backend.
func ObserveCompile(backend string, ok bool, duration time.Duration) {
	labelBackend := sanitizeLabel(backend, "unknown")
	status := "ok"
	if !ok {
		status = "error"
	}

	mu.RLock()
	defer mu.RUnlock()
	if compiles != nil {
		compiles.WithLabelValues(labelBackend, status).Inc()
	}
	if compileSeconds != nil {
		compileSeconds.WithLabelValues(labelBackend).Observe(durationSeconds(duration))
	}
}

// ObserveCacheLookup records an artifact cache lookup outcome for a
// given tile name.
func ObserveCacheLookup(tile string, outcome string) {
	labelTile := sanitizeLabel(tile, "unknown")
	labelOutcome := sanitizeLabel(outcome, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(labelTile, labelOutcome).Inc()
	}
}

// ObserveAudit records an Auditor run's terminal outcome.
func ObserveAudit(outcome string) {
	labelOutcome := sanitizeLabel(outcome, "unknown")

	mu.RLock()
	defer mu.RUnlock()
	if auditResults != nil {
		auditResults.WithLabelValues(labelOutcome).Inc()
	}
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	compileTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raster",
		Subsystem: "build",
		Name:      "compiles_total",
		Help:      "Total tile compile attempts grouped by backend and outcome.",
	}, []string{"backend", "status"})

	compileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "raster",
		Subsystem: "build",
		Name:      "compile_duration_seconds",
		Help:      "Duration of tile compile attempts by backend.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"backend"})

	cacheTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raster",
		Subsystem: "build",
		Name:      "cache_lookups_total",
		Help:      "Total artifact cache lookups grouped by tile and outcome (hit/miss).",
	}, []string{"tile", "outcome"})

	auditTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "raster",
		Subsystem: "trace",
		Name:      "audit_results_total",
		Help:      "Total Auditor runs grouped by terminal outcome (pass/mismatch).",
	}, []string{"outcome"})

	registry.MustRegister(compileTotal, compileDuration, cacheTotal, auditTotal)

	reg = registry
	compiles = compileTotal
	compileSeconds = compileDuration
	cacheLookups = cacheTotal
	auditResults = auditTotal
}

func sanitizeLabel(v string, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	var b strings.Builder
	for _, r := range v {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ':' || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func durationSeconds(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return d.Seconds()
}
