package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveAndScrape(t *testing.T) {
	Reset()
	ObserveCompile("native", true, 10*time.Millisecond)
	ObserveCacheLookup("add_one", CacheMiss)
	ObserveAudit(AuditPass)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"raster_build_compiles_total",
		"raster_build_cache_lookups_total",
		"raster_trace_audit_results_total",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected scrape output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestSanitizeLabelReplacesInvalidRunes(t *testing.T) {
	Reset()
	// Should not panic even with label-hostile input.
	ObserveCacheLookup("tile with spaces!", "weird outcome")
	if got := sanitizeLabel("tile with spaces!", "unknown"); got != "tile_with_spaces_" {
		t.Fatalf("expected invalid runes replaced with '_', got %q", got)
	}
}
