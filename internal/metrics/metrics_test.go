package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/elghella/marketplace/internal/records"
)

func TestOutcome(t *testing.T) {
	cases := map[error]string{
		nil: "ok",
		fmt.Errorf("x: %w", records.ErrNotFound):     "not_found",
		fmt.Errorf("x: %w", records.ErrInvalidInput): "invalid",
		fmt.Errorf("x: %w", records.ErrConflict):     "conflict",
		records.ErrForbidden:                         "forbidden",
		records.ErrDatabase:                          "error",
	}
	for err, want := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("equipment", "fetch", nil, 10*time.Millisecond)
	m.ObserveOperation("equipment", "fetch", records.ErrDatabase, time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		`elghella_data_operations_total{op="fetch",outcome="ok",table="equipment"} 1`,
		`elghella_data_operations_total{op="fetch",outcome="error",table="equipment"} 1`,
		`elghella_data_operation_duration_seconds_count{op="fetch",table="equipment"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("elghella", http.MethodGet, "/api/listings/{resource}", "200", 5*time.Millisecond)
	m.RecordCacheEvent("land", CacheFallback)
	m.SetCircuitState(1)
	m.RecordJobRun("warm-cache", true)
	m.RecordRateLimited("ip")

	body := scrape(t, m)
	for _, want := range []string{
		`elghella_http_requests_total{method="GET",path="/api/listings/{resource}",service="elghella",status="200"} 1`,
		`elghella_cache_events_total{event="fallback",resource="land"} 1`,
		`elghella_supabase_circuit_state 1`,
		`elghella_scheduler_job_runs_total{job="warm-cache",success="true"} 1`,
		`elghella_http_rate_limited_total{kind="ip"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
