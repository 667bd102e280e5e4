// Package metrics exposes Prometheus collectors for the HTTP layer, the data
// layer, the offline cache and the Supabase transport.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elghella/marketplace/internal/records"
)

const namespace = "elghella"

// Metrics holds the collectors of one service instance.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	dataOps      *prometheus.CounterVec
	dataDuration *prometheus.HistogramVec

	cacheEvents *prometheus.CounterVec
	circuit     prometheus.Gauge
	jobRuns     *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		dataOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "operations_total",
			Help:      "Data layer operations by table, operation and outcome.",
		}, []string{"table", "op", "outcome"}),
		dataDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "data",
			Name:      "operation_duration_seconds",
			Help:      "Duration of data layer operations.",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2, 12),
		}, []string{"table", "op"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Offline cache hits, misses, fallbacks and errors by resource.",
		}, []string{"resource", "event"}),
		circuit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supabase",
			Name:      "circuit_state",
			Help:      "Supabase circuit breaker state (0 closed, 1 open, 2 half-open).",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and success.",
		}, []string{"job", "success"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.dataOps,
		m.dataDuration,
		m.cacheEvents,
		m.circuit,
		m.jobRuns,
		m.rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// ObserveOperation implements records.Observer.
func (m *Metrics) ObserveOperation(table, op string, err error, duration time.Duration) {
	m.dataOps.WithLabelValues(table, op, Outcome(err)).Inc()
	m.dataDuration.WithLabelValues(table, op).Observe(duration.Seconds())
}

// Outcome classifies a data layer error for labelling.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, records.ErrNotFound):
		return "not_found"
	case errors.Is(err, records.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, records.ErrConflict):
		return "conflict"
	case errors.Is(err, records.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}

// Cache event labels.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheFallback = "fallback"
	CacheError    = "error"
)

// RecordCacheEvent counts a cache event for resource.
func (m *Metrics) RecordCacheEvent(resource, event string) {
	m.cacheEvents.WithLabelValues(resource, event).Inc()
}

// SetCircuitState publishes the breaker state as a number.
func (m *Metrics) SetCircuitState(state int) {
	m.circuit.Set(float64(state))
}

// RecordJobRun counts a scheduler run.
func (m *Metrics) RecordJobRun(job string, success bool) {
	if job == "" {
		job = "unknown"
	}
	label := "false"
	if success {
		label = "true"
	}
	m.jobRuns.WithLabelValues(job, label).Inc()
}

// RecordRateLimited counts a rejected request. kind is "user" or "ip".
func (m *Metrics) RecordRateLimited(kind string) {
	m.rateLimited.WithLabelValues(kind).Inc()
}

var _ records.Observer = (*Metrics)(nil)
