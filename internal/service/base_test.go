package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/logging"
)

func newTestBase(checks ...Check) *BaseService {
	return NewBase(BaseConfig{
		Name:    "elghella",
		Version: "test",
		Logger:  logging.NewWithOutput("test", "info", "json", io.Discard),
		Checks:  checks,
	})
}

func TestLifecycle(t *testing.T) {
	b := newTestBase()
	var hydrated, ticks atomic.Int32
	b.WithHydrate(func(context.Context) error { hydrated.Add(1); return nil })
	b.AddTickerWorker("tick", 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return errors.New("ignored")
	})
	b.AddWorker(func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-b.StopChan():
		}
	})
	assert.Equal(t, 2, b.WorkerCount())

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, int32(1), hydrated.Load())
	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())
}

func TestHydrateFailureStopsStart(t *testing.T) {
	b := newTestBase()
	b.WithHydrate(func(context.Context) error { return errors.New("db down") })
	err := b.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hydrate")
}

func TestHealthAggregation(t *testing.T) {
	dbErr := errors.New("connection refused")
	var db, cache error

	b := newTestBase(
		Check{Name: "database", Critical: true, Probe: func(context.Context) error { return db }},
		Check{Name: "cache", Probe: func(context.Context) error { return cache }},
	)
	ctx := context.Background()

	assert.Equal(t, StatusHealthy, b.HealthStatus(ctx))
	cache = errors.New("redis timeout")
	assert.Equal(t, StatusDegraded, b.HealthStatus(ctx))
	db = dbErr
	assert.Equal(t, StatusUnhealthy, b.HealthStatus(ctx))

	checks := b.HealthDetails()["checks"].(map[string]string)
	assert.Equal(t, "connection refused", checks["database"])
	assert.Equal(t, []string{"cache", "database"}, b.CheckNames())
}

func TestStandardRoutes(t *testing.T) {
	var failing bool
	b := newTestBase(Check{Name: "database", Critical: true, Probe: func(context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	}})
	b.WithStats(func() map[string]any { return map[string]any{"resources": 8} })

	router := mux.NewRouter()
	b.RegisterStandardRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, "elghella", health.Service)

	failing = true
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info InfoResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, "active", info.Status)
	assert.EqualValues(t, 8, info.Statistics["resources"])
}
