package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/metrics"
)

func TestCORSMiddleware(t *testing.T) {
	cors := NewCORSMiddleware([]string{"https://elghella.com", ".elghella.dz"})
	handler := cors.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://elghella.com", true},
		{"https://admin.elghella.dz", true},
		{"https://evil-elghella.com", false},
		{"https://attacker.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
		req.Header.Set("Origin", tt.origin)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		got := rr.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed {
			assert.Equal(t, tt.origin, got, tt.origin)
			assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		} else {
			assert.Empty(t, got, tt.origin)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/listings/land", nil)
	req.Header.Set("Origin", "https://elghella.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

type countingRecorder map[string]int

func (c countingRecorder) RecordRateLimited(kind string) { c[kind]++ }

func TestRateLimiter(t *testing.T) {
	rec := countingRecorder{}
	rl := NewRateLimiter(1, 2, testLogger(), rec)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/listings/animals", nil)
		req.RemoteAddr = remote
		if user != "" {
			req = req.WithContext(logging.WithUserID(req.Context(), user))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1111", "").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:2222", "").Code)
	blocked := send("10.0.0.1:3333", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "1", blocked.Header().Get("Retry-After"))
	assert.Contains(t, blocked.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, 1, rec[KeyIP])

	// Signed-in users get their own bucket.
	assert.Equal(t, http.StatusOK, send("10.0.0.1:4444", "user-1").Code)
	assert.Equal(t, 2, rl.Len())

	rl.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 2, rl.Cleanup(time.Hour))
	assert.Zero(t, rl.Len())
}

func TestTracingMiddleware(t *testing.T) {
	var seen string
	handler := NewTracingMiddleware(testLogger()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
	req.Header.Set(TraceHeader, "trace-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", rr.Header().Get(TraceHeader))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rr.Header().Get(TraceHeader))
	assert.Equal(t, seen, rr.Header().Get(TraceHeader))
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	m := metrics.New()
	router := mux.NewRouter()
	router.Use(MetricsMiddleware("elghella", m))
	router.HandleFunc("/api/listings/{resource}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/listings/land/abc-123", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	assert.True(t, strings.Contains(body, `path="/api/listings/{resource}/{id}"`), body)
	assert.NotContains(t, body, "abc-123")
}
