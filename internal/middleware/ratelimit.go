package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/elghella/marketplace/internal/errors"
	internalhttputil "github.com/elghella/marketplace/internal/httputil"
	"github.com/elghella/marketplace/internal/logging"
)

// Rate limit key kinds.
const (
	KeyUser = "user"
	KeyIP   = "ip"
)

// RateRecorder counts rejected requests.
type RateRecorder interface {
	RecordRateLimited(kind string)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides rate limiting functionality
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   *logging.Logger
	recorder RateRecorder
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter. recorder may be nil.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *logging.Logger, recorder RateRecorder) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// getLimiter returns a rate limiter for the given key (user ID or IP)
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Handler returns the rate limiting middleware handler
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, key := KeyUser, GetUserID(r.Context())
		if key == "" {
			kind, key = KeyIP, clientIP(r)
		}

		if !rl.getLimiter(kind + ":" + key).Allow() {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":    key,
				"kind":   kind,
				"path":   r.URL.Path,
				"method": r.Method,
			})
			if rl.recorder != nil {
				rl.recorder.RecordRateLimited(kind)
			}

			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			internalhttputil.WriteError(w, r, errors.RateLimitExceeded(int(rl.rate), "1s"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) retryAfter() int {
	if rl.rate <= 0 {
		return 60
	}
	secs := int(1/float64(rl.rate) + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Cleanup removes limiters idle for longer than maxIdle and returns how many
// were removed.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
