// Package service provides the lifecycle shared by the marketplace server:
// hydration, background workers and health reporting.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/elghella/marketplace/internal/logging"
)

const healthCheckTimeout = 5 * time.Second

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Check probes one dependency.
type Check struct {
	Name string
	// Critical failures make the service unhealthy; others only degrade it.
	Critical bool
	Probe    func(context.Context) error
}

// BaseConfig contains the service identity and its health checks.
type BaseConfig struct {
	Name    string
	Version string
	Logger  *logging.Logger
	Checks  []Check
}

// BaseService runs hydrate and worker hooks and tracks health.
type BaseService struct {
	name    string
	version string
	logger  *logging.Logger

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	hydrate func(context.Context) error
	statsFn func() map[string]any
	workers []func(context.Context)

	checks          []Check
	healthMu        sync.RWMutex
	results         map[string]string
	status          string
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg BaseConfig) *BaseService {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &BaseService{
		name:    cfg.Name,
		version: cfg.Version,
		logger:  logger,
		stopCh:  make(chan struct{}),
		checks:  cfg.Checks,
		results: make(map[string]string),
		status:  StatusHealthy,
	}
}

// Name returns the service name.
func (b *BaseService) Name() string { return b.name }

// Version returns the service version.
func (b *BaseService) Version() string { return b.version }

// WithHydrate sets an optional hook executed during Start before workers
// are launched.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets a statistics provider for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddCheck registers a health check.
func (b *BaseService) AddCheck(c Check) *BaseService {
	b.checks = append(b.checks, c)
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers should return when ctx is done or StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers a worker calling fn every interval until Stop.
func (b *BaseService) AddTickerWorker(name string, interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.logger.WithContext(ctx).WithError(err).WithField("worker", name).Warn("worker run failed")
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start runs hydrate once, then starts the workers.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		worker := w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			worker(ctx)
		}()
	}
	b.logger.WithFields(map[string]interface{}{
		"service": b.name,
		"version": b.version,
		"workers": len(b.workers),
	}).Info("service started")
	return nil
}

// Stop signals workers and waits for them to return. It is idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	b.wg.Wait()
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// CheckHealth probes every dependency and caches the result.
func (b *BaseService) CheckHealth(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(b.checks))
	status := StatusHealthy
	for _, c := range b.checks {
		if err := c.Probe(ctx); err != nil {
			results[c.Name] = err.Error()
			if c.Critical {
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
			continue
		}
		results[c.Name] = "ok"
	}

	b.healthMu.Lock()
	b.results = results
	b.status = status
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus probes the dependencies and returns the aggregated status.
func (b *BaseService) HealthStatus(ctx context.Context) string {
	b.CheckHealth(ctx)
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.status
}

// HealthDetails describes the most recent health check.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	checks := make(map[string]string, len(b.results))
	for k, v := range b.results {
		checks[k] = v
	}
	details := map[string]any{"checks": checks}

	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	} else {
		details["last_check"] = ""
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.Round(time.Second).String()

	return details
}

// CheckNames lists the registered checks.
func (b *BaseService) CheckNames() []string {
	names := make([]string, 0, len(b.checks))
	for _, c := range b.checks {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}
