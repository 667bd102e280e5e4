// Package scheduler runs the periodic maintenance jobs of the marketplace.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/elghella/marketplace/internal/logging"
)

// Job is a named periodic task.
type Job struct {
	Name string
	// Spec is a cron expression or descriptor such as "@every 10m". An empty
	// spec disables the job.
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobRecorder counts job runs.
type JobRecorder interface {
	RecordJobRun(job string, success bool)
}

// EntryInfo describes a scheduled job.
type EntryInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron     *cron.Cron
	logger   *logging.Logger
	recorder JobRecorder

	mu      sync.Mutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. recorder may be nil.
func New(logger *logging.Logger, recorder JobRecorder) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:   logger,
		recorder: recorder,
		jobs:     make(map[string]Job),
		entries:  make(map[string]cron.EntryID),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Add schedules job. Jobs with an empty spec are registered for RunNow only.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job name and func are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}
	if job.Spec != "" {
		id, err := s.cron.AddFunc(job.Spec, func() { s.run(s.ctx, job) })
		if err != nil {
			return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
		}
		s.entries[job.Name] = id
	}
	s.jobs[job.Name] = job
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(map[string]interface{}{"jobs": len(s.entries)}).Info("scheduler started")
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(ctx, job)
}

// Entries lists the scheduled jobs sorted by name.
func (s *Scheduler) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.entries))
	for name, id := range s.entries {
		e := s.cron.Entry(id)
		out = append(out, EntryInfo{Name: name, Spec: s.jobs[name].Spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())

	start := time.Now()
	err := job.Run(ctx)
	entry := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"job":         job.Name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("scheduled job failed")
	} else {
		entry.Debug("scheduled job finished")
	}
	if s.recorder != nil {
		s.recorder.RecordJobRun(job.Name, err == nil)
	}
	return err
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	fields["component"] = "scheduler"
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
