// Package realtime keeps caches coherent with changes made outside this
// process by following the Supabase Realtime change feed.
package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/elghella/marketplace/internal/listings"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/supabase"
)

// QueueSize bounds the number of events waiting to be applied.
const QueueSize = 256

// Recorded events.
const (
	EventInvalidated = "invalidated"
	EventDropped     = "dropped"
)

// Subscriber is the realtime transport. *supabase.RealtimeClient satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, cfg supabase.PostgresChangesConfig, handler supabase.ChangeHandler) (*supabase.Channel, error)
	Run(ctx context.Context) error
}

// Action reacts to a change on one table.
type Action func(ctx context.Context, ev supabase.ChangeEvent)

// Recorder counts applied and dropped events.
type Recorder interface {
	RecordCacheEvent(resource, event string)
}

// Listener routes change events to per-table actions. Socket handlers only
// enqueue; actions run on the listener goroutine.
type Listener struct {
	sub      Subscriber
	logger   *logging.Logger
	recorder Recorder

	mu      sync.Mutex
	actions map[string][]Action
	queue   chan supabase.ChangeEvent
}

// NewListener creates a listener. recorder may be nil.
func NewListener(sub Subscriber, logger *logging.Logger, recorder Recorder) *Listener {
	if logger == nil {
		logger = logging.Default()
	}
	return &Listener{
		sub:      sub,
		logger:   logger,
		recorder: recorder,
		actions:  make(map[string][]Action),
		queue:    make(chan supabase.ChangeEvent, QueueSize),
	}
}

// Watch registers fn for changes on table.
func (l *Listener) Watch(table string, fn Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions[table] = append(l.actions[table], fn)
}

// WatchRegistry invalidates each listing resource when its table changes.
func (l *Listener) WatchRegistry(reg *listings.Registry) {
	for _, res := range reg.All() {
		res := res
		l.Watch(res.Table(), func(ctx context.Context, _ supabase.ChangeEvent) {
			res.Invalidate(ctx)
		})
	}
}

// Tables lists the watched tables.
func (l *Listener) Tables() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	tables := make([]string, 0, len(l.actions))
	for t := range l.actions {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// Run subscribes to every watched table and applies events until ctx is
// done.
func (l *Listener) Run(ctx context.Context) error {
	for _, table := range l.Tables() {
		cfg := supabase.PostgresChangesConfig{Event: "*", Schema: "public", Table: table}
		if _, err := l.sub.Subscribe(ctx, cfg, l.enqueue); err != nil {
			return err
		}
	}

	done := make(chan error, 1)
	go func() { done <- l.sub.Run(ctx) }()

	l.logger.WithFields(map[string]interface{}{"tables": len(l.actions)}).Info("realtime listener started")
	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case err := <-done:
			return err
		case ev := <-l.queue:
			l.Apply(ctx, ev)
		}
	}
}

func (l *Listener) enqueue(ev supabase.ChangeEvent) {
	select {
	case l.queue <- ev:
	default:
		l.logger.WithFields(map[string]interface{}{"table": ev.Table, "type": ev.Type}).
			Warn("realtime queue full, dropping change event")
		l.record(ev.Table, EventDropped)
	}
}

// Apply runs the actions registered for ev.Table.
func (l *Listener) Apply(ctx context.Context, ev supabase.ChangeEvent) {
	l.mu.Lock()
	actions := append([]Action(nil), l.actions[ev.Table]...)
	l.mu.Unlock()
	if len(actions) == 0 {
		return
	}

	l.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"table":  ev.Table,
		"type":   ev.Type,
		"record": ev.RecordID(),
	}).Debug("applying change event")
	for _, fn := range actions {
		fn(ctx, ev)
	}
	l.record(ev.Table, EventInvalidated)
}

func (l *Listener) record(table, event string) {
	if l.recorder != nil {
		l.recorder.RecordCacheEvent(table, event)
	}
}
