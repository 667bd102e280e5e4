package records

import (
	"context"
	"time"
)

// Observer receives the outcome of every store operation.
type Observer interface {
	ObserveOperation(table, op string, err error, duration time.Duration)
}

// Observed wraps a store and reports each operation to obs.
func Observed[T Entity](store Store[T], obs Observer) Store[T] {
	if obs == nil {
		return store
	}
	return &observedStore[T]{Store: store, obs: obs}
}

type observedStore[T Entity] struct {
	Store[T]
	obs Observer
}

func (o *observedStore[T]) observe(op string, start time.Time, err error) {
	o.obs.ObserveOperation(o.Store.Table().Name, op, err, time.Since(start))
}

func (o *observedStore[T]) Fetch(ctx context.Context, q Query) (rows []T, err error) {
	defer func(start time.Time) { o.observe("fetch", start, err) }(time.Now())
	return o.Store.Fetch(ctx, q)
}

func (o *observedStore[T]) Get(ctx context.Context, id string) (row T, err error) {
	defer func(start time.Time) { o.observe("get", start, err) }(time.Now())
	return o.Store.Get(ctx, id)
}

func (o *observedStore[T]) Create(ctx context.Context, entity T) (row T, err error) {
	defer func(start time.Time) { o.observe("create", start, err) }(time.Now())
	return o.Store.Create(ctx, entity)
}

func (o *observedStore[T]) Upsert(ctx context.Context, entity T) (row T, err error) {
	defer func(start time.Time) { o.observe("upsert", start, err) }(time.Now())
	return o.Store.Upsert(ctx, entity)
}

func (o *observedStore[T]) Update(ctx context.Context, id string, fields map[string]any) (row T, err error) {
	defer func(start time.Time) { o.observe("update", start, err) }(time.Now())
	return o.Store.Update(ctx, id, fields)
}

func (o *observedStore[T]) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { o.observe("delete", start, err) }(time.Now())
	return o.Store.Delete(ctx, id)
}

func (o *observedStore[T]) Count(ctx context.Context, q Query) (n int, err error) {
	defer func(start time.Time) { o.observe("count", start, err) }(time.Now())
	return o.Store.Count(ctx, q)
}
