package listings

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/records"
)

// Resource is the type-erased view of a Service used by the HTTP layer,
// the scheduler and the realtime listener.
type Resource interface {
	Name() string
	// Table is the database table backing the resource.
	Table() string
	HasColumn(col string) bool
	List(ctx context.Context, viewer domain.Actor, q records.Query) (*Page[any], error)
	ListMine(ctx context.Context, actor domain.Actor, q records.Query) (*Page[any], error)
	Get(ctx context.Context, viewer domain.Actor, id string) (any, error)
	Create(ctx context.Context, actor domain.Actor, body []byte) (any, error)
	Update(ctx context.Context, actor domain.Actor, id string, fields map[string]any) (any, error)
	Delete(ctx context.Context, actor domain.Actor, id string) error
	SetAvailability(ctx context.Context, actor domain.Actor, id string, available bool) (any, error)
	Count(ctx context.Context) (int, error)
	Refresh(ctx context.Context) error
	Invalidate(ctx context.Context)
}

// Registry maps resource names to services.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]Resource
	byTable   map[string]Resource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		resources: make(map[string]Resource),
		byTable:   make(map[string]Resource),
	}
}

// Register adds svc under its resource name.
func Register[T Row](r *Registry, svc *Service[T]) error {
	return r.Add(&erased[T]{svc: svc})
}

// Add registers a resource. Names must be unique.
func (r *Registry) Add(res Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[res.Name()]; exists {
		return fmt.Errorf("resource %s already registered", res.Name())
	}
	r.resources[res.Name()] = res
	r.byTable[res.Table()] = res
	return nil
}

// Lookup returns the resource registered under name.
func (r *Registry) Lookup(name string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[name]
	return res, ok
}

// ByTable returns the resource stored in table.
func (r *Registry) ByTable(table string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byTable[table]
	return res, ok
}

// Names returns the registered resource names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered resources ordered by name.
func (r *Registry) All() []Resource {
	names := r.Names()
	out := make([]Resource, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		out = append(out, r.resources[name])
	}
	return out
}

type erased[T Row] struct {
	svc *Service[T]
}

func (e *erased[T]) Name() string              { return e.svc.resource }
func (e *erased[T]) Table() string             { return e.svc.store.Table().Name }
func (e *erased[T]) HasColumn(col string) bool { return e.svc.store.Table().HasColumn(col) }

func (e *erased[T]) List(ctx context.Context, viewer domain.Actor, q records.Query) (*Page[any], error) {
	page, err := e.svc.List(ctx, viewer, q)
	if err != nil {
		return nil, err
	}
	return toAny(page), nil
}

func (e *erased[T]) ListMine(ctx context.Context, actor domain.Actor, q records.Query) (*Page[any], error) {
	page, err := e.svc.ListMine(ctx, actor, q)
	if err != nil {
		return nil, err
	}
	return toAny(page), nil
}

func (e *erased[T]) Get(ctx context.Context, viewer domain.Actor, id string) (any, error) {
	return e.svc.Get(ctx, viewer, id)
}

func (e *erased[T]) Create(ctx context.Context, actor domain.Actor, body []byte) (any, error) {
	item, err := e.svc.Decode(body)
	if err != nil {
		return nil, err
	}
	return e.svc.Create(ctx, actor, item)
}

func (e *erased[T]) Update(ctx context.Context, actor domain.Actor, id string, fields map[string]any) (any, error) {
	return e.svc.Update(ctx, actor, id, fields)
}

func (e *erased[T]) Delete(ctx context.Context, actor domain.Actor, id string) error {
	return e.svc.Delete(ctx, actor, id)
}

func (e *erased[T]) SetAvailability(ctx context.Context, actor domain.Actor, id string, available bool) (any, error) {
	return e.svc.SetAvailability(ctx, actor, id, available)
}

func (e *erased[T]) Count(ctx context.Context) (int, error) {
	return e.svc.Count(ctx, records.Query{})
}

func (e *erased[T]) Refresh(ctx context.Context) error {
	return e.svc.Refresh(ctx, domain.Actor{})
}

func (e *erased[T]) Invalidate(ctx context.Context) {
	e.svc.Invalidate(ctx)
}

func toAny[T any](p *Page[T]) *Page[any] {
	items := make([]any, len(p.Items))
	for i, item := range p.Items {
		items[i] = item
	}
	return &Page[any]{Items: items, Total: p.Total, Limit: p.Limit, Offset: p.Offset, Stale: p.Stale}
}
