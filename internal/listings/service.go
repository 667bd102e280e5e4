// Package listings implements the per-resource CRUD services behind the
// listing pages: public browsing with an offline cache fallback, owner
// dashboards and owner-or-admin writes.
package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elghella/marketplace/internal/cache"
	"github.com/elghella/marketplace/internal/domain"
	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
)

// WarmLimit caps the number of rows kept in a cache entry.
const WarmLimit = 500

// Row is a storable row that can validate itself.
type Row interface {
	records.Entity
	Validate() error
}

// CacheRecorder counts cache events. metrics.Metrics implements it.
type CacheRecorder interface {
	RecordCacheEvent(resource, event string)
}

// Cache event names.
const (
	eventMiss     = "miss"
	eventFallback = "fallback"
	eventError    = "error"
)

// Options configures a Service.
type Options struct {
	// Resource is the URL name of the resource, e.g. "equipment".
	Resource string
	// Visible filters restrict public reads. Defaults to is_active = true.
	Visible []records.Filter
	// Immutable columns are rejected in updates. Defaults to DefaultImmutable.
	Immutable []string
	// AvailabilityColumn is toggled by SetAvailability.
	AvailabilityColumn string
	Cache              cache.Cache
	CacheTTL           time.Duration
	Logger             *logging.Logger
	Recorder           CacheRecorder
}

// DefaultImmutable lists the columns clients may never set.
var DefaultImmutable = []string{"id", "user_id", "created_at", "views"}

// Page is one page of results.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
	// Stale is set when the page was served from the offline cache.
	Stale bool `json:"stale,omitempty"`
}

// Service is the CRUD service of one resource.
type Service[T Row] struct {
	resource     string
	store        records.Store[T]
	visible      []records.Filter
	immutable    []string
	availability string
	cache        cache.Cache
	ttl          time.Duration
	logger       *logging.Logger
	recorder     CacheRecorder
	now          func() time.Time
}

// New creates the service for store.
func New[T Row](store records.Store[T], opts Options) *Service[T] {
	if opts.Resource == "" {
		opts.Resource = store.Table().Name
	}
	if opts.Visible == nil {
		opts.Visible = []records.Filter{{Column: "is_active", Op: records.OpEq, Value: true}}
	}
	if opts.Immutable == nil {
		opts.Immutable = DefaultImmutable
	}
	if opts.AvailabilityColumn == "" {
		opts.AvailabilityColumn = "is_available"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Service[T]{
		resource:     opts.Resource,
		store:        store,
		visible:      opts.Visible,
		immutable:    opts.Immutable,
		availability: opts.AvailabilityColumn,
		cache:        opts.Cache,
		ttl:          opts.CacheTTL,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		now:          time.Now,
	}
}

// Resource returns the resource name.
func (s *Service[T]) Resource() string { return s.resource }

// Store returns the underlying store.
func (s *Service[T]) Store() records.Store[T] { return s.store }

// =============================================================================
// Reads
// =============================================================================

// List returns the publicly visible rows matching q. When the database
// fails, the last cached rows for the viewer are filtered client-side and
// returned with Stale set.
func (s *Service[T]) List(ctx context.Context, viewer domain.Actor, q records.Query) (*Page[T], error) {
	q = s.withVisible(q)
	if err := records.Validate(s.store.Table(), q); err != nil {
		return nil, records.ToServiceError(err, s.resource, "")
	}

	key := cache.Key(viewer.Scope(), s.resource)
	items, err := s.store.Fetch(ctx, q)
	if err != nil {
		if page, ok := s.fallback(ctx, key, q, err); ok {
			return page, nil
		}
		return nil, records.ToServiceError(err, s.resource, "")
	}

	if cacheable(q, len(s.visible), len(items)) {
		s.writeCache(ctx, key, items)
	}
	return s.page(ctx, q, items)
}

// ListMine returns the rows owned by actor, active or not.
func (s *Service[T]) ListMine(ctx context.Context, actor domain.Actor, q records.Query) (*Page[T], error) {
	if actor.Anonymous() {
		return nil, svcerrors.Unauthorized("sign in to see your listings")
	}
	q = q.Where(s.ownerColumn(), records.OpEq, actor.UserID)
	if err := records.Validate(s.store.Table(), q); err != nil {
		return nil, records.ToServiceError(err, s.resource, "")
	}

	key := cache.Key(actor.UserID, "mine:"+s.resource)
	items, err := s.store.Fetch(ctx, q)
	if err != nil {
		if page, ok := s.fallback(ctx, key, q, err); ok {
			return page, nil
		}
		return nil, records.ToServiceError(err, s.resource, "")
	}
	if cacheable(q, 1, len(items)) {
		s.writeCache(ctx, key, items)
	}
	return s.page(ctx, q, items)
}

// Get returns one row. Hidden rows are only visible to their owner and
// admins. Views are incremented best-effort for other viewers.
func (s *Service[T]) Get(ctx context.Context, viewer domain.Actor, id string) (T, error) {
	var zero T
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return zero, records.ToServiceError(err, s.resource, id)
	}
	if !s.isVisible(item) && !viewer.CanModify(item.GetOwnerID()) {
		return zero, svcerrors.NotFound(s.resource, id)
	}
	if viewer.UserID != "" && viewer.UserID == item.GetOwnerID() {
		return item, nil
	}
	return s.incrementViews(ctx, item), nil
}

func (s *Service[T]) incrementViews(ctx context.Context, item T) T {
	if !s.store.Table().HasColumn("views") {
		return item
	}
	row, err := records.ToRow(item)
	if err != nil {
		return item
	}
	views, _ := row["views"].(float64)
	updated, err := s.store.Update(ctx, item.GetID(), map[string]any{"views": int(views) + 1})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("resource", s.resource).
			WithField("id", item.GetID()).Warn("failed to increment views")
		return item
	}
	return updated
}

// Count returns the number of rows matching q, visible or not.
func (s *Service[T]) Count(ctx context.Context, q records.Query) (int, error) {
	n, err := s.store.Count(ctx, q)
	if err != nil {
		return 0, records.ToServiceError(err, s.resource, "")
	}
	return n, nil
}

// =============================================================================
// Writes
// =============================================================================

// Create validates item, stamps owner and timestamps and inserts it.
func (s *Service[T]) Create(ctx context.Context, actor domain.Actor, item T) (T, error) {
	var zero T
	if actor.Anonymous() {
		return zero, svcerrors.Unauthorized("sign in to publish")
	}
	item.Prepare(actor.UserID, s.now())
	if err := item.Validate(); err != nil {
		return zero, err
	}
	created, err := s.store.Create(ctx, item)
	if err != nil {
		return zero, records.ToServiceError(err, s.resource, item.GetID())
	}
	s.invalidate(ctx)
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"resource": s.resource,
		"id":       created.GetID(),
	}).Info("record created")
	return created, nil
}

// Decode builds a new row from a client payload. Columns clients may not
// set are dropped.
func (s *Service[T]) Decode(data []byte) (T, error) {
	var zero T
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return zero, svcerrors.BadRequest("invalid JSON body")
	}
	for _, col := range s.immutable {
		delete(fields, col)
	}
	delete(fields, "updated_at")
	item, err := s.merge(s.store.Table().New(), fields)
	if err != nil {
		return zero, err
	}
	return item, nil
}

// Update applies a partial update. Only the owner or an admin may update.
func (s *Service[T]) Update(ctx context.Context, actor domain.Actor, id string, fields map[string]any) (T, error) {
	var zero T
	delete(fields, "updated_at")
	if err := s.store.Table().CheckFields(fields, s.immutable...); err != nil {
		return zero, records.ToServiceError(err, s.resource, id)
	}

	existing, err := s.authorize(ctx, actor, id)
	if err != nil {
		return zero, err
	}

	candidate, err := s.merge(existing, fields)
	if err != nil {
		return zero, err
	}
	if err := candidate.Validate(); err != nil {
		return zero, err
	}
	normalized, err := records.ToRow(candidate)
	if err != nil {
		return zero, svcerrors.Internal("encode update", err)
	}
	patch := make(map[string]any, len(fields)+1)
	for col := range fields {
		patch[col] = normalized[col]
	}
	if s.store.Table().HasColumn("updated_at") {
		patch["updated_at"] = s.now().UTC()
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return zero, records.ToServiceError(err, s.resource, id)
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a row. Only the owner or an admin may delete.
func (s *Service[T]) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := s.authorize(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return records.ToServiceError(err, s.resource, id)
	}
	s.invalidate(ctx)
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"resource": s.resource,
		"id":       id,
	}).Info("record deleted")
	return nil
}

// SetAvailability flips the availability flag of a row.
func (s *Service[T]) SetAvailability(ctx context.Context, actor domain.Actor, id string, available bool) (T, error) {
	return s.Update(ctx, actor, id, map[string]any{s.availability: available})
}

// Refresh refetches the visible rows and replaces the viewer's cache entry.
func (s *Service[T]) Refresh(ctx context.Context, viewer domain.Actor) error {
	if s.cache == nil {
		return nil
	}
	q := s.withVisible(records.Query{Limit: WarmLimit})
	items, err := s.store.Fetch(ctx, q)
	if err != nil {
		return records.ToServiceError(err, s.resource, "")
	}
	if err := cache.SetJSON(ctx, s.cache, cache.Key(viewer.Scope(), s.resource), items, s.ttl); err != nil {
		return svcerrors.Unavailable("cache write failed", err)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Service[T]) authorize(ctx context.Context, actor domain.Actor, id string) (T, error) {
	var zero T
	if actor.Anonymous() {
		return zero, svcerrors.Unauthorized("sign in to modify listings")
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return zero, records.ToServiceError(err, s.resource, id)
	}
	if !actor.CanModify(existing.GetOwnerID()) {
		s.logger.LogSecurityEvent(ctx, "ownership_denied", map[string]interface{}{
			"resource": s.resource,
			"id":       id,
		})
		return zero, svcerrors.Forbidden("only the owner or an admin can modify this " + s.resource)
	}
	return existing, nil
}

func (s *Service[T]) merge(base T, fields map[string]any) (T, error) {
	var zero T
	row, err := records.ToRow(base)
	if err != nil {
		return zero, svcerrors.Internal("encode row", err)
	}
	for k, v := range fields {
		row[k] = v
	}
	data, err := json.Marshal(row)
	if err != nil {
		return zero, svcerrors.BadRequest("invalid field values")
	}
	out := s.store.Table().New()
	if err := json.Unmarshal(data, out); err != nil {
		return zero, svcerrors.BadRequest(fmt.Sprintf("invalid field values: %v", err))
	}
	return out, nil
}

func (s *Service[T]) page(ctx context.Context, q records.Query, items []T) (*Page[T], error) {
	total := q.Offset + len(items)
	if q.Limit > 0 && (len(items) == q.Limit || q.Offset > 0) {
		n, err := s.store.Count(ctx, q)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("resource", s.resource).Warn("count failed")
		} else {
			total = n
		}
	}
	return &Page[T]{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *Service[T]) fallback(ctx context.Context, key string, q records.Query, cause error) (*Page[T], bool) {
	if s.cache == nil || errors.Is(cause, records.ErrInvalidInput) || errors.Is(cause, records.ErrForbidden) {
		return nil, false
	}
	log := s.logger.WithContext(ctx).WithField("resource", s.resource)

	var cached []T
	ok, err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err != nil {
		s.record(eventError)
		log.WithError(err).Warn("offline cache read failed")
		return nil, false
	}
	if !ok {
		s.record(eventMiss)
		return nil, false
	}

	searchable := s.store.Table().Searchable
	all, err := records.Apply(cached, q.Unpaged(), searchable)
	if err != nil {
		return nil, false
	}
	items, err := records.Apply(cached, q, searchable)
	if err != nil {
		return nil, false
	}
	s.record(eventFallback)
	log.WithError(cause).Warn("database unavailable, serving cached rows")
	return &Page[T]{Items: items, Total: len(all), Limit: q.Limit, Offset: q.Offset, Stale: true}, true
}

func (s *Service[T]) writeCache(ctx context.Context, key string, items []T) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, items, s.ttl); err != nil {
		s.record(eventError)
		s.logger.WithContext(ctx).WithError(err).WithField("resource", s.resource).Warn("offline cache write failed")
	}
}

func (s *Service[T]) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteMatch(ctx, cache.ResourcePattern(s.resource)); err != nil {
		s.record(eventError)
		s.logger.WithContext(ctx).WithError(err).WithField("resource", s.resource).Warn("cache invalidation failed")
	}
}

// Invalidate drops every cached copy of the resource.
func (s *Service[T]) Invalidate(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *Service[T]) record(event string) {
	if s.recorder != nil {
		s.recorder.RecordCacheEvent(s.resource, event)
	}
}

func (s *Service[T]) withVisible(q records.Query) records.Query {
	for _, f := range s.visible {
		q = q.Where(f.Column, f.Op, f.Value)
	}
	return q
}

func (s *Service[T]) isVisible(item T) bool {
	if len(s.visible) == 0 {
		return true
	}
	row, err := records.ToRow(item)
	if err != nil {
		return false
	}
	return records.Match(row, records.Query{Filters: s.visible}, nil)
}

func (s *Service[T]) ownerColumn() string {
	if s.store.Table().HasColumn("user_id") {
		return "user_id"
	}
	return "seller_id"
}

// cacheable reports whether a result of n rows for q can replace the offline
// copy: unfiltered, default order, and holding every row up to WarmLimit.
// A short first page is complete; a full page of a smaller limit is not.
func cacheable(q records.Query, baseFilters, n int) bool {
	if len(q.Filters) != baseFilters || q.Search != "" || q.Offset != 0 || len(q.Sort) != 0 {
		return false
	}
	return q.Limit == 0 || q.Limit >= WarmLimit || n < q.Limit
}
