package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Rows are copied on the way in and out
// so callers never share state with the store.
type MemoryStore[T Entity] struct {
	mu    sync.RWMutex
	table Table[T]
	rows  map[string]T
	now   func() time.Time
}

// NewMemoryStore creates an empty memory store for table.
func NewMemoryStore[T Entity](table Table[T]) *MemoryStore[T] {
	return &MemoryStore[T]{
		table: table,
		rows:  make(map[string]T),
		now:   time.Now,
	}
}

// Table returns the table definition.
func (s *MemoryStore[T]) Table() Table[T] {
	return s.table
}

// Seed replaces the store contents.
func (s *MemoryStore[T]) Seed(items ...T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]T, len(items))
	for _, item := range items {
		c, err := s.clone(item)
		if err != nil {
			return err
		}
		s.rows[c.GetID()] = c
	}
	return nil
}

// Fetch evaluates q over all rows.
func (s *MemoryStore[T]) Fetch(ctx context.Context, q Query) ([]T, error) {
	if err := Validate(s.table, q); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]T, 0, len(s.rows))
	for _, row := range s.rows {
		items = append(items, row)
	}
	s.mu.RUnlock()

	matched, err := Apply(items, q, s.table.Searchable)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(matched))
	for _, item := range matched {
		c, err := s.clone(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Get returns the row with id.
func (s *MemoryStore[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.RLock()
	row, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, s.table.Name, id)
	}
	return s.clone(row)
}

// Create inserts entity.
func (s *MemoryStore[T]) Create(ctx context.Context, entity T) (T, error) {
	var zero T
	if entity.GetID() == "" || entity.GetCreatedAt().IsZero() {
		entity.Prepare(entity.GetOwnerID(), s.now())
	}
	c, err := s.clone(entity)
	if err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[c.GetID()]; exists {
		return zero, fmt.Errorf("%w: %s %s", ErrConflict, s.table.Name, c.GetID())
	}
	s.rows[c.GetID()] = c
	return s.clone(c)
}

// Upsert inserts or replaces entity.
func (s *MemoryStore[T]) Upsert(ctx context.Context, entity T) (T, error) {
	var zero T
	if entity.GetID() == "" || entity.GetCreatedAt().IsZero() {
		entity.Prepare(entity.GetOwnerID(), s.now())
	}
	c, err := s.clone(entity)
	if err != nil {
		return zero, err
	}
	s.mu.Lock()
	s.rows[c.GetID()] = c
	s.mu.Unlock()
	return s.clone(c)
}

// Update merges fields into the row with id.
func (s *MemoryStore[T]) Update(ctx context.Context, id string, fields map[string]any) (T, error) {
	var zero T
	if err := s.table.CheckFields(fields); err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rows[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, s.table.Name, id)
	}
	row, err := ToRow(existing)
	if err != nil {
		return zero, err
	}
	for k, v := range fields {
		row[k] = v
	}
	data, err := json.Marshal(row)
	if err != nil {
		return zero, fmt.Errorf("%w: encode %s: %v", ErrInvalidInput, s.table.Name, err)
	}
	updated := s.table.New()
	if err := json.Unmarshal(data, updated); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if updated.GetID() != id {
		return zero, fmt.Errorf("%w: id cannot change", ErrInvalidInput)
	}
	s.rows[id] = updated
	return s.clone(updated)
}

// Delete removes the row with id.
func (s *MemoryStore[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, s.table.Name, id)
	}
	delete(s.rows, id)
	return nil
}

// Count returns the number of rows matching q, ignoring pagination.
func (s *MemoryStore[T]) Count(ctx context.Context, q Query) (int, error) {
	rows, err := s.Fetch(ctx, q.Unpaged())
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Health always succeeds.
func (s *MemoryStore[T]) Health(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore[T]) clone(v T) (T, error) {
	var zero T
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", s.table.Name, err)
	}
	out := s.table.New()
	if err := json.Unmarshal(data, out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", s.table.Name, err)
	}
	return out, nil
}
