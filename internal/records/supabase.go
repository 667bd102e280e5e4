package records

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elghella/marketplace/internal/supabase"
)

// SupabaseStore reads and writes a table through PostgREST. A user access
// token attached with supabase.WithAccessToken is forwarded so RLS applies.
type SupabaseStore[T Entity] struct {
	client *supabase.Client
	table  Table[T]
}

// NewSupabaseStore creates a store for table.
func NewSupabaseStore[T Entity](client *supabase.Client, table Table[T]) *SupabaseStore[T] {
	return &SupabaseStore[T]{client: client, table: table}
}

// Table returns the table definition.
func (s *SupabaseStore[T]) Table() Table[T] {
	return s.table
}

func (s *SupabaseStore[T]) build(q Query) *supabase.QueryBuilder {
	qb := s.client.From(s.table.Name)
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq:
			qb.Eq(f.Column, f.Value)
		case OpNeq:
			qb.Neq(f.Column, f.Value)
		case OpGt:
			qb.Gt(f.Column, f.Value)
		case OpGte:
			qb.Gte(f.Column, f.Value)
		case OpLt:
			qb.Lt(f.Column, f.Value)
		case OpLte:
			qb.Lte(f.Column, f.Value)
		case OpILike:
			qb.ILike(f.Column, strings.ReplaceAll(fmt.Sprint(f.Value), "%", "*"))
		case OpIn:
			values, _ := asSlice(f.Value)
			qb.In(f.Column, values)
		case OpContains:
			values, _ := asSlice(f.Value)
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = supabase.FormatValue(v)
			}
			qb.Contains(f.Column, parts)
		case OpIs:
			qb.Is(f.Column, f.Value)
		}
	}
	if term := searchTerm(q.Search); term != "" && len(s.table.Searchable) > 0 {
		conds := make([]string, len(s.table.Searchable))
		for i, col := range s.table.Searchable {
			conds[i] = fmt.Sprintf("%s.ilike.*%s*", col, term)
		}
		qb.Or(strings.Join(conds, ","))
	}
	return qb
}

// Fetch runs q as a PostgREST select.
func (s *SupabaseStore[T]) Fetch(ctx context.Context, q Query) ([]T, error) {
	if err := Validate(s.table, q); err != nil {
		return nil, err
	}
	qb := s.build(q)
	for _, srt := range q.Sorts() {
		qb.Order(srt.Column, !srt.Desc)
	}
	if q.Limit > 0 {
		qb.Limit(q.Limit)
	}
	if q.Offset > 0 {
		qb.Offset(q.Offset)
	}

	resp, err := qb.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrDatabase, s.table.Name, err)
	}
	var rows []T
	if err := s.decode(resp, &rows, "fetch"); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// Get fetches a single row by id.
func (s *SupabaseStore[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	resp, err := s.client.From(s.table.Name).Eq("id", id).Limit(1).Execute(ctx)
	if err != nil {
		return zero, fmt.Errorf("%w: get %s: %v", ErrDatabase, s.table.Name, err)
	}
	var rows []T
	if err := s.decode(resp, &rows, "get"); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, s.table.Name, id)
	}
	return rows[0], nil
}

// Create inserts entity and returns the stored representation.
func (s *SupabaseStore[T]) Create(ctx context.Context, entity T) (T, error) {
	resp, err := s.client.From(s.table.Name).Insert(ctx, entity)
	return s.single(resp, err, "create", entity.GetID())
}

// Upsert merges entity on id.
func (s *SupabaseStore[T]) Upsert(ctx context.Context, entity T) (T, error) {
	resp, err := s.client.From(s.table.Name).OnConflict("id").Upsert(ctx, entity)
	return s.single(resp, err, "upsert", entity.GetID())
}

// Update patches the row with id.
func (s *SupabaseStore[T]) Update(ctx context.Context, id string, fields map[string]any) (T, error) {
	var zero T
	if err := s.table.CheckFields(fields); err != nil {
		return zero, err
	}
	resp, err := s.client.From(s.table.Name).Eq("id", id).Update(ctx, fields)
	return s.single(resp, err, "update", id)
}

// Delete removes the row with id.
func (s *SupabaseStore[T]) Delete(ctx context.Context, id string) error {
	resp, err := s.client.From(s.table.Name).Eq("id", id).Delete(ctx)
	_, err = s.single(resp, err, "delete", id)
	return err
}

// Count asks PostgREST for an exact count.
func (s *SupabaseStore[T]) Count(ctx context.Context, q Query) (int, error) {
	if err := Validate(s.table, q); err != nil {
		return 0, err
	}
	resp, err := s.build(q).Select("id").Count("exact").Limit(1).Execute(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", ErrDatabase, s.table.Name, err)
	}
	if err := s.mapError(resp.Err(), "count"); err != nil {
		return 0, err
	}
	total, ok := resp.Total()
	if !ok {
		return 0, fmt.Errorf("%w: count %s: missing Content-Range", ErrDatabase, s.table.Name)
	}
	return total, nil
}

// Health probes the table with a one-row select.
func (s *SupabaseStore[T]) Health(ctx context.Context) error {
	resp, err := s.client.From(s.table.Name).Select("id").Limit(1).Execute(ctx)
	if err != nil {
		return fmt.Errorf("%w: health %s: %v", ErrDatabase, s.table.Name, err)
	}
	return s.mapError(resp.Err(), "health")
}

func (s *SupabaseStore[T]) single(resp *supabase.Response, err error, op, id string) (T, error) {
	var zero T
	if err != nil {
		return zero, fmt.Errorf("%w: %s %s: %v", ErrDatabase, op, s.table.Name, err)
	}
	var rows []T
	if err := s.decode(resp, &rows, op); err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		if op == "create" || op == "upsert" {
			// RLS may hide the inserted row from the caller.
			return zero, fmt.Errorf("%w: %s %s returned no row", ErrForbidden, op, s.table.Name)
		}
		return zero, fmt.Errorf("%w: %s %s", ErrNotFound, s.table.Name, id)
	}
	return rows[0], nil
}

func (s *SupabaseStore[T]) decode(resp *supabase.Response, v any, op string) error {
	if err := s.mapError(resp.Err(), op); err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil
	}
	if err := resp.JSON(v); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrDatabase, op, s.table.Name, err)
	}
	return nil
}

func (s *SupabaseStore[T]) mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *supabase.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s %s: %v", ErrDatabase, op, s.table.Name, err)
	}
	switch {
	case apiErr.NotFound():
		return fmt.Errorf("%w: %s %s: %s", ErrNotFound, op, s.table.Name, apiErr.Message)
	case apiErr.Conflict():
		return fmt.Errorf("%w: %s %s: %s", ErrConflict, op, s.table.Name, apiErr.Message)
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden || apiErr.Code == "42501":
		return fmt.Errorf("%w: %s %s: %s", ErrForbidden, op, s.table.Name, apiErr.Message)
	case apiErr.StatusCode == http.StatusBadRequest || apiErr.Code == "22P02" || apiErr.Code == "23502" || apiErr.Code == "23514":
		return fmt.Errorf("%w: %s %s: %s", ErrInvalidInput, op, s.table.Name, apiErr.Message)
	}
	return fmt.Errorf("%w: %s %s: %s", ErrDatabase, op, s.table.Name, apiErr.Message)
}
