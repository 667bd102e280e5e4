// Package records is the backend-agnostic data access layer. A Store[T]
// exposes the same fetch/create/update/delete operations over Supabase
// (PostgREST), a direct Postgres connection or process memory.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors returned by every backend, wrapped with context.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("record conflict")
	ErrForbidden    = errors.New("operation not permitted")
	ErrDatabase     = errors.New("database error")
)

// Entity is a row that can be stored.
type Entity interface {
	GetID() string
	GetOwnerID() string
	GetCreatedAt() time.Time
	// Prepare assigns an id when empty, the owner and both timestamps.
	Prepare(ownerID string, now time.Time)
	// Touch stamps updated_at.
	Touch(now time.Time)
}

// Table describes where and how rows of T are stored.
type Table[T Entity] struct {
	// Name is the database table.
	Name string
	// Columns is the allowlist used for filters, sorts, updates and inserts.
	Columns []string
	// Searchable columns are matched by Query.Search.
	Searchable []string
	// New returns an empty row with defaults applied.
	New func() T
}

// HasColumn reports whether col is in the table's allowlist.
func (t Table[T]) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// CheckFields rejects unknown and immutable columns in a partial update.
func (t Table[T]) CheckFields(fields map[string]any, immutable ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	for col := range fields {
		if !t.HasColumn(col) {
			return fmt.Errorf("%w: unknown column %q on %s", ErrInvalidInput, col, t.Name)
		}
		for _, im := range immutable {
			if col == im {
				return fmt.Errorf("%w: column %q is read-only", ErrInvalidInput, col)
			}
		}
	}
	return nil
}

// Store is the generic CRUD interface over a table.
type Store[T Entity] interface {
	// Fetch returns the rows matching q.
	Fetch(ctx context.Context, q Query) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	// Create inserts entity and returns the stored row.
	Create(ctx context.Context, entity T) (T, error)
	// Upsert inserts entity or replaces the row with the same id.
	Upsert(ctx context.Context, entity T) (T, error)
	// Update applies a partial update and returns the stored row.
	Update(ctx context.Context, id string, fields map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, q Query) (int, error)
	Health(ctx context.Context) error
	Table() Table[T]
}

// =============================================================================
// Query
// =============================================================================

// Op is a filter operator.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpILike    Op = "ilike"
	OpIn       Op = "in"
	OpIs       Op = "is"
	OpContains Op = "cs"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpILike, OpIn, OpIs, OpContains:
		return true
	}
	return false
}

// Filter is one column predicate. ILike patterns use * as the wildcard;
// In and Contains take a slice value; Is takes nil, true or false.
type Filter struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value"`
}

// Sort orders results by a column.
type Sort struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// DefaultSort is insertion order by timestamp, newest first.
var DefaultSort = []Sort{{Column: "created_at", Desc: true}}

// Query selects rows.
type Query struct {
	Filters []Filter `json:"filters,omitempty"`
	// Search is a case-insensitive substring match over searchable columns.
	Search string `json:"search,omitempty"`
	Sort   []Sort `json:"sort,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(column string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Column: column, Op: op, Value: value})
	return q
}

// OrderBy returns a copy of q sorted by column.
func (q Query) OrderBy(column string, desc bool) Query {
	sorts := make([]Sort, len(q.Sort), len(q.Sort)+1)
	copy(sorts, q.Sort)
	q.Sort = append(sorts, Sort{Column: column, Desc: desc})
	return q
}

// Sorts returns the effective ordering.
func (q Query) Sorts() []Sort {
	if len(q.Sort) == 0 {
		return DefaultSort
	}
	return q.Sort
}

// Unpaged returns q without limit and offset.
func (q Query) Unpaged() Query {
	q.Limit, q.Offset = 0, 0
	return q
}

// Validate checks q against the table allowlist.
func Validate[T Entity](t Table[T], q Query) error {
	for _, f := range q.Filters {
		if !t.HasColumn(f.Column) {
			return fmt.Errorf("%w: unknown filter column %q on %s", ErrInvalidInput, f.Column, t.Name)
		}
		if !f.Op.valid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidInput, f.Op)
		}
		switch f.Op {
		case OpIn, OpContains:
			if _, ok := asSlice(f.Value); !ok {
				return fmt.Errorf("%w: %s on %q needs a list", ErrInvalidInput, f.Op, f.Column)
			}
		case OpIs:
			switch f.Value.(type) {
			case nil, bool:
			default:
				return fmt.Errorf("%w: is on %q accepts null, true or false", ErrInvalidInput, f.Column)
			}
		}
	}
	for _, s := range q.Sort {
		if !t.HasColumn(s.Column) {
			return fmt.Errorf("%w: unknown sort column %q on %s", ErrInvalidInput, s.Column, t.Name)
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must be non-negative", ErrInvalidInput)
	}
	return nil
}

// searchTerm strips characters that would break a PostgREST or=() list.
func searchTerm(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*', '%', '\\', '"':
			return -1
		}
		return r
	}, s)
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}
