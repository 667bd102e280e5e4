package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore talks to Postgres directly through sqlx. Column names are
// taken only from the table allowlist; values are always bound.
type PostgresStore[T Entity] struct {
	db    *sqlx.DB
	table Table[T]
}

// NewPostgresStore creates a store for table.
func NewPostgresStore[T Entity](db *sqlx.DB, table Table[T]) *PostgresStore[T] {
	return &PostgresStore[T]{db: db, table: table}
}

// Table returns the table definition.
func (s *PostgresStore[T]) Table() Table[T] {
	return s.table
}

type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) bind(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (s *PostgresStore[T]) where(q Query) *whereBuilder {
	w := &whereBuilder{}
	for _, f := range q.Filters {
		col := f.Column
		switch f.Op {
		case OpEq:
			w.clauses = append(w.clauses, col+" = "+w.bind(f.Value))
		case OpNeq:
			w.clauses = append(w.clauses, "("+col+" IS NULL OR "+col+" <> "+w.bind(f.Value)+")")
		case OpGt:
			w.clauses = append(w.clauses, col+" > "+w.bind(f.Value))
		case OpGte:
			w.clauses = append(w.clauses, col+" >= "+w.bind(f.Value))
		case OpLt:
			w.clauses = append(w.clauses, col+" < "+w.bind(f.Value))
		case OpLte:
			w.clauses = append(w.clauses, col+" <= "+w.bind(f.Value))
		case OpILike:
			pattern := strings.ReplaceAll(fmt.Sprint(f.Value), "*", "%")
			w.clauses = append(w.clauses, col+" ILIKE "+w.bind(pattern))
		case OpIn:
			values, _ := asSlice(f.Value)
			w.clauses = append(w.clauses, col+" = ANY("+w.bind(pq.Array(values))+")")
		case OpContains:
			values, _ := asSlice(f.Value)
			strs := make([]string, len(values))
			for i, v := range values {
				strs[i] = fmt.Sprint(v)
			}
			w.clauses = append(w.clauses, col+" @> "+w.bind(pq.StringArray(strs)))
		case OpIs:
			switch f.Value {
			case nil:
				w.clauses = append(w.clauses, col+" IS NULL")
			case true:
				w.clauses = append(w.clauses, col+" IS TRUE")
			default:
				w.clauses = append(w.clauses, col+" IS FALSE")
			}
		}
	}
	if term := searchTerm(q.Search); term != "" && len(s.table.Searchable) > 0 {
		ph := w.bind("%" + term + "%")
		conds := make([]string, len(s.table.Searchable))
		for i, col := range s.table.Searchable {
			conds[i] = col + " ILIKE " + ph
		}
		w.clauses = append(w.clauses, "("+strings.Join(conds, " OR ")+")")
	}
	return w
}

// Fetch runs q as a SELECT.
func (s *PostgresStore[T]) Fetch(ctx context.Context, q Query) ([]T, error) {
	if err := Validate(s.table, q); err != nil {
		return nil, err
	}
	w := s.where(q)

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s%s ORDER BY ", s.table.Name, w.sql())
	for i, srt := range q.Sorts() {
		if i > 0 {
			b.WriteString(", ")
		}
		dir := "ASC"
		if srt.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "%s %s", srt.Column, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s", w.bind(q.Limit))
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %s", w.bind(q.Offset))
	}

	rows := []T{}
	rx, err := s.db.QueryxContext(ctx, b.String(), w.args...)
	if err != nil {
		return nil, s.mapError(err, "fetch", "")
	}
	defer rx.Close()
	for rx.Next() {
		item := s.table.New()
		if err := rx.StructScan(item); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrDatabase, s.table.Name, err)
		}
		rows = append(rows, item)
	}
	if err := rx.Err(); err != nil {
		return nil, s.mapError(err, "fetch", "")
	}
	return rows, nil
}

// Get selects the row with id.
func (s *PostgresStore[T]) Get(ctx context.Context, id string) (T, error) {
	item := s.table.New()
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", s.table.Name)
	if err := s.db.GetContext(ctx, item, query, id); err != nil {
		var zero T
		return zero, s.mapError(err, "get", id)
	}
	return item, nil
}

// Create inserts entity with a named statement.
func (s *PostgresStore[T]) Create(ctx context.Context, entity T) (T, error) {
	cols := s.table.Columns
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s) RETURNING *",
		s.table.Name, strings.Join(cols, ", "), strings.Join(cols, ", :"))
	return s.namedReturning(ctx, query, entity, "create")
}

// Upsert inserts entity or overwrites the row with the same id.
func (s *PostgresStore[T]) Upsert(ctx context.Context, entity T) (T, error) {
	cols := s.table.Columns
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "id" || c == "created_at" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s) ON CONFLICT (id) DO UPDATE SET %s RETURNING *",
		s.table.Name, strings.Join(cols, ", "), strings.Join(cols, ", :"), strings.Join(sets, ", "))
	return s.namedReturning(ctx, query, entity, "upsert")
}

func (s *PostgresStore[T]) namedReturning(ctx context.Context, query string, entity T, op string) (T, error) {
	var zero T
	bound, args, err := sqlx.Named(query, entity)
	if err != nil {
		return zero, fmt.Errorf("%w: bind %s: %v", ErrInvalidInput, s.table.Name, err)
	}
	out := s.table.New()
	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(bound), args...).StructScan(out); err != nil {
		return zero, s.mapError(err, op, entity.GetID())
	}
	return out, nil
}

// Update sets the given columns on the row with id.
func (s *PostgresStore[T]) Update(ctx context.Context, id string, fields map[string]any) (T, error) {
	var zero T
	if err := s.table.CheckFields(fields); err != nil {
		return zero, err
	}
	cols := make([]string, 0, len(fields))
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	w := &whereBuilder{}
	sets := make([]string, len(cols))
	for i, c := range cols {
		v, err := sqlValue(fields[c])
		if err != nil {
			return zero, fmt.Errorf("%w: column %q: %v", ErrInvalidInput, c, err)
		}
		sets[i] = c + " = " + w.bind(v)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s RETURNING *",
		s.table.Name, strings.Join(sets, ", "), w.bind(id))

	out := s.table.New()
	if err := s.db.QueryRowxContext(ctx, query, w.args...).StructScan(out); err != nil {
		return zero, s.mapError(err, "update", id)
	}
	return out, nil
}

// Delete removes the row with id.
func (s *PostgresStore[T]) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table.Name), id)
	if err != nil {
		return s.mapError(err, "delete", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.mapError(err, "delete", id)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, s.table.Name, id)
	}
	return nil
}

// Count runs SELECT COUNT(*) with q's filters.
func (s *PostgresStore[T]) Count(ctx context.Context, q Query) (int, error) {
	if err := Validate(s.table, q); err != nil {
		return 0, err
	}
	w := s.where(q)
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table.Name, w.sql()), w.args...); err != nil {
		return 0, s.mapError(err, "count", "")
	}
	return n, nil
}

// Health pings the database.
func (s *PostgresStore[T]) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrDatabase, err)
	}
	return nil
}

func (s *PostgresStore[T]) mapError(err error, op, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, s.table.Name, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s %s: %s", ErrConflict, op, s.table.Name, pqErr.Message)
		case "23502", "23503", "23514", "22P02", "22001":
			return fmt.Errorf("%w: %s %s: %s", ErrInvalidInput, op, s.table.Name, pqErr.Message)
		case "42501":
			return fmt.Errorf("%w: %s %s: %s", ErrForbidden, op, s.table.Name, pqErr.Message)
		}
	}
	return fmt.Errorf("%w: %s %s: %v", ErrDatabase, op, s.table.Name, err)
}

// sqlValue converts decoded JSON values into driver values.
func sqlValue(v any) (any, error) {
	switch t := v.(type) {
	case []string:
		return pq.StringArray(t), nil
	case []any:
		strs := make([]string, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("array elements must be strings")
			}
			strs[i] = s
		}
		return pq.StringArray(strs), nil
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return v, nil
}
