package records

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/elghella/marketplace/internal/supabase"
)

// Backend names the store implementation to use.
type Backend string

const (
	BackendSupabase Backend = "supabase"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// Source holds the connections a backend needs.
type Source struct {
	Backend  Backend
	Supabase *supabase.Client
	DB       *sqlx.DB
	Observer Observer
}

// Open creates a store for table on the configured backend.
func Open[T Entity](src Source, table Table[T]) (Store[T], error) {
	if table.Name == "" || table.New == nil {
		return nil, fmt.Errorf("table definition is incomplete")
	}

	var store Store[T]
	switch src.Backend {
	case BackendSupabase, "":
		if src.Supabase == nil {
			return nil, fmt.Errorf("supabase backend selected without a client")
		}
		store = NewSupabaseStore(src.Supabase, table)
	case BackendPostgres:
		if src.DB == nil {
			return nil, fmt.Errorf("postgres backend selected without a database")
		}
		store = NewPostgresStore(src.DB, table)
	case BackendMemory:
		store = NewMemoryStore(table)
	default:
		return nil, fmt.Errorf("unknown data backend %q", src.Backend)
	}
	return Observed(store, src.Observer), nil
}
