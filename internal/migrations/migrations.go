// Package migrations holds the Postgres schema and applies it with
// golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/elghella/marketplace/internal/logging"
)

//go:embed sql/*.sql
var files embed.FS

// Migration is one embedded schema step.
type Migration struct {
	Version uint
	Name    string
}

// Source returns the embedded migrations as a golang-migrate source.
func Source() (source.Driver, error) {
	return iofs.New(files, "sql")
}

// List returns the embedded migrations in order.
func List() ([]Migration, error) {
	src, err := Source()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []Migration
	version, err := src.First()
	for err == nil {
		r, name, rerr := src.ReadUp(version)
		if rerr != nil {
			return nil, fmt.Errorf("read migration %d: %w", version, rerr)
		}
		r.Close()
		out = append(out, Migration{Version: version, Name: name})
		version, err = src.Next(version)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return out, nil
}

// Runner applies the embedded migrations to one database.
type Runner struct {
	m *migrate.Migrate
}

// NewRunner connects to databaseURL (postgres://...).
func NewRunner(databaseURL string, logger *logging.Logger) (*Runner, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("database url is required")
	}
	src, err := Source()
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	if logger != nil {
		m.Log = migrateLogger{logger: logger}
	}
	return &Runner{m: m}, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (r *Runner) Up() error {
	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back n migrations.
func (r *Runner) Down(n int) error {
	if n <= 0 {
		return errors.New("steps must be positive")
	}
	if err := r.m.Steps(-n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Version returns the applied version. ok is false on an empty database.
func (r *Runner) Version() (version uint, dirty bool, ok bool, err error) {
	version, dirty, err = r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("migrate version: %w", err)
	}
	return version, dirty, true, nil
}

// Force marks version as applied and clears the dirty flag.
func (r *Runner) Force(version int) error {
	return r.m.Force(version)
}

// Close releases the source and database connection.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// Up applies all migrations to databaseURL.
func Up(databaseURL string, logger *logging.Logger) error {
	r, err := NewRunner(databaseURL, logger)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Up()
}

type migrateLogger struct {
	logger *logging.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.WithFields(map[string]interface{}{"component": "migrate"}).Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool { return false }
