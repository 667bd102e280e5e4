// Package main applies the embedded database schema.
//
// Usage:
//
//	elghella-migrate up
//	elghella-migrate down N
//	elghella-migrate version
//	elghella-migrate force VERSION
//	elghella-migrate list
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/elghella/marketplace/internal/config"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/migrations"
)

func main() {
	dbURL := flag.String("database-url", "", "postgres connection url (defaults to DATABASE_URL)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-database-url URL] up|down N|version|force VERSION|list\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := logging.New("elghella-migrate", "info", "text")
	if err := run(flag.Args(), *dbURL, logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
}

func run(args []string, dbURL string, logger *logging.Logger) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("command is required")
	}

	if args[0] == "list" {
		list, err := migrations.List()
		if err != nil {
			return err
		}
		for _, m := range list {
			fmt.Printf("%06d  %s\n", m.Version, m.Name)
		}
		return nil
	}

	if dbURL == "" {
		cfg := config.Default()
		if err := cfg.LoadEnv(); err != nil {
			return err
		}
		dbURL = cfg.Data.DatabaseURL
	}
	runner, err := migrations.NewRunner(dbURL, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch args[0] {
	case "up":
		if err := runner.Up(); err != nil {
			return err
		}
	case "down":
		n, err := intArg(args, "down N")
		if err != nil {
			return err
		}
		if err := runner.Down(n); err != nil {
			return err
		}
	case "force":
		v, err := intArg(args, "force VERSION")
		if err != nil {
			return err
		}
		if err := runner.Force(v); err != nil {
			return err
		}
	case "version":
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	version, dirty, ok, err := runner.Version()
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("database has no migrations applied")
		return nil
	}
	logger.WithFields(map[string]interface{}{"version": version, "dirty": dirty}).Info("schema version")
	return nil
}

func intArg(args []string, usage string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("usage: %s: %w", usage, err)
	}
	return n, nil
}
