// Package main inserts the default categories and website settings through
// the configured data backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/elghella/marketplace/internal/config"
	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/records"
	"github.com/elghella/marketplace/internal/seed"
	"github.com/elghella/marketplace/internal/supabase"
)

func main() {
	envFile := flag.String("env", "", "additional .env file to load before the environment")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load env (%s): %v\n", *envFile, err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New("elghella-seed", cfg.Log.Level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("seed failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	src := records.Source{Backend: records.Backend(cfg.Data.Backend)}
	switch cfg.Data.Backend {
	case config.BackendSupabase:
		if cfg.Supabase.ServiceRoleKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required to seed through Supabase")
		}
		client, err := supabase.New(supabase.Config{
			URL:     cfg.Supabase.URL,
			APIKey:  cfg.Supabase.ServiceRoleKey,
			Timeout: cfg.Supabase.Timeout,
		})
		if err != nil {
			return err
		}
		src.Supabase = client
	case config.BackendPostgres:
		db, err := sqlx.Connect("postgres", cfg.Data.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		src.DB = db
	default:
		return fmt.Errorf("backend %q has nothing to seed", cfg.Data.Backend)
	}

	categories, err := records.Open(src, domain.CategoryTable)
	if err != nil {
		return err
	}
	settings, err := records.Open(src, domain.WebsiteSettingsTable)
	if err != nil {
		return err
	}
	res, err := seed.Apply(ctx, categories, settings, logger)
	if err != nil {
		return err
	}
	fmt.Printf("categories inserted: %d, settings created: %t\n", res.Categories, res.Settings)
	return nil
}
