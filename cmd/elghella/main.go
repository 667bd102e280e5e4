// Package main runs the Elghella marketplace API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/elghella/marketplace/internal/api"
	"github.com/elghella/marketplace/internal/auth"
	"github.com/elghella/marketplace/internal/cache"
	"github.com/elghella/marketplace/internal/config"
	"github.com/elghella/marketplace/internal/domain"
	"github.com/elghella/marketplace/internal/listings"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/marketplace"
	"github.com/elghella/marketplace/internal/messages"
	"github.com/elghella/marketplace/internal/metrics"
	"github.com/elghella/marketplace/internal/middleware"
	"github.com/elghella/marketplace/internal/migrations"
	"github.com/elghella/marketplace/internal/profiles"
	"github.com/elghella/marketplace/internal/realtime"
	"github.com/elghella/marketplace/internal/records"
	"github.com/elghella/marketplace/internal/scheduler"
	"github.com/elghella/marketplace/internal/seed"
	"github.com/elghella/marketplace/internal/service"
	"github.com/elghella/marketplace/internal/settings"
	"github.com/elghella/marketplace/internal/supabase"
	"github.com/elghella/marketplace/internal/uploads"
)

const serviceName = "elghella"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("service failed")
	}
}

// resources collects everything built from the configuration.
type resources struct {
	supabase *supabase.Client
	db       *sqlx.DB
	cache    cache.Cache
	memCache *cache.MemoryCache
	redis    *cache.RedisCache
}

func (r *resources) close(logger *logging.Logger) {
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			logger.WithError(err).Warn("close cache")
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			logger.WithError(err).Warn("close database")
		}
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	res, err := openResources(cfg, logger, m)
	if err != nil {
		return err
	}
	defer res.close(logger)

	// Data layer
	src := records.Source{
		Backend:  records.Backend(cfg.Data.Backend),
		Supabase: res.supabase,
		DB:       res.db,
		Observer: m,
	}
	base := listings.Options{
		Cache:    res.cache,
		CacheTTL: cfg.Cache.TTL,
		Logger:   logger,
		Recorder: m,
	}
	reg := listings.NewRegistry()
	if err := listings.RegisterDefaults(reg, src, base); err != nil {
		return err
	}
	itemStore, err := records.Open(src, domain.MarketplaceItemTable)
	if err != nil {
		return fmt.Errorf("open items store: %w", err)
	}
	categoryStore, err := records.Open(src, domain.CategoryTable)
	if err != nil {
		return fmt.Errorf("open categories store: %w", err)
	}
	messageStore, err := records.Open(src, domain.MessageTable)
	if err != nil {
		return fmt.Errorf("open messages store: %w", err)
	}
	profileStore, err := records.Open(src, domain.ProfileTable)
	if err != nil {
		return fmt.Errorf("open profiles store: %w", err)
	}
	settingsStore, err := records.Open(src, domain.WebsiteSettingsTable)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}

	market := marketplace.New(itemStore, categoryStore, base)
	siteSettings := settings.New(settingsStore, cfg.Cache.SettingsTTL, logger)
	inbox := messages.New(messageStore, logger)
	profileSvc := profiles.New(profileStore, logger)

	// Authentication
	roles := auth.NewResolver(cfg.Security.AdminUserIDs, profileSvc, 5*time.Minute, logger)
	var authMW *middleware.AuthMiddleware
	if cfg.Supabase.JWTSecret != "" {
		verifier, err := auth.NewVerifier(cfg.Supabase.JWTSecret)
		if err != nil {
			return err
		}
		authMW = middleware.NewAuthMiddleware(auth.NewAuthenticator(verifier, roles), logger)
	} else {
		logger.Warn("SUPABASE_JWT_SECRET not set; every request is anonymous")
	}
	var provider auth.Provider
	if res.supabase != nil {
		provider = res.supabase.Auth()
	}
	authSvc := auth.NewService(provider, profileSvc, roles, logger)

	// Uploads
	var storage uploads.Storage
	if res.supabase != nil {
		storage = res.supabase.Storage().From(cfg.Uploads.Bucket)
	} else {
		logger.Warn("supabase not configured; image uploads disabled")
	}
	uploader := uploads.New(storage, cfg.Uploads.MaxBytes, reg.Names(), logger)

	// HTTP middleware
	var limiter *middleware.RateLimiter
	if cfg.Security.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst, logger, m)
	}

	// Health, hydrate and background workers
	baseSvc := service.NewBase(service.BaseConfig{
		Name:    serviceName,
		Version: version,
		Logger:  logger,
		Checks:  healthChecks(res, settingsStore),
	})
	warmers := func() []scheduler.Warmer {
		var out []scheduler.Warmer
		for _, r := range reg.All() {
			out = append(out, r)
		}
		return append(out,
			warmer{name: marketplace.ResourceItems, refresh: func(ctx context.Context) error {
				return market.Items().Refresh(ctx, domain.Actor{})
			}},
			warmer{name: marketplace.ResourceCategories, refresh: func(ctx context.Context) error {
				return market.Categories().Refresh(ctx, domain.Actor{})
			}},
		)
	}
	baseSvc.WithHydrate(func(ctx context.Context) error {
		if cfg.Data.Backend == config.BackendMemory {
			if _, err := seed.Apply(ctx, categoryStore, settingsStore, logger); err != nil {
				return err
			}
		}
		if err := siteSettings.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("initial settings load failed; serving defaults")
		}
		return nil
	})
	baseSvc.WithStats(func() map[string]any {
		stats := map[string]any{
			"backend":   cfg.Data.Backend,
			"resources": reg.Names(),
		}
		if limiter != nil {
			stats["rate_limited_clients"] = limiter.Len()
		}
		if res.memCache != nil {
			stats["cache_entries"] = res.memCache.Len()
		}
		if res.supabase != nil && res.supabase.Transport() != nil {
			stats["supabase_circuit"] = res.supabase.Transport().CircuitState().String()
		}
		return stats
	})

	if cfg.Realtime.Enabled && res.supabase != nil {
		listener := realtime.NewListener(res.supabase.Realtime(), logger, m)
		listener.WatchRegistry(reg)
		listener.Watch(domain.TableMarketplaceItem, func(ctx context.Context, _ supabase.ChangeEvent) {
			market.Items().Invalidate(ctx)
		})
		listener.Watch(domain.TableCategories, func(ctx context.Context, _ supabase.ChangeEvent) {
			market.Categories().Invalidate(ctx)
		})
		listener.Watch(domain.TableWebsiteSettings, func(ctx context.Context, _ supabase.ChangeEvent) {
			siteSettings.Invalidate()
			if err := siteSettings.Refresh(ctx); err != nil {
				logger.WithError(err).Warn("settings reload after change failed")
			}
		})
		listener.Watch(domain.TableProfiles, func(_ context.Context, ev supabase.ChangeEvent) {
			roles.Forget(ev.RecordID())
		})
		baseSvc.AddWorker(func(ctx context.Context) {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("realtime listener stopped")
			}
		})
	}

	cleanupTasks := []func(){roles.Purge}
	if limiter != nil {
		cleanupTasks = append(cleanupTasks, func() { limiter.Cleanup(10 * time.Minute) })
	}
	if res.memCache != nil {
		cleanupTasks = append(cleanupTasks, func() { res.memCache.Purge() })
	}
	sched := scheduler.New(logger, m)
	for _, job := range []scheduler.Job{
		scheduler.WarmCaches(cfg.Scheduler.CacheWarmSpec, warmers),
		scheduler.RefreshSettings(cfg.Scheduler.SettingsRefreshSpec, siteSettings),
		scheduler.Cleanup(cfg.Scheduler.CleanupSpec, cleanupTasks...),
	} {
		if err := sched.Add(job); err != nil {
			return err
		}
	}

	if err := baseSvc.Start(ctx); err != nil {
		return err
	}
	sched.Start()
	go func() {
		if err := sched.RunNow(ctx, scheduler.JobWarmCaches); err != nil {
			logger.WithError(err).Warn("initial cache warm failed")
		}
	}()

	srv := api.NewServer(api.Deps{
		Logger:      logger,
		Metrics:     m,
		Base:        baseSvc,
		Registry:    reg,
		Marketplace: market,
		Messages:    inbox,
		Profiles:    profileSvc,
		Settings:    siteSettings,
		Auth:        authSvc,
		AuthMW:      authMW,
		Limiter:     limiter,
		CORS:        middleware.NewCORSMiddleware(cfg.Security.CORSOrigins),
		Uploads:     uploader,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    httpServer.Addr,
			"backend": cfg.Data.Backend,
			"version": version,
		}).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("scheduler shutdown")
	}
	cancel()
	if err := baseSvc.Stop(); err != nil {
		logger.WithError(err).Warn("service stop")
	}
	logger.Info("service stopped")
	return nil
}

func openResources(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*resources, error) {
	res := &resources{}

	if cfg.SupabaseEnabled() {
		resilience := supabase.DefaultResilienceConfig()
		resilience.Retry.MaxRetries = cfg.Supabase.MaxRetries
		resilience.CircuitBreaker.OnStateChange = func(from, to supabase.CircuitState) {
			m.SetCircuitState(int(to))
			logger.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn("supabase circuit breaker changed state")
		}
		client, err := supabase.New(supabase.Config{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.APIKey(),
			Timeout:    cfg.Supabase.Timeout,
			Resilience: &resilience,
		})
		if err != nil {
			return nil, fmt.Errorf("supabase client: %w", err)
		}
		res.supabase = client
	}

	if cfg.Data.Backend == config.BackendPostgres {
		if cfg.Data.AutoMigrate {
			if err := migrations.Up(cfg.Data.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		db, err := sqlx.Open("postgres", cfg.Data.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Data.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Data.MaxIdleConns)
		db.SetConnMaxLifetime(30 * time.Minute)
		res.db = db
	}

	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.Cache.RedisURL)
		if err != nil {
			res.close(logger)
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		res.redis = rc
		res.cache = rc
	} else {
		res.memCache = cache.NewMemoryCache()
		res.cache = res.memCache
	}
	return res, nil
}

func healthChecks(res *resources, probe records.Store[*domain.WebsiteSettings]) []service.Check {
	checks := []service.Check{{Name: "database", Critical: true, Probe: probe.Health}}
	if res.redis != nil {
		checks = append(checks, service.Check{Name: "redis", Probe: res.redis.Ping})
	}
	if res.supabase != nil && res.supabase.Transport() != nil {
		transport := res.supabase.Transport()
		checks = append(checks, service.Check{Name: "supabase_circuit", Probe: func(context.Context) error {
			if transport.CircuitState() == supabase.CircuitOpen {
				return supabase.ErrCircuitOpen
			}
			return nil
		}})
	}
	return checks
}

// warmer adapts a refresh func to scheduler.Warmer.
type warmer struct {
	name    string
	refresh func(ctx context.Context) error
}

func (w warmer) Name() string                      { return w.name }
func (w warmer) Refresh(ctx context.Context) error { return w.refresh(ctx) }
