// Package config loads the marketplace service configuration. Values come
// from built-in defaults, then an optional YAML file named by CONFIG_FILE,
// then the environment (after loading a .env file when present).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Data backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Data      DataConfig      `yaml:"data"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Cache     CacheConfig     `yaml:"cache"`
	Security  SecurityConfig  `yaml:"security"`
	Uploads   UploadConfig    `yaml:"uploads"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// DataConfig selects the storage backend.
type DataConfig struct {
	Backend     string `yaml:"backend" env:"DATA_BACKEND"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	// AutoMigrate applies the embedded schema on start (postgres only).
	AutoMigrate  bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	MaxOpenConns int  `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int  `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
}

// SupabaseConfig holds the Supabase project credentials.
type SupabaseConfig struct {
	URL            string        `yaml:"url" env:"SUPABASE_URL"`
	AnonKey        string        `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string        `yaml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	JWTSecret      string        `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
	Timeout        time.Duration `yaml:"timeout" env:"SUPABASE_TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" env:"SUPABASE_MAX_RETRIES"`
}

// APIKey returns the key used for server-side requests: the service role
// key when configured, otherwise the anon key.
func (s SupabaseConfig) APIKey() string {
	if s.ServiceRoleKey != "" {
		return s.ServiceRoleKey
	}
	return s.AnonKey
}

// CacheConfig controls the offline cache.
type CacheConfig struct {
	// RedisURL selects Redis; empty means in-process memory.
	RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL"`
	// SettingsTTL is how long website settings are served from memory.
	SettingsTTL time.Duration `yaml:"settings_ttl" env:"SETTINGS_CACHE_TTL"`
}

// SecurityConfig controls CORS, rate limiting and admin access.
type SecurityConfig struct {
	CORSOrigins    []string `yaml:"cors_origins"`
	CORSOriginsEnv string   `yaml:"-" env:"CORS_ORIGINS"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	AdminUserIDs   []string `yaml:"admin_user_ids"`
	AdminIDsEnv    string   `yaml:"-" env:"ADMIN_USER_IDS"`
}

// UploadConfig controls image uploads.
type UploadConfig struct {
	Bucket   string `yaml:"bucket" env:"UPLOAD_BUCKET"`
	MaxBytes int64  `yaml:"max_bytes" env:"UPLOAD_MAX_BYTES"`
}

// RealtimeConfig controls the change feed subscription.
type RealtimeConfig struct {
	Enabled bool `yaml:"enabled" env:"REALTIME_ENABLED"`
}

// SchedulerConfig holds cron specs. An empty spec disables the job.
type SchedulerConfig struct {
	CacheWarmSpec       string `yaml:"cache_warm_spec" env:"CACHE_WARM_SPEC"`
	SettingsRefreshSpec string `yaml:"settings_refresh_spec" env:"SETTINGS_REFRESH_SPEC"`
	CleanupSpec         string `yaml:"cleanup_spec" env:"CLEANUP_SPEC"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Data: DataConfig{
			Backend:      BackendSupabase,
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Supabase: SupabaseConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Cache: CacheConfig{
			TTL:         24 * time.Hour,
			SettingsTTL: 5 * time.Minute,
		},
		Security: SecurityConfig{
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Uploads: UploadConfig{
			Bucket:   "listings",
			MaxBytes: 5 << 20,
		},
		Realtime: RealtimeConfig{Enabled: true},
		Scheduler: SchedulerConfig{
			CacheWarmSpec:       "@every 10m",
			SettingsRefreshSpec: "@every 5m",
			CleanupSpec:         "@hourly",
		},
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the
// environment, then validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv overlays environment variables. Unset variables keep the current
// value.
func (c *Config) LoadEnv() error {
	if err := envdecode.Decode(c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	if c.Security.CORSOriginsEnv != "" {
		c.Security.CORSOrigins = SplitList(c.Security.CORSOriginsEnv)
	}
	if c.Security.AdminIDsEnv != "" {
		c.Security.AdminUserIDs = SplitList(c.Security.AdminIDsEnv)
	}
	c.Data.Backend = strings.ToLower(strings.TrimSpace(c.Data.Backend))
	return nil
}

// Validate checks the configuration for the selected backend.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.Data.Backend {
	case BackendSupabase:
		if err := c.requireSupabase(); err != nil {
			return err
		}
	case BackendPostgres:
		if c.Data.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown data backend %q", c.Data.Backend)
	}

	if c.Supabase.URL != "" {
		if err := c.requireSupabase(); err != nil {
			return err
		}
	}
	if c.Security.RateLimitRPS < 0 || c.Security.RateLimitBurst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	if c.Cache.TTL < 0 || c.Cache.SettingsTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	return nil
}

func (c *Config) requireSupabase() error {
	u, err := url.Parse(c.Supabase.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SUPABASE_URL %q is not a valid url", c.Supabase.URL)
	}
	if c.Supabase.APIKey() == "" {
		return errors.New("SUPABASE_ANON_KEY or SUPABASE_SERVICE_ROLE_KEY is required")
	}
	return nil
}

// SupabaseEnabled reports whether Supabase services (auth, storage,
// realtime) are configured.
func (c *Config) SupabaseEnabled() bool {
	return c.Supabase.URL != "" && c.Supabase.APIKey() != ""
}

// IsAdmin reports whether userID is in the admin allowlist.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.Security.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
