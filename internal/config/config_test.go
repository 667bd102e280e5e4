package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNeedsSupabase(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "listings", cfg.Uploads.Bucket)
	assert.EqualValues(t, 5<<20, cfg.Uploads.MaxBytes)
	assert.Error(t, cfg.Validate())

	cfg.Supabase.URL = "https://abc.supabase.co"
	cfg.Supabase.AnonKey = "anon"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "anon", cfg.Supabase.APIKey())
	cfg.Supabase.ServiceRoleKey = "service"
	assert.Equal(t, "service", cfg.Supabase.APIKey())
}

func TestLoadEnvOverlays(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATA_BACKEND", " Memory ")
	t.Setenv("CACHE_TTL", "2h")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("REALTIME_ENABLED", "false")
	t.Setenv("ADMIN_USER_IDS", "a, b,,c")
	t.Setenv("CORS_ORIGINS", "https://elghella.dz")

	cfg := Default()
	require.NoError(t, cfg.LoadEnv())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Data.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 2.5, cfg.Security.RateLimitRPS)
	assert.False(t, cfg.Realtime.Enabled)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Security.AdminUserIDs)
	assert.Equal(t, []string{"https://elghella.dz"}, cfg.Security.CORSOrigins)
	assert.True(t, cfg.IsAdmin("b"))
	assert.False(t, cfg.IsAdmin("d"))
	// Untouched values keep their defaults.
	assert.Equal(t, "@hourly", cfg.Scheduler.CleanupSpec)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
data:
  backend: postgres
  database_url: postgres://localhost/elghella?sslmode=disable
security:
  admin_user_ids: [root]
scheduler:
  cache_warm_spec: ""
`), 0o600))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Data.Backend)
	assert.Equal(t, []string{"root"}, cfg.Security.AdminUserIDs)
	assert.Empty(t, cfg.Scheduler.CacheWarmSpec)
	assert.Equal(t, "@every 5m", cfg.Scheduler.SettingsRefreshSpec)
	assert.NoError(t, cfg.Validate())

	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"postgres without url", func(c *Config) { c.Data.Backend = BackendPostgres }},
		{"unknown backend", func(c *Config) { c.Data.Backend = "mongo" }},
		{"bad supabase url", func(c *Config) { c.Supabase.URL = "not a url" }},
		{"negative rate", func(c *Config) { c.Security.RateLimitRPS = -1 }},
		{"zero upload size", func(c *Config) { c.Uploads.MaxBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Data.Backend = BackendMemory
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "elghella.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  backend: memory\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "debug")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Data.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.SupabaseEnabled())
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(" , "))
	assert.Equal(t, []string{"x", "y"}, SplitList("x,y"))
}
