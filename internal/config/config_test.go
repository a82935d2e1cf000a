package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Batch.MaxBatchSize)
	assert.Equal(t, []int{0, 6, 12, 18}, cfg.Scheduler.RunHours)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
batch:
  max_batch_size: 25
  max_concurrent: 3
scheduler:
  enabled: true
  run_hours: [3, 15]
http:
  addr: ":9090"
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrent)
	assert.Equal(t, []int{3, 15}, cfg.Scheduler.RunHours)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("BIRDEYE_API_KEY", "env-key")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Birdeye.APIKey)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled, "setting REDIS_ADDR enables redis")
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Batch.MaxBatchSize = 0 },
			wantErr: "max_batch_size",
		},
		{
			name:    "run hour out of range",
			mutate:  func(c *Config) { c.Scheduler.RunHours = []int{24} },
			wantErr: "out of range",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Postgres.Enabled = true },
			wantErr: "dsn is empty",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" },
			wantErr: "addr is empty",
		},
		{
			name:    "no history backend",
			mutate:  func(c *Config) { c.HistoryPath = "" },
			wantErr: "history_path required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseErrorSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestPostgresTimeoutParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
postgres:
  enabled: true
  dsn: "postgres://gemscan@localhost/gemscan?sslmode=disable"
  timeout: 3s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Postgres.Timeout)
}
