// Package config loads the scanner configuration: a YAML file for structure,
// with a .env overlay for secrets so API keys never land in the config file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gemscan/gemscan/internal/batch"
	"github.com/gemscan/gemscan/internal/providers/birdeye"
	"github.com/gemscan/gemscan/internal/providers/dexscreener"
	"github.com/gemscan/gemscan/internal/providers/pumpfun"
	"github.com/gemscan/gemscan/internal/scheduler"
)

// Config is the top-level scanner configuration.
type Config struct {
	Birdeye     birdeye.Config     `yaml:"birdeye"`
	DexScreener dexscreener.Config `yaml:"dexscreener"`
	PumpFun     pumpfun.Config     `yaml:"pumpfun"`
	Batch       batch.Config       `yaml:"batch"`
	Scheduler   scheduler.Config   `yaml:"scheduler"`
	Redis       RedisConfig        `yaml:"redis"`
	Postgres    PostgresConfig     `yaml:"postgres"`
	HTTP        HTTPConfig         `yaml:"http"`
	// HistoryPath is the scheduler execution-history file when Postgres is
	// not configured.
	HistoryPath string `yaml:"history_path"`
	LogLevel    string `yaml:"log_level"`
}

// RedisConfig selects the shared cache backend. Disabled means the in-process
// TTL cache is used instead.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Keyspace string `yaml:"keyspace"`
}

// PostgresConfig selects the shared execution-history backend.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	// Timeout bounds each history query.
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig configures the read-only ops server.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Batch:       batch.DefaultConfig(),
		Scheduler:   scheduler.DefaultConfig(),
		HistoryPath: "data/strategy_executions/execution_history.json",
		LogLevel:    "info",
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Keyspace: "gemscan:",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Load reads the YAML file at path (missing file is fine, defaults apply),
// then overlays environment variables. A .env file next to the process is
// loaded first when present.
func Load(path string) (Config, error) {
	// Missing .env is not an error; in production the real environment wins.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays secret-bearing settings from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BIRDEYE_API_KEY"); v != "" {
		cfg.Birdeye.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Batch.MaxBatchSize <= 0 {
		return fmt.Errorf("batch max_batch_size must be positive, got %d", c.Batch.MaxBatchSize)
	}
	if c.Batch.MaxConcurrent <= 0 {
		return fmt.Errorf("batch max_concurrent must be positive, got %d", c.Batch.MaxConcurrent)
	}
	for _, h := range c.Scheduler.RunHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("scheduler run hour %d out of range 0-23", h)
		}
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres enabled but dsn is empty")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis enabled but addr is empty")
	}
	if c.HistoryPath == "" && !c.Postgres.Enabled {
		return fmt.Errorf("history_path required when postgres is disabled")
	}
	return nil
}
