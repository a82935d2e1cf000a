package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gemscan/gemscan/internal/batch"
	"github.com/gemscan/gemscan/internal/cache"
	"github.com/gemscan/gemscan/internal/config"
	"github.com/gemscan/gemscan/internal/providers"
	"github.com/gemscan/gemscan/internal/providers/birdeye"
	"github.com/gemscan/gemscan/internal/providers/dexscreener"
	"github.com/gemscan/gemscan/internal/providers/pumpfun"
	"github.com/gemscan/gemscan/internal/scheduler"
	"github.com/gemscan/gemscan/internal/strategy"
)

// app holds the wired scanner components shared by the subcommands.
type app struct {
	cfg       config.Config
	provider  providers.Provider
	store     cache.Store
	manager   *batch.Manager
	scheduler *scheduler.Scheduler
	stream    *pumpfun.Stream
	registry  *prometheus.Registry

	db *sqlx.DB
}

// buildApp wires the stack from config: provider, cache backend, batch
// manager, discovery strategies, and the scheduler with its history store.
func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel == "" && cfg.LogLevel != "" {
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}

	a.provider = buildProvider(cfg)
	a.store = buildStore(cfg)

	metrics := batch.NewMetrics(a.registry)
	a.manager = batch.NewManager(a.provider, a.store, cfg.Batch, metrics)

	history, err := a.buildHistory()
	if err != nil {
		return nil, err
	}

	a.stream = pumpfun.NewStream(cfg.PumpFun)

	a.scheduler = scheduler.New(cfg.Scheduler, a.manager, history)
	a.scheduler.Register(strategy.NewVolumeMomentum(a.provider))
	a.scheduler.Register(strategy.NewRecentListings(a.provider))
	a.scheduler.Register(strategy.NewLiquidityGrowth(a.provider))
	a.scheduler.Register(strategy.NewLiveListings(a.stream))

	log.Info().
		Str("provider", a.provider.Name()).
		Bool("redis", cfg.Redis.Enabled).
		Bool("postgres", cfg.Postgres.Enabled).
		Msg("Scanner components wired")
	return a, nil
}

// buildProvider picks Birdeye when an API key is present, otherwise falls
// back to the keyless DexScreener connector.
func buildProvider(cfg config.Config) providers.Provider {
	if cfg.Birdeye.APIKey != "" {
		return birdeye.New(cfg.Birdeye)
	}
	log.Warn().Msg("No Birdeye API key configured, using DexScreener fallback")
	return dexscreener.New(cfg.DexScreener)
}

// buildStore picks the Redis cache when configured, otherwise the in-process
// TTL cache.
func buildStore(cfg config.Config) cache.Store {
	if !cfg.Redis.Enabled {
		return cache.NewTTLCache()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := cache.NewRedisCache(client, cfg.Redis.Keyspace)
	store.RegisterDecoder("metadata_", cache.JSONDecoder[providers.TokenMetadata]())
	store.RegisterDecoder("price_", cache.JSONDecoder[providers.TokenPrice]())
	store.RegisterDecoder("overview_", cache.JSONDecoder[providers.TokenOverview]())
	store.RegisterDecoder("security_", cache.JSONDecoder[providers.TokenSecurity]())
	return store
}

func (a *app) buildHistory() (scheduler.HistoryStore, error) {
	if !a.cfg.Postgres.Enabled {
		return scheduler.NewFileHistory(a.cfg.HistoryPath)
	}

	db, err := sqlx.Connect("postgres", a.cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	a.db = db

	history := scheduler.NewPostgresHistory(db, a.cfg.Postgres.Timeout)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := history.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return history, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// newScanID tags every fetch in one run so log lines correlate.
func newScanID() string {
	return uuid.New().String()[:8]
}
