package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/gemscan/gemscan/internal/cache"
	"github.com/gemscan/gemscan/internal/providers"
	"github.com/gemscan/gemscan/internal/ratelimit"
	"github.com/gemscan/gemscan/internal/validation"
)

// Config holds the manager knobs. Zero values are replaced by the defaults
// below at construction.
type Config struct {
	// MaxBatchSize caps true-batch chunk sizes; the effective size is the
	// smaller of this and the provider's detected maximum.
	MaxBatchSize int `yaml:"max_batch_size"`
	// MaxConcurrent bounds the parallel-individual fan-out.
	MaxConcurrent int `yaml:"max_concurrent"`
	// RequestTimeout is applied per upstream call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// SequentialDelay is extra spacing between sequential-safe fetches, on
	// top of the rate limiter.
	SequentialDelay time.Duration `yaml:"sequential_delay"`
	// RetryIndividualOnBatchFailure retries a failed true-batch chunk with
	// individual calls instead of dropping the chunk.
	RetryIndividualOnBatchFailure bool `yaml:"retry_individual_on_batch_failure"`
	// DefaultStrategy applies while a kind's batch capability is unknown.
	DefaultStrategy Strategy `yaml:"-"`
	// ValidateInput runs the token validator before any network call.
	ValidateInput bool `yaml:"validate_input"`
	// RequestsPerMinute is the outbound request ceiling.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Kind-specific cache TTLs. Metadata is far less volatile than price, so
	// it gets a much longer TTL.
	MetadataTTL time.Duration `yaml:"metadata_ttl"`
	PriceTTL    time.Duration `yaml:"price_ttl"`
	OverviewTTL time.Duration `yaml:"overview_ttl"`
	SecurityTTL time.Duration `yaml:"security_ttl"`
}

// DefaultConfig returns the manager defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:                  50,
		MaxConcurrent:                 5,
		RequestTimeout:                15 * time.Second,
		SequentialDelay:               500 * time.Millisecond,
		RetryIndividualOnBatchFailure: true,
		DefaultStrategy:               ParallelIndividual,
		ValidateInput:                 true,
		RequestsPerMinute:             800,
		MetadataTTL:                   10 * time.Minute,
		PriceTTL:                      30 * time.Second,
		OverviewTTL:                   2 * time.Minute,
		SecurityTTL:                   10 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.SequentialDelay <= 0 {
		c.SequentialDelay = d.SequentialDelay
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = d.MetadataTTL
	}
	if c.PriceTTL <= 0 {
		c.PriceTTL = d.PriceTTL
	}
	if c.OverviewTTL <= 0 {
		c.OverviewTTL = d.OverviewTTL
	}
	if c.SecurityTTL <= 0 {
		c.SecurityTTL = d.SecurityTTL
	}
}

// Manager orchestrates batched token-data fetches: validate, consult cache,
// pick a strategy, execute with bounded concurrency and scoped fallbacks,
// cache and merge. No error escapes the Fetch methods in normal operation;
// a missing key in the returned map means "could not be fetched this round".
type Manager struct {
	provider  providers.Provider
	store     cache.Store
	validator *validation.Validator
	selector  *Selector
	throttle  *ratelimit.Throttle
	breaker   *gobreaker.CircuitBreaker
	cfg       Config
	stats     Stats
	metrics   *Metrics
}

// NewManager wires a Manager around the given provider and cache store.
// metrics may be nil to disable instrumentation.
func NewManager(provider providers.Provider, store cache.Store, cfg Config, metrics *Metrics) *Manager {
	cfg.applyDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Provider circuit breaker state changed")
		},
	})

	throttle := ratelimit.NewThrottle(cfg.RequestsPerMinute)

	return &Manager{
		provider:  provider,
		store:     store,
		validator: validation.New(),
		selector:  NewSelector(provider, cfg.DefaultStrategy, throttle),
		throttle:  throttle,
		breaker:   breaker,
		cfg:       cfg,
		stats:     Stats{},
		metrics:   metrics,
	}
}

// Validator exposes the manager's validator for exclusion-set adjustments.
func (m *Manager) Validator() *validation.Validator {
	return m.validator
}

// Selector exposes the strategy selector, mainly for explicit re-probes.
func (m *Manager) Selector() *Selector {
	return m.selector
}

// ThrottleSnapshot returns the rate limiter diagnostics.
func (m *Manager) ThrottleSnapshot() ratelimit.Snapshot {
	return m.throttle.Snapshot()
}

// PerformanceStats returns accumulated manager counters.
func (m *Manager) PerformanceStats() PerformanceStats {
	return m.stats.Snapshot()
}

// ResetStats zeroes the counters.
func (m *Manager) ResetStats() {
	m.stats.Reset()
}

// FetchMetadata fetches metadata for the given addresses, keyed by address.
func (m *Manager) FetchMetadata(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenMetadata {
	return fetchKind(ctx, m, KindMetadata, addresses, scanID, m.cfg.MetadataTTL,
		m.provider.TokenMetadata, m.provider.BatchTokenMetadata)
}

// FetchPrices fetches current prices for the given addresses.
func (m *Manager) FetchPrices(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenPrice {
	return fetchKind(ctx, m, KindPrice, addresses, scanID, m.cfg.PriceTTL,
		m.provider.TokenPrice, m.provider.MultiTokenPrice)
}

// FetchOverviews fetches market overviews. There is no batch endpoint for
// overviews so this always fans out individually.
func (m *Manager) FetchOverviews(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenOverview {
	return fetchKind(ctx, m, KindOverview, addresses, scanID, m.cfg.OverviewTTL,
		m.provider.TokenOverview, nil)
}

// FetchSecurity fetches holder/security data, individually per address.
func (m *Manager) FetchSecurity(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenSecurity {
	return fetchKind(ctx, m, KindSecurity, addresses, scanID, m.cfg.SecurityTTL,
		m.provider.TokenSecurity, nil)
}

func cacheKey(kind DataKind, address string) string {
	return fmt.Sprintf("%s_%s", kind, address)
}

type singleFunc[T any] func(ctx context.Context, address string) (*T, error)
type batchFunc[T any] func(ctx context.Context, addresses []string) (map[string]*T, error)

// fetchKind is the shared pipeline behind every Fetch method.
func fetchKind[T any](ctx context.Context, m *Manager, kind DataKind, addresses []string, scanID string,
	ttl time.Duration, single singleFunc[T], batchFn batchFunc[T]) map[string]*T {

	start := time.Now()
	results := make(map[string]*T)
	if len(addresses) == 0 {
		return results
	}

	outcome := requestOutcome{processed: len(addresses), succeeded: true}
	defer func() {
		outcome.elapsed = time.Since(start)
		m.stats.record(outcome)
	}()

	logger := log.With().Str("kind", string(kind)).Str("scan_id", scanID).Logger()

	valid := addresses
	if m.cfg.ValidateInput {
		var report *validation.Report
		valid, report = m.validator.ValidateBatch(addresses, validation.DefaultOptions())
		outcome.validated = len(valid)
		outcome.filtered = report.FilteredCount
		outcome.callsSaved += report.FilteredCount
		if len(valid) == 0 {
			logger.Warn().Int("input", len(addresses)).Msg("No valid addresses after validation")
			m.metrics.observeSaved(outcome.callsSaved)
			return results
		}
	} else {
		outcome.validated = len(addresses)
	}

	// Partition into cache hits and addresses still to fetch.
	toFetch := make([]string, 0, len(valid))
	cacheHits := 0
	for _, addr := range valid {
		if value, ok := m.store.Get(ctx, cacheKey(kind, addr)); ok {
			if typed, isTyped := value.(*T); isTyped {
				results[addr] = typed
				cacheHits++
				continue
			}
		}
		toFetch = append(toFetch, addr)
	}
	outcome.callsSaved += cacheHits
	m.metrics.observeCacheHits(kind, cacheHits)

	if len(toFetch) > 0 {
		strategy := m.strategyFor(ctx, kind, batchFn != nil)
		m.metrics.observeRequest(kind, strategy)
		logger.Debug().Int("to_fetch", len(toFetch)).Int("cached", cacheHits).
			Str("strategy", strategy.String()).Msg("Dispatching batch fetch")

		var fetched map[string]*T
		switch strategy {
		case TrueBatch:
			fetched = fetchTrueBatch(ctx, m, kind, toFetch, single, batchFn)
		case SequentialSafe:
			fetched = fetchSequential(ctx, m, kind, toFetch, single)
		default:
			fetched = fetchParallel(ctx, m, kind, toFetch, single)
		}

		for addr, value := range fetched {
			if value == nil {
				continue
			}
			results[addr] = value
			m.store.Set(ctx, cacheKey(kind, addr), value, ttl)
		}
		outcome.callsMade = len(toFetch)
		m.metrics.observeAPICalls(kind, len(toFetch))

		if len(fetched) == 0 {
			// Every uncached address failed or missed; count the request as
			// failed for the stats even though the caller just sees a smaller
			// result map.
			outcome.succeeded = false
		} else if len(fetched) < len(toFetch) {
			logger.Debug().Int("requested", len(toFetch)).Int("fetched", len(fetched)).
				Msg("Some addresses returned no data")
		}
	}
	m.metrics.observeSaved(outcome.callsSaved)

	return results
}

// strategyFor resolves the strategy for a kind. Kinds without a batch
// endpoint never consult the selector.
func (m *Manager) strategyFor(ctx context.Context, kind DataKind, hasBatch bool) Strategy {
	if !hasBatch {
		return ParallelIndividual
	}
	return m.selector.Determine(ctx, kind)
}

// chunkSize is the effective true-batch chunk size.
func (m *Manager) chunkSize() int {
	size := m.cfg.MaxBatchSize
	if detected := m.provider.MaxBatchSize(); detected > 0 && detected < size {
		size = detected
	}
	if size < 1 {
		size = 1
	}
	return size
}

// fetchTrueBatch processes chunks strictly in input order. A failing chunk
// falls back to individual fetches when configured, so one bad chunk never
// aborts the whole request.
func fetchTrueBatch[T any](ctx context.Context, m *Manager, kind DataKind, addresses []string,
	single singleFunc[T], batchFn batchFunc[T]) map[string]*T {

	out := make(map[string]*T, len(addresses))
	size := m.chunkSize()

	for begin := 0; begin < len(addresses); begin += size {
		end := begin + size
		if end > len(addresses) {
			end = len(addresses)
		}
		chunk := addresses[begin:end]

		if err := m.throttle.Wait(ctx); err != nil {
			log.Debug().Err(err).Str("kind", string(kind)).Msg("Throttle wait cancelled")
			return out
		}

		fetched, err := execBatch(ctx, m, batchFn, chunk)
		if err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Int("chunk_size", len(chunk)).
				Msg("Batch chunk failed")
			if m.cfg.RetryIndividualOnBatchFailure {
				for addr, value := range fetchParallel(ctx, m, kind, chunk, single) {
					out[addr] = value
				}
			}
			continue
		}
		for addr, value := range fetched {
			if value != nil {
				out[addr] = value
			}
		}
	}
	return out
}

// fetchParallel fans out individual fetches under a counting semaphore.
// Failures are contained per address.
func fetchParallel[T any](ctx context.Context, m *Manager, kind DataKind, addresses []string,
	single singleFunc[T]) map[string]*T {

	out := make(map[string]*T, len(addresses))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, m.cfg.MaxConcurrent)

	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if err := m.throttle.Wait(ctx); err != nil {
				return
			}
			value, err := execSingle(ctx, m, single, addr)
			if err != nil {
				m.metrics.observeItemFailure(kind)
				log.Debug().Err(err).Str("kind", string(kind)).Str("address", addr).
					Msg("Individual fetch failed")
				return
			}
			if value == nil {
				return // soft miss
			}
			mu.Lock()
			out[addr] = value
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	return out
}

// fetchSequential is the conservative path: one address at a time with an
// explicit delay on top of the rate limiter.
func fetchSequential[T any](ctx context.Context, m *Manager, kind DataKind, addresses []string,
	single singleFunc[T]) map[string]*T {

	out := make(map[string]*T, len(addresses))
	for i, addr := range addresses {
		if err := m.throttle.Wait(ctx); err != nil {
			return out
		}
		value, err := execSingle(ctx, m, single, addr)
		if err != nil {
			m.metrics.observeItemFailure(kind)
			log.Debug().Err(err).Str("kind", string(kind)).Str("address", addr).
				Msg("Sequential fetch failed")
		} else if value != nil {
			out[addr] = value
		}

		if i < len(addresses)-1 {
			timer := time.NewTimer(m.cfg.SequentialDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return out
			}
		}
	}
	return out
}

// execSingle runs one single-address call through the circuit breaker with
// the per-request timeout.
func execSingle[T any](ctx context.Context, m *Manager, single singleFunc[T], addr string) (*T, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	result, err := m.breaker.Execute(func() (interface{}, error) {
		return single(callCtx, addr)
	})
	if err != nil {
		return nil, err
	}
	value, _ := result.(*T)
	return value, nil
}

// execBatch runs one chunk call through the circuit breaker.
func execBatch[T any](ctx context.Context, m *Manager, batchFn batchFunc[T], chunk []string) (map[string]*T, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancel()

	result, err := m.breaker.Execute(func() (interface{}, error) {
		return batchFn(callCtx, chunk)
	})
	if err != nil {
		return nil, err
	}
	fetched, _ := result.(map[string]*T)
	return fetched, nil
}
