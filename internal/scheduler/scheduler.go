package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gemscan/gemscan/internal/providers"
)

// Fetcher is the slice of the batch manager the scheduler needs for
// candidate enrichment.
type Fetcher interface {
	FetchPrices(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenPrice
	FetchOverviews(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenOverview
	FetchSecurity(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenSecurity
}

// DiscoveryStrategy is one token-discovery heuristic. Discover returns raw
// candidates; the scheduler attaches price, overview, and security data
// afterwards.
type DiscoveryStrategy interface {
	Name() string
	Discover(ctx context.Context, scanID string) ([]Candidate, error)
}

// Pruner is implemented by strategies that keep historical token-tracking
// state worth cleaning up.
type Pruner interface {
	Prune(maxAge time.Duration) int
}

// Config controls when the scheduler fires.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// RunHours are the UTC hours of day in which one run may happen.
	RunHours []int `yaml:"run_hours"`
	// CheckInterval debounces ShouldRun so the due-check stays cheap inside
	// a tight polling loop.
	CheckInterval time.Duration `yaml:"check_interval"`
	// ShareData routes enrichment through one shared fetch pass over the
	// union of all discovered addresses instead of one pass per strategy.
	ShareData bool `yaml:"share_data"`
}

// DefaultConfig runs every six hours with data sharing on.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		RunHours:      []int{0, 6, 12, 18},
		CheckInterval: 5 * time.Minute,
		ShareData:     true,
	}
}

// Scheduler runs registered discovery strategies on an hour-slot schedule,
// merges their candidates by address, and records each slot so it executes
// at most once.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	history HistoryStore

	mu         sync.Mutex
	strategies []DiscoveryStrategy
	lastCheck  time.Time
	running    bool
}

// New creates a Scheduler. Strategies are added with Register.
func New(cfg Config, fetcher Fetcher, history HistoryStore) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if len(cfg.RunHours) == 0 {
		cfg.RunHours = DefaultConfig().RunHours
	}
	return &Scheduler{cfg: cfg, fetcher: fetcher, history: history}
}

// Register adds a discovery strategy.
func (s *Scheduler) Register(strategy DiscoveryStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies = append(s.strategies, strategy)
}

// Strategies returns the registered strategy names.
func (s *Scheduler) Strategies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = st.Name()
	}
	return names
}

// ShouldRun reports whether a run is due at now: scheduler enabled, the
// debounce interval passed since the previous check, now's UTC hour is in
// the run set, and the hour slot has not executed yet.
func (s *Scheduler) ShouldRun(now time.Time) bool {
	if !s.cfg.Enabled {
		return false
	}

	s.mu.Lock()
	if !s.lastCheck.IsZero() && now.Sub(s.lastCheck) < s.cfg.CheckInterval {
		s.mu.Unlock()
		return false
	}
	s.lastCheck = now
	s.mu.Unlock()

	if err := s.history.SetLastCheck(now); err != nil {
		log.Debug().Err(err).Msg("Failed to persist scheduler check time")
	}

	if !s.hourEnabled(now.UTC().Hour()) {
		return false
	}

	slot := SlotKey(now)
	done, err := s.history.Has(slot)
	if err != nil {
		log.Warn().Err(err).Str("slot", slot).Msg("Execution history lookup failed")
		return false
	}
	return !done
}

func (s *Scheduler) hourEnabled(hour int) bool {
	for _, h := range s.cfg.RunHours {
		if h == hour {
			return true
		}
	}
	return false
}

// RunDue executes all strategies if a run is due, enriching each strategy's
// candidates with its own fetch pass. Returns nil when not due.
func (s *Scheduler) RunDue(ctx context.Context, scanID string) []Candidate {
	return s.run(ctx, scanID, false)
}

// RunDueShared is RunDue with cross-strategy data sharing: discovery runs
// first for every strategy, then a single fetch pass covers the union of all
// discovered addresses before candidates are merged. This is what removes
// the redundant enrichment calls when strategies surface overlapping tokens.
func (s *Scheduler) RunDueShared(ctx context.Context, scanID string) []Candidate {
	return s.run(ctx, scanID, true)
}

// RunNow executes all strategies immediately, skipping the due-check. The
// hour slot is still recorded. Used by the manual scan command.
func (s *Scheduler) RunNow(ctx context.Context, scanID string) []Candidate {
	return s.execute(ctx, scanID, s.cfg.ShareData)
}

func (s *Scheduler) run(ctx context.Context, scanID string, shared bool) []Candidate {
	if !s.ShouldRun(time.Now()) {
		return nil
	}
	return s.execute(ctx, scanID, shared)
}

func (s *Scheduler) execute(ctx context.Context, scanID string, shared bool) []Candidate {
	now := time.Now()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	strategies := make([]DiscoveryStrategy, len(s.strategies))
	copy(strategies, s.strategies)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	slot := SlotKey(now)
	logger := log.With().Str("slot", slot).Str("scan_id", scanID).Logger()
	logger.Info().Int("strategies", len(strategies)).Bool("shared", shared).
		Msg("Scheduled strategy run starting")

	results := s.discoverAll(ctx, scanID, strategies)

	ran := make([]string, 0, len(results))
	var all []Candidate
	if shared {
		lists := make([][]Candidate, 0, len(results))
		for _, res := range results {
			lists = append(lists, res.candidates)
		}
		pool := s.fetchPool(ctx, scanID, uniqueAddresses(lists...))
		for _, res := range results {
			ran = append(ran, res.name)
			all = append(all, pool.attach(res.candidates)...)
		}
	} else {
		for _, res := range results {
			ran = append(ran, res.name)
			pool := s.fetchPool(ctx, scanID, uniqueAddresses(res.candidates))
			all = append(all, pool.attach(res.candidates)...)
		}
	}

	merged := mergeByAddress(all)

	rec := ExecutionRecord{
		Timestamp:     now.Unix(),
		StrategiesRun: ran,
		TokensFound:   len(merged),
	}
	if err := s.history.Record(slot, rec); err != nil {
		logger.Error().Err(err).Msg("Failed to record execution slot")
	}

	logger.Info().Int("candidates", len(merged)).Msg("Scheduled strategy run completed")
	return merged
}

type strategyResult struct {
	name       string
	candidates []Candidate
}

// discoverAll runs every strategy's discovery phase concurrently. A failing
// strategy contributes zero candidates and never blocks the others.
func (s *Scheduler) discoverAll(ctx context.Context, scanID string, strategies []DiscoveryStrategy) []strategyResult {
	results := make([]strategyResult, len(strategies))
	var wg sync.WaitGroup

	for i, st := range strategies {
		wg.Add(1)
		go func(i int, st DiscoveryStrategy) {
			defer wg.Done()
			results[i] = strategyResult{name: st.Name()}
			candidates, err := st.Discover(ctx, scanID)
			if err != nil {
				log.Warn().Err(err).Str("strategy", st.Name()).
					Msg("Discovery strategy failed")
				return
			}
			results[i].candidates = candidates
		}(i, st)
	}
	wg.Wait()
	return results
}

// enrichment holds the fetched data for one address.
type enrichment struct {
	price    *providers.TokenPrice
	overview *providers.TokenOverview
	security *providers.TokenSecurity
}

type enrichmentPool struct {
	data map[string]enrichment
}

// fetchPool performs one fetch pass (prices, overviews, security) for the
// given addresses.
func (s *Scheduler) fetchPool(ctx context.Context, scanID string, addresses []string) *enrichmentPool {
	pool := &enrichmentPool{data: make(map[string]enrichment, len(addresses))}
	if len(addresses) == 0 {
		return pool
	}

	prices := s.fetcher.FetchPrices(ctx, addresses, scanID)
	overviews := s.fetcher.FetchOverviews(ctx, addresses, scanID)
	security := s.fetcher.FetchSecurity(ctx, addresses, scanID)

	for _, addr := range addresses {
		pool.data[addr] = enrichment{
			price:    prices[addr],
			overview: overviews[addr],
			security: security[addr],
		}
	}
	log.Debug().Int("addresses", len(addresses)).Str("scan_id", scanID).
		Msg("Enrichment data fetched")
	return pool
}

// attach copies pool data onto each candidate.
func (p *enrichmentPool) attach(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		if data, ok := p.data[c.Address]; ok {
			c.Price = data.price
			c.Overview = data.overview
			c.Security = data.security
		}
		out[i] = c
	}
	return out
}

// CleanExpired prunes execution records older than maxAge and delegates to
// strategies that track their own per-token history.
func (s *Scheduler) CleanExpired(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	removed, err := s.history.Prune(cutoff)
	if err != nil {
		return err
	}

	s.mu.Lock()
	strategies := make([]DiscoveryStrategy, len(s.strategies))
	copy(strategies, s.strategies)
	s.mu.Unlock()

	pruned := 0
	for _, st := range strategies {
		if p, ok := st.(Pruner); ok {
			pruned += p.Prune(maxAge)
		}
	}
	log.Info().Int("records_removed", removed).Int("strategy_entries_pruned", pruned).
		Msg("Execution history cleaned")
	return nil
}

// Start loops until ctx is cancelled, checking for due runs once a minute.
// scanIDFn supplies a fresh scan ID per run.
func (s *Scheduler) Start(ctx context.Context, scanIDFn func() string) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	log.Info().Ints("run_hours", s.cfg.RunHours).Bool("share_data", s.cfg.ShareData).
		Msg("Strategy scheduler started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			scanID := scanIDFn()
			if s.cfg.ShareData {
				s.RunDueShared(ctx, scanID)
			} else {
				s.RunDue(ctx, scanID)
			}
		}
	}
}
