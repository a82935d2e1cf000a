package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemscan/gemscan/internal/providers"
)

// fakeFetcher counts fetch passes and how often each address is requested.
type fakeFetcher struct {
	mu         sync.Mutex
	passes     int
	addrCounts map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{addrCounts: make(map[string]int)}
}

func (f *fakeFetcher) record(addresses []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes++
	for _, addr := range addresses {
		f.addrCounts[addr]++
	}
}

func (f *fakeFetcher) FetchPrices(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenPrice {
	f.record(addresses)
	out := make(map[string]*providers.TokenPrice, len(addresses))
	for _, addr := range addresses {
		out[addr] = &providers.TokenPrice{Address: addr, PriceUSD: 2.5}
	}
	return out
}

func (f *fakeFetcher) FetchOverviews(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenOverview {
	out := make(map[string]*providers.TokenOverview, len(addresses))
	for _, addr := range addresses {
		out[addr] = &providers.TokenOverview{Address: addr, Volume24hUSD: 1000}
	}
	return out
}

func (f *fakeFetcher) FetchSecurity(ctx context.Context, addresses []string, scanID string) map[string]*providers.TokenSecurity {
	out := make(map[string]*providers.TokenSecurity, len(addresses))
	for _, addr := range addresses {
		out[addr] = &providers.TokenSecurity{Address: addr}
	}
	return out
}

// stubStrategy returns a fixed candidate list (or error).
type stubStrategy struct {
	name       string
	candidates []Candidate
	err        error
	pruned     int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Discover(ctx context.Context, scanID string) ([]Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

func (s *stubStrategy) Prune(maxAge time.Duration) int { return s.pruned }

func candidate(addr, source string, appearances int) Candidate {
	return Candidate{
		Address:      addr,
		Source:       source,
		StrategyData: StrategyData{ConsecutiveAppearances: appearances},
	}
}

func testScheduler(t *testing.T, fetcher Fetcher) (*Scheduler, *FileHistory) {
	t.Helper()
	history, err := NewFileHistory(filepath.Join(t.TempDir(), "executions.json"))
	require.NoError(t, err)

	cfg := Config{
		Enabled:       true,
		RunHours:      []int{time.Now().UTC().Hour()},
		CheckInterval: time.Nanosecond,
		ShareData:     true,
	}
	return New(cfg, fetcher, history), history
}

func TestShouldRunGating(t *testing.T) {
	now := time.Date(2025, 3, 1, 6, 30, 0, 0, time.UTC)

	t.Run("disabled never runs", func(t *testing.T) {
		history, err := NewFileHistory(filepath.Join(t.TempDir(), "h.json"))
		require.NoError(t, err)
		s := New(Config{Enabled: false, RunHours: []int{6}, CheckInterval: time.Nanosecond}, nil, history)
		assert.False(t, s.ShouldRun(now))
	})

	t.Run("off-hour not due", func(t *testing.T) {
		history, err := NewFileHistory(filepath.Join(t.TempDir(), "h.json"))
		require.NoError(t, err)
		s := New(Config{Enabled: true, RunHours: []int{0, 12}, CheckInterval: time.Nanosecond}, nil, history)
		assert.False(t, s.ShouldRun(now))
	})

	t.Run("run-hour due until slot recorded", func(t *testing.T) {
		history, err := NewFileHistory(filepath.Join(t.TempDir(), "h.json"))
		require.NoError(t, err)
		s := New(Config{Enabled: true, RunHours: []int{6}, CheckInterval: time.Nanosecond}, nil, history)
		assert.True(t, s.ShouldRun(now))

		require.NoError(t, history.Record(SlotKey(now), ExecutionRecord{Timestamp: now.Unix()}))
		time.Sleep(time.Microsecond)
		assert.False(t, s.ShouldRun(now.Add(time.Minute)))
	})

	t.Run("check interval debounces", func(t *testing.T) {
		history, err := NewFileHistory(filepath.Join(t.TempDir(), "h.json"))
		require.NoError(t, err)
		s := New(Config{Enabled: true, RunHours: []int{6}, CheckInterval: time.Hour}, nil, history)
		assert.True(t, s.ShouldRun(now))
		assert.False(t, s.ShouldRun(now.Add(time.Minute)))
	})
}

func TestRunDueExecutesAtMostOncePerSlot(t *testing.T) {
	fetcher := newFakeFetcher()
	s, history := testScheduler(t, fetcher)
	s.Register(&stubStrategy{name: "volume", candidates: []Candidate{candidate("mintA", "volume", 1)}})

	first := s.RunDueShared(context.Background(), "scan-1")
	require.Len(t, first, 1)

	done, err := history.Has(SlotKey(time.Now()))
	require.NoError(t, err)
	assert.True(t, done)

	time.Sleep(time.Microsecond)
	second := s.RunDueShared(context.Background(), "scan-2")
	assert.Nil(t, second, "same hour slot must not run twice")
	assert.Equal(t, 1, fetcher.passes)
}

func TestRunDueMergesAcrossStrategies(t *testing.T) {
	fetcher := newFakeFetcher()
	s, _ := testScheduler(t, fetcher)

	// mintB is surfaced by both strategies; the tracker with more
	// consecutive appearances must win the merge.
	s.Register(&stubStrategy{name: "volume", candidates: []Candidate{
		candidate("mintA", "volume", 1),
		candidate("mintB", "volume", 2),
	}})
	s.Register(&stubStrategy{name: "listings", candidates: []Candidate{
		candidate("mintB", "listings", 5),
		candidate("mintC", "listings", 1),
	}})

	merged := s.RunDueShared(context.Background(), "scan-1")
	require.Len(t, merged, 3)

	bySource := make(map[string]string)
	for _, c := range merged {
		bySource[c.Address] = c.Source
	}
	assert.Equal(t, "listings", bySource["mintB"], "higher consecutive appearances wins")

	for _, c := range merged {
		assert.NotNil(t, c.Price, "candidate %s missing price", c.Address)
		assert.NotNil(t, c.Overview, "candidate %s missing overview", c.Address)
		assert.NotNil(t, c.Security, "candidate %s missing security", c.Address)
	}
}

func TestRunDueSharedFetchesUnionOnce(t *testing.T) {
	fetcher := newFakeFetcher()
	s, _ := testScheduler(t, fetcher)

	s.Register(&stubStrategy{name: "volume", candidates: []Candidate{
		candidate("mintA", "volume", 1),
		candidate("mintB", "volume", 1),
	}})
	s.Register(&stubStrategy{name: "liquidity", candidates: []Candidate{
		candidate("mintB", "liquidity", 1),
		candidate("mintC", "liquidity", 1),
	}})

	merged := s.RunDueShared(context.Background(), "scan-1")
	require.Len(t, merged, 3)

	assert.Equal(t, 1, fetcher.passes, "shared mode must fetch once for all strategies")
	assert.Equal(t, 1, fetcher.addrCounts["mintB"], "overlapping address fetched once")
}

func TestRunDueContainsStrategyFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	s, history := testScheduler(t, fetcher)

	s.Register(&stubStrategy{name: "broken", err: errors.New("upstream timeout")})
	s.Register(&stubStrategy{name: "volume", candidates: []Candidate{candidate("mintA", "volume", 1)}})

	merged := s.RunDueShared(context.Background(), "scan-1")
	require.Len(t, merged, 1)
	assert.Equal(t, "mintA", merged[0].Address)

	// The slot records both strategies as attempted.
	done, err := history.Has(SlotKey(time.Now()))
	require.NoError(t, err)
	assert.True(t, done)
}

func TestRunDueNotDueReturnsNil(t *testing.T) {
	history, err := NewFileHistory(filepath.Join(t.TempDir(), "h.json"))
	require.NoError(t, err)

	offHour := (time.Now().UTC().Hour() + 12) % 24
	s := New(Config{Enabled: true, RunHours: []int{offHour}, CheckInterval: time.Nanosecond}, newFakeFetcher(), history)
	s.Register(&stubStrategy{name: "volume", candidates: []Candidate{candidate("mintA", "volume", 1)}})

	assert.Nil(t, s.RunDue(context.Background(), "scan-1"))
}

func TestCleanExpiredPrunesHistoryAndStrategies(t *testing.T) {
	fetcher := newFakeFetcher()
	s, history := testScheduler(t, fetcher)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, history.Record(SlotKey(old), ExecutionRecord{Timestamp: old.Unix()}))
	fresh := time.Now()
	require.NoError(t, history.Record(SlotKey(fresh), ExecutionRecord{Timestamp: fresh.Unix()}))

	s.Register(&stubStrategy{name: "volume", pruned: 3})

	require.NoError(t, s.CleanExpired(24*time.Hour))

	gone, err := history.Has(SlotKey(old))
	require.NoError(t, err)
	assert.False(t, gone, "stale record should be pruned")

	kept, err := history.Has(SlotKey(fresh))
	require.NoError(t, err)
	assert.True(t, kept, "fresh record should survive")
}

func TestMergeByAddress(t *testing.T) {
	merged := mergeByAddress([]Candidate{
		candidate("mintA", "volume", 2),
		candidate("mintB", "volume", 1),
		candidate("mintA", "listings", 5),
		candidate("mintA", "liquidity", 5),
		{Address: "", Source: "broken"},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, "mintA", merged[0].Address, "first-appearance order preserved")
	assert.Equal(t, "listings", merged[0].Source, "higher count wins, tie keeps earlier")
	assert.Equal(t, 5, merged[0].StrategyData.ConsecutiveAppearances)
	assert.Equal(t, "mintB", merged[1].Address)
}

func TestUniqueAddresses(t *testing.T) {
	addrs := uniqueAddresses(
		[]Candidate{candidate("a", "x", 1), candidate("b", "x", 1)},
		[]Candidate{candidate("b", "y", 1), candidate("c", "y", 1), {Address: ""}},
	)
	assert.Equal(t, []string{"a", "b", "c"}, addrs)
}
