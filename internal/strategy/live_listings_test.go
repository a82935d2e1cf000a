package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemscan/gemscan/internal/providers/pumpfun"
)

type stubSource struct{ ch chan pumpfun.TokenEvent }

func newStubSource(events ...pumpfun.TokenEvent) *stubSource {
	s := &stubSource{ch: make(chan pumpfun.TokenEvent, len(events)+1)}
	for _, e := range events {
		s.ch <- e
	}
	return s
}

func (s *stubSource) Events() <-chan pumpfun.TokenEvent { return s.ch }

func TestLiveListingsDrainsAndFilters(t *testing.T) {
	source := newStubSource(
		pumpfun.TokenEvent{Mint: "mintA", Symbol: "AAA", TxType: "create", MarketCapSol: 45},
		pumpfun.TokenEvent{Mint: "mintB", Symbol: "BBB", TxType: "create", MarketCapSol: 5}, // under floor
		pumpfun.TokenEvent{Mint: "mintC", Symbol: "CCC", TxType: "buy", MarketCapSol: 90},   // not a creation
		pumpfun.TokenEvent{Mint: "mintA", Symbol: "AAA", TxType: "create", MarketCapSol: 60},
	)

	s := NewLiveListings(source)
	candidates, err := s.Discover(context.Background(), "scan-1")
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "mintA", candidates[0].Address)
	assert.Equal(t, "live_listings", candidates[0].Source)
	assert.InDelta(t, 60.0, candidates[0].Score, 1e-9, "latest event wins for a repeated mint")
	assert.Equal(t, 1, candidates[0].StrategyData.ConsecutiveAppearances)
}

func TestLiveListingsEmptyBufferReturnsNothing(t *testing.T) {
	s := NewLiveListings(newStubSource())
	candidates, err := s.Discover(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestLiveListingsRespectsDrainBound(t *testing.T) {
	events := make([]pumpfun.TokenEvent, 10)
	for i := range events {
		events[i] = pumpfun.TokenEvent{Mint: "mint", TxType: "create", MarketCapSol: 50}
	}
	source := newStubSource(events...)

	s := NewLiveListings(source)
	s.MaxDrain = 4

	_, err := s.Discover(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Len(t, source.ch, 6, "only MaxDrain events consumed")
}

func TestLiveListingsClosedStream(t *testing.T) {
	source := newStubSource(pumpfun.TokenEvent{Mint: "mintA", TxType: "create", MarketCapSol: 50})
	close(source.ch)

	s := NewLiveListings(source)
	candidates, err := s.Discover(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Len(t, candidates, 1, "buffered events before close still count")
}
