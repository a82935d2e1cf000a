// Package strategy implements the discovery heuristics the scheduler runs:
// each strategy pulls a ranked token list from a provider, filters it with its
// own thresholds, and tracks consecutive appearances across runs.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gemscan/gemscan/internal/providers"
	"github.com/gemscan/gemscan/internal/scheduler"
)

// baseStrategy carries the pieces every discovery strategy shares.
type baseStrategy struct {
	name     string
	provider providers.Provider
	limit    int
	tracker  *appearanceTracker
}

// Prune drops appearance-tracking entries older than maxAge.
func (b *baseStrategy) Prune(maxAge time.Duration) int {
	return b.tracker.prune(maxAge, time.Now())
}

func (b *baseStrategy) Name() string { return b.name }

// emit converts the filtered overviews into candidates with appearance
// tracking applied.
func (b *baseStrategy) emit(tokens []providers.TokenOverview, score func(providers.TokenOverview) float64) []scheduler.Candidate {
	now := time.Now()
	addresses := make([]string, len(tokens))
	for i, tok := range tokens {
		addresses[i] = tok.Address
	}
	tracked := b.tracker.observe(addresses, now)

	out := make([]scheduler.Candidate, 0, len(tokens))
	for _, tok := range tokens {
		entry := tracked[tok.Address]
		out = append(out, scheduler.Candidate{
			Address: tok.Address,
			Symbol:  tok.Symbol,
			Source:  b.name,
			Score:   score(tok),
			StrategyData: scheduler.StrategyData{
				ConsecutiveAppearances: entry.consecutive,
				FirstSeen:              entry.firstSeen,
				LastSeen:               entry.lastSeen,
			},
		})
	}
	return out
}

// VolumeMomentum surfaces tokens whose 24h volume is outsized relative to
// their liquidity, a classic early-pump signature.
type VolumeMomentum struct {
	baseStrategy
	MinVolumeUSD    float64
	MinLiquidityUSD float64
	MinVolLiqRatio  float64
}

// NewVolumeMomentum builds the strategy with its default thresholds.
func NewVolumeMomentum(provider providers.Provider) *VolumeMomentum {
	return &VolumeMomentum{
		baseStrategy: baseStrategy{
			name:     "volume_momentum",
			provider: provider,
			limit:    50,
			tracker:  newAppearanceTracker(),
		},
		MinVolumeUSD:    50_000,
		MinLiquidityUSD: 10_000,
		MinVolLiqRatio:  2.0,
	}
}

func (v *VolumeMomentum) Discover(ctx context.Context, scanID string) ([]scheduler.Candidate, error) {
	tokens, err := v.provider.TokenList(ctx, "v24hChangePercent", v.limit)
	if err != nil {
		return nil, fmt.Errorf("volume momentum discovery failed: %w", err)
	}

	var kept []providers.TokenOverview
	for _, tok := range tokens {
		if tok.Volume24hUSD < v.MinVolumeUSD || tok.LiquidityUSD < v.MinLiquidityUSD {
			continue
		}
		if tok.Volume24hUSD/tok.LiquidityUSD < v.MinVolLiqRatio {
			continue
		}
		kept = append(kept, tok)
	}

	log.Debug().Str("strategy", v.name).Str("scan_id", scanID).
		Int("scanned", len(tokens)).Int("kept", len(kept)).
		Msg("Discovery pass finished")

	return v.emit(kept, func(tok providers.TokenOverview) float64 {
		return tok.Volume24hUSD / tok.LiquidityUSD
	}), nil
}

// RecentListings surfaces freshly listed tokens that already show real
// trading activity.
type RecentListings struct {
	baseStrategy
	MaxAge          time.Duration
	MinLiquidityUSD float64
	MinTrades24h    int64
}

// NewRecentListings builds the strategy with its default thresholds.
func NewRecentListings(provider providers.Provider) *RecentListings {
	return &RecentListings{
		baseStrategy: baseStrategy{
			name:     "recent_listings",
			provider: provider,
			limit:    50,
			tracker:  newAppearanceTracker(),
		},
		MaxAge:          48 * time.Hour,
		MinLiquidityUSD: 5_000,
		MinTrades24h:    100,
	}
}

func (r *RecentListings) Discover(ctx context.Context, scanID string) ([]scheduler.Candidate, error) {
	tokens, err := r.provider.TokenList(ctx, "recent_listing_time", r.limit)
	if err != nil {
		return nil, fmt.Errorf("recent listings discovery failed: %w", err)
	}

	cutoff := time.Now().Add(-r.MaxAge)
	var kept []providers.TokenOverview
	for _, tok := range tokens {
		if tok.CreatedAt.IsZero() || tok.CreatedAt.Before(cutoff) {
			continue
		}
		if tok.LiquidityUSD < r.MinLiquidityUSD || tok.Trades24h < r.MinTrades24h {
			continue
		}
		kept = append(kept, tok)
	}

	log.Debug().Str("strategy", r.name).Str("scan_id", scanID).
		Int("scanned", len(tokens)).Int("kept", len(kept)).
		Msg("Discovery pass finished")

	return r.emit(kept, func(tok providers.TokenOverview) float64 {
		age := time.Since(tok.CreatedAt).Hours()
		if age < 1 {
			age = 1
		}
		return float64(tok.Trades24h) / age
	}), nil
}

// LiquidityGrowth surfaces tokens climbing the liquidity ranking while their
// price holds up, filtering out tokens that pump on thin books.
type LiquidityGrowth struct {
	baseStrategy
	MinLiquidityUSD  float64
	MaxLiquidityUSD  float64
	MinPriceChange1h float64
}

// NewLiquidityGrowth builds the strategy with its default thresholds.
func NewLiquidityGrowth(provider providers.Provider) *LiquidityGrowth {
	return &LiquidityGrowth{
		baseStrategy: baseStrategy{
			name:     "liquidity_growth",
			provider: provider,
			limit:    50,
			tracker:  newAppearanceTracker(),
		},
		MinLiquidityUSD:  25_000,
		MaxLiquidityUSD:  2_000_000,
		MinPriceChange1h: -5.0,
	}
}

func (l *LiquidityGrowth) Discover(ctx context.Context, scanID string) ([]scheduler.Candidate, error) {
	tokens, err := l.provider.TokenList(ctx, "liquidity", l.limit)
	if err != nil {
		return nil, fmt.Errorf("liquidity growth discovery failed: %w", err)
	}

	var kept []providers.TokenOverview
	for _, tok := range tokens {
		if tok.LiquidityUSD < l.MinLiquidityUSD || tok.LiquidityUSD > l.MaxLiquidityUSD {
			continue
		}
		if tok.PriceChange1h < l.MinPriceChange1h {
			continue
		}
		kept = append(kept, tok)
	}

	log.Debug().Str("strategy", l.name).Str("scan_id", scanID).
		Int("scanned", len(tokens)).Int("kept", len(kept)).
		Msg("Discovery pass finished")

	return l.emit(kept, func(tok providers.TokenOverview) float64 {
		if tok.MarketCapUSD <= 0 {
			return 0
		}
		return tok.LiquidityUSD / tok.MarketCapUSD
	}), nil
}
