package strategy

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gemscan/gemscan/internal/providers/pumpfun"
	"github.com/gemscan/gemscan/internal/scheduler"
)

// EventSource is the slice of the pump.fun stream this strategy reads.
type EventSource interface {
	Events() <-chan pumpfun.TokenEvent
}

// LiveListings turns the pump.fun creation stream into scheduled candidates:
// each Discover drains whatever events buffered since the last run and keeps
// the creations that cleared the market-cap floor.
type LiveListings struct {
	baseStrategy
	source EventSource
	// MinMarketCapSol filters out tokens that never left the launch floor.
	MinMarketCapSol float64
	// MaxDrain bounds how many buffered events one run consumes.
	MaxDrain int
}

// NewLiveListings builds the strategy over a running stream.
func NewLiveListings(source EventSource) *LiveListings {
	return &LiveListings{
		baseStrategy: baseStrategy{
			name:    "live_listings",
			tracker: newAppearanceTracker(),
		},
		source:          source,
		MinMarketCapSol: 20,
		MaxDrain:        1000,
	}
}

func (l *LiveListings) Discover(ctx context.Context, scanID string) ([]scheduler.Candidate, error) {
	now := time.Now()
	seen := make(map[string]pumpfun.TokenEvent)

drain:
	for i := 0; i < l.MaxDrain; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-l.source.Events():
			if !ok {
				break drain
			}
			if event.TxType != "create" || event.MarketCapSol < l.MinMarketCapSol {
				continue
			}
			seen[event.Mint] = event
		default:
			break drain
		}
	}

	addresses := make([]string, 0, len(seen))
	for mint := range seen {
		addresses = append(addresses, mint)
	}
	tracked := l.tracker.observe(addresses, now)

	out := make([]scheduler.Candidate, 0, len(seen))
	for mint, event := range seen {
		entry := tracked[mint]
		out = append(out, scheduler.Candidate{
			Address: mint,
			Symbol:  event.Symbol,
			Source:  l.name,
			Score:   event.MarketCapSol,
			StrategyData: scheduler.StrategyData{
				ConsecutiveAppearances: entry.consecutive,
				FirstSeen:              entry.firstSeen,
				LastSeen:               entry.lastSeen,
			},
		})
	}

	log.Debug().Str("strategy", l.name).Str("scan_id", scanID).
		Int("kept", len(out)).Msg("Discovery pass finished")
	return out, nil
}
