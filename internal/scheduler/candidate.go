package scheduler

import (
	"time"

	"github.com/gemscan/gemscan/internal/providers"
)

// Candidate is the unit exchanged between discovery strategies and the
// scheduler. Address is the merge key; everything else is enrichment.
type Candidate struct {
	Address      string                   `json:"address"`
	Symbol       string                   `json:"symbol,omitempty"`
	Source       string                   `json:"source,omitempty"`
	Score        float64                  `json:"score,omitempty"`
	Price        *providers.TokenPrice    `json:"price,omitempty"`
	Overview     *providers.TokenOverview `json:"overview,omitempty"`
	Security     *providers.TokenSecurity `json:"security,omitempty"`
	StrategyData StrategyData             `json:"strategy_data"`
}

// StrategyData is the per-strategy bookkeeping attached to a candidate.
// ConsecutiveAppearances is the merge tie-break: when two strategies surface
// the same address, the one that has tracked it longer wins.
type StrategyData struct {
	ConsecutiveAppearances int       `json:"consecutive_appearances"`
	FirstSeen              time.Time `json:"first_seen,omitempty"`
	LastSeen               time.Time `json:"last_seen,omitempty"`
}

// mergeByAddress deduplicates candidates across strategies. For duplicate
// addresses the candidate with the higher ConsecutiveAppearances wins; ties
// keep the first-seen entry. Relative order of winners follows first
// appearance.
func mergeByAddress(candidates []Candidate) []Candidate {
	merged := make([]Candidate, 0, len(candidates))
	index := make(map[string]int, len(candidates))

	for _, c := range candidates {
		if c.Address == "" {
			continue
		}
		at, seen := index[c.Address]
		if !seen {
			index[c.Address] = len(merged)
			merged = append(merged, c)
			continue
		}
		if c.StrategyData.ConsecutiveAppearances > merged[at].StrategyData.ConsecutiveAppearances {
			merged[at] = c
		}
	}
	return merged
}

// uniqueAddresses returns the distinct candidate addresses in first-seen order.
func uniqueAddresses(lists ...[]Candidate) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, c := range list {
			if c.Address == "" {
				continue
			}
			if _, dup := seen[c.Address]; dup {
				continue
			}
			seen[c.Address] = struct{}{}
			out = append(out, c.Address)
		}
	}
	return out
}
