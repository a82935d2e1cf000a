package strategy

import (
	"sync"
	"time"
)

// trackEntry is the per-address history a strategy keeps between runs.
type trackEntry struct {
	consecutive int
	firstSeen   time.Time
	lastSeen    time.Time
}

// appearanceTracker counts how many consecutive runs an address has shown up
// in. The count is the merge tie-break when several strategies surface the
// same token, so each strategy keeps its own tracker.
type appearanceTracker struct {
	mu      sync.Mutex
	entries map[string]*trackEntry
}

func newAppearanceTracker() *appearanceTracker {
	return &appearanceTracker{entries: make(map[string]*trackEntry)}
}

// observe records one run's addresses and returns the consecutive-appearance
// count for each. Addresses absent from the run are reset so the next
// sighting starts over at 1.
func (t *appearanceTracker) observe(addresses []string, now time.Time) map[string]trackEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	present := make(map[string]struct{}, len(addresses))
	out := make(map[string]trackEntry, len(addresses))

	for _, addr := range addresses {
		present[addr] = struct{}{}
		e, ok := t.entries[addr]
		if !ok {
			e = &trackEntry{firstSeen: now}
			t.entries[addr] = e
		}
		e.consecutive++
		e.lastSeen = now
		out[addr] = *e
	}

	for addr, e := range t.entries {
		if _, ok := present[addr]; !ok {
			e.consecutive = 0
		}
	}
	return out
}

// prune drops entries not seen within maxAge and returns how many were
// removed.
func (t *appearanceTracker) prune(maxAge time.Duration, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-maxAge)
	removed := 0
	for addr, e := range t.entries {
		if e.lastSeen.Before(cutoff) {
			delete(t.entries, addr)
			removed++
		}
	}
	return removed
}

func (t *appearanceTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
