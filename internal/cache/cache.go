package cache

import (
	"context"
	"time"
)

// Store is the cache contract the batch manager depends on. Both the
// in-process TTL cache and the Redis-backed cache satisfy it.
type Store interface {
	// Get returns the cached value, or (nil, false) when the key is absent or
	// expired. An expired entry behaves exactly as if it were never set.
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores value under key with the given TTL, overwriting any previous
	// entry. A zero TTL means "do not cache".
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)

	// Delete removes a key.
	Delete(ctx context.Context, key string)

	// Stats returns hit/miss counters for diagnostics.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Entries int   `json:"entries"`
}

// HitRate returns the hit ratio in the 0-1 range, matching the scale of the
// batch manager's saved-calls ratio.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
