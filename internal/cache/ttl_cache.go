package cache

import (
	"context"
	"sync"
	"time"
)

// TTLCache is an in-memory Store with per-entry expiry. Expiry is lazy: an
// expired entry is deleted the next time it is read, so there is no janitor
// goroutine to manage. CleanExpired exists for callers that want an explicit
// sweep.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// NewTTLCache creates an empty TTL cache.
func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]*entry)}
}

// Get returns the value for key. Expired entries are deleted on read and
// reported as a miss.
func (c *TTLCache) Get(_ context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key until now+ttl. A zero or negative TTL is a no-op.
func (c *TTLCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.stats.Sets++
}

// Delete removes a key.
func (c *TTLCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// CleanExpired removes every expired entry and returns how many were dropped.
func (c *TTLCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			cleaned++
		}
	}
	return cleaned
}

// Clear drops all entries.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}
