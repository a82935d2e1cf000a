package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Decoder turns a stored JSON payload back into the typed value the caller
// originally cached under a given key prefix.
type Decoder func(data []byte) (interface{}, error)

// JSONDecoder builds a Decoder for a concrete type.
func JSONDecoder[T any]() Decoder {
	return func(data []byte) (interface{}, error) {
		v := new(T)
		if err := json.Unmarshal(data, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// RedisCache is a Store backed by Redis, for deployments where several
// scanner processes share one cache. Values are stored as JSON; key-prefix
// decoders restore the concrete types on read. Redis errors degrade to cache
// misses so an unavailable Redis never fails a fetch pipeline.
type RedisCache struct {
	client    redis.UniversalClient
	keyspace  string
	decoders  map[string]Decoder
	mu        sync.Mutex
	stats     Stats
}

// NewRedisCache wraps client with the given keyspace prefix.
func NewRedisCache(client redis.UniversalClient, keyspace string) *RedisCache {
	return &RedisCache{
		client:   client,
		keyspace: keyspace,
		decoders: make(map[string]Decoder),
	}
}

// RegisterDecoder associates a key prefix ("metadata_", "price_") with the
// decoder used to restore values stored under that prefix.
func (c *RedisCache) RegisterDecoder(prefix string, dec Decoder) {
	c.decoders[prefix] = dec
}

// Get fetches and decodes the value for key. Any Redis or decode failure is a
// miss.
func (c *RedisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	data, err := c.client.Get(ctx, c.keyspace+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis get failed, treating as miss")
		}
		c.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}

	value, err := c.decode(key, data)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cached payload failed to decode")
		c.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}
	c.count(func(s *Stats) { s.Hits++ })
	return value, true
}

// Set stores value as JSON with the given TTL. Zero TTL is a no-op.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache value failed to marshal")
		return
	}
	if err := c.client.Set(ctx, c.keyspace+key, data, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Redis set failed")
		return
	}
	c.count(func(s *Stats) { s.Sets++ })
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.keyspace+key).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Redis del failed")
	}
}

// Stats returns a snapshot of the cache counters.
func (c *RedisCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisCache) decode(key string, data []byte) (interface{}, error) {
	for prefix, dec := range c.decoders {
		if strings.HasPrefix(key, prefix) {
			return dec(data)
		}
	}
	// No registered decoder: hand back the raw JSON.
	return json.RawMessage(data), nil
}

func (c *RedisCache) count(fn func(*Stats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.stats)
}
