package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemscan/gemscan/internal/providers"
)

func TestRedisCache_SetGetTyped(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, "gemscan:")
	c.RegisterDecoder("price_", JSONDecoder[providers.TokenPrice]())

	price := &providers.TokenPrice{Address: "X", PriceUSD: 1.5}
	payload, err := json.Marshal(price)
	require.NoError(t, err)

	mock.ExpectSet("gemscan:price_X", payload, 30*time.Second).SetVal("OK")
	mock.ExpectGet("gemscan:price_X").SetVal(string(payload))

	ctx := context.Background()
	c.Set(ctx, "price_X", price, 30*time.Second)

	value, ok := c.Get(ctx, "price_X")
	require.True(t, ok)
	got, isPrice := value.(*providers.TokenPrice)
	require.True(t, isPrice)
	assert.Equal(t, "X", got.Address)
	assert.Equal(t, 1.5, got.PriceUSD)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_MissOnAbsentKey(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, "gemscan:")

	mock.ExpectGet("gemscan:price_missing").RedisNil()

	_, ok := c.Get(context.Background(), "price_missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestRedisCache_DecodeFailureIsMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, "gemscan:")
	c.RegisterDecoder("price_", JSONDecoder[providers.TokenPrice]())

	mock.ExpectGet("gemscan:price_bad").SetVal("{not json")

	_, ok := c.Get(context.Background(), "price_bad")
	assert.False(t, ok)
}

func TestRedisCache_ZeroTTLNotStored(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, "gemscan:")

	// No expectations registered: a Set call would fail the mock.
	c.Set(context.Background(), "k", "v", 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_RawJSONWithoutDecoder(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, "gemscan:")

	mock.ExpectGet("gemscan:other_key").SetVal(`{"a":1}`)

	value, ok := c.Get(context.Background(), "other_key")
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`{"a":1}`), value)
}
