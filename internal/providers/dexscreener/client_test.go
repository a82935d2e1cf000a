package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairsPayload = `{"pairs":[
	{"baseToken":{"address":"mintA","symbol":"GEM","name":"Gem Token"},
	 "priceUsd":"0.015","liquidity":{"usd":40000},"volume":{"h24":90000},
	 "priceChange":{"h1":2.0,"h24":15.0},
	 "txns":{"h24":{"buys":300,"sells":220}},
	 "fdv":1500000,"pairCreatedAt":1739900000000},
	{"baseToken":{"address":"mintA","symbol":"GEM","name":"Gem Token"},
	 "priceUsd":"0.014","liquidity":{"usd":9000},"volume":{"h24":5000},
	 "priceChange":{},"txns":{},"fdv":1500000},
	{"baseToken":{"address":"mintB","symbol":"PUP","name":"Pup"},
	 "priceUsd":"1.20","liquidity":{"usd":250000},"volume":{"h24":500000},
	 "priceChange":{},"txns":{},"fdv":9000000}]}`

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, RequestTimeout: 2 * time.Second})
}

func TestMultiTokenPricePicksDeepestPair(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/mintA,mintB", r.URL.Path)
		w.Write([]byte(pairsPayload))
	})

	prices, err := c.MultiTokenPrice(context.Background(), []string{"mintA", "mintB"})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.InDelta(t, 0.015, prices["mintA"].PriceUSD, 1e-9, "deepest pair wins over the thin one")
	assert.InDelta(t, 40000.0, prices["mintA"].LiquidityUSD, 1e-6)
	assert.InDelta(t, 1.20, prices["mintB"].PriceUSD, 1e-9)
}

func TestTokenOverview(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pairsPayload))
	})

	overview, err := c.TokenOverview(context.Background(), "mintA")
	require.NoError(t, err)
	require.NotNil(t, overview)
	assert.Equal(t, "GEM", overview.Symbol)
	assert.InDelta(t, 1500000.0, overview.MarketCapUSD, 1e-6)
	assert.Equal(t, int64(520), overview.Trades24h, "buys plus sells")
	assert.Equal(t, time.UnixMilli(1739900000000), overview.CreatedAt)
}

func TestUnknownTokenIsSoftMiss(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[]}`))
	})

	overview, err := c.TokenOverview(context.Background(), "mintZ")
	require.NoError(t, err)
	assert.Nil(t, overview)

	price, err := c.TokenPrice(context.Background(), "mintZ")
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestBatchLimitEnforced(t *testing.T) {
	c := New(Config{})
	addrs := make([]string, batchLimit+1)
	for i := range addrs {
		addrs[i] = "mint"
	}

	_, err := c.MultiTokenPrice(context.Background(), addrs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds provider limit")
}

func TestSecurityAndTradersUnsupported(t *testing.T) {
	c := New(Config{})

	sec, err := c.TokenSecurity(context.Background(), "mintA")
	require.NoError(t, err)
	assert.Nil(t, sec)

	_, err = c.TokenList(context.Background(), "liquidity", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
