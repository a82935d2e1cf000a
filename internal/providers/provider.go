package providers

import (
	"context"
	"time"
)

// Provider is the contract every upstream connector satisfies. A nil result
// with a nil error is a soft miss ("no data, not an error"); a non-nil error
// is a real failure that the orchestration layer contains per item.
type Provider interface {
	// Name identifies the provider in logs and stats ("birdeye", "dexscreener").
	Name() string

	// TokenPrice fetches the current price for a single token address.
	TokenPrice(ctx context.Context, address string) (*TokenPrice, error)

	// MultiTokenPrice fetches prices for up to MaxBatchSize addresses in one
	// call. Results are keyed by the same address strings passed in.
	MultiTokenPrice(ctx context.Context, addresses []string) (map[string]*TokenPrice, error)

	// TokenMetadata fetches metadata for a single token address.
	TokenMetadata(ctx context.Context, address string) (*TokenMetadata, error)

	// BatchTokenMetadata fetches metadata for multiple addresses in one call.
	BatchTokenMetadata(ctx context.Context, addresses []string) (map[string]*TokenMetadata, error)

	// TokenOverview fetches market overview data for a token.
	TokenOverview(ctx context.Context, address string) (*TokenOverview, error)

	// TokenSecurity fetches holder/security data for a token.
	TokenSecurity(ctx context.Context, address string) (*TokenSecurity, error)

	// TopTraders fetches the most active traders for a token.
	TopTraders(ctx context.Context, address string, opts TopTradersOptions) ([]TraderInfo, error)

	// TokenList fetches token overviews ranked by the given sort key
	// ("v24hChangePercent", "recent_listing_time", "liquidity"). Discovery
	// strategies use this as their candidate source.
	TokenList(ctx context.Context, sortBy string, limit int) ([]TokenOverview, error)

	// MaxBatchSize is the largest address list the provider's batch endpoints
	// accept per call. Zero means the provider has no batch endpoints.
	MaxBatchSize() int
}

// TokenMetadata is the normalized metadata record shared across providers.
// Connectors map their raw responses into this shape so the pipeline never
// passes untyped maps around.
type TokenMetadata struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logo_uri,omitempty"`
}

// TokenPrice is the normalized price record.
type TokenPrice struct {
	Address        string  `json:"address"`
	PriceUSD       float64 `json:"price_usd"`
	LiquidityUSD   float64 `json:"liquidity_usd,omitempty"`
	UpdateUnixTime int64   `json:"update_unix_time,omitempty"`
}

// TokenOverview carries the market snapshot used by discovery strategies.
type TokenOverview struct {
	Address        string    `json:"address"`
	Symbol         string    `json:"symbol"`
	PriceUSD       float64   `json:"price_usd"`
	LiquidityUSD   float64   `json:"liquidity_usd"`
	MarketCapUSD   float64   `json:"market_cap_usd"`
	Volume24hUSD   float64   `json:"volume_24h_usd"`
	PriceChange1h  float64   `json:"price_change_1h"`
	PriceChange24h float64   `json:"price_change_24h"`
	Trades24h      int64     `json:"trades_24h"`
	Holders        int64     `json:"holders"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// TokenSecurity carries the holder-concentration signals used for rug checks.
type TokenSecurity struct {
	Address         string  `json:"address"`
	CreatorPercent  float64 `json:"creator_percent"`
	Top10Percent    float64 `json:"top10_percent"`
	FreezeAuthority bool    `json:"freeze_authority"`
	MintAuthority   bool    `json:"mint_authority"`
	IsHoneypot      bool    `json:"is_honeypot"`
}

// TraderInfo describes one entry from a top-traders query.
type TraderInfo struct {
	Owner      string  `json:"owner"`
	VolumeUSD  float64 `json:"volume_usd"`
	TradeCount int64   `json:"trade_count"`
}

// TopTradersOptions mirror the upstream query knobs for top-traders calls.
type TopTradersOptions struct {
	TimeFrame string // "1h", "24h"
	SortBy    string // "volume", "trade"
	SortType  string // "desc", "asc"
	Limit     int
}

// DefaultTopTradersOptions returns the query defaults used by strategies.
func DefaultTopTradersOptions() TopTradersOptions {
	return TopTradersOptions{
		TimeFrame: "24h",
		SortBy:    "volume",
		SortType:  "desc",
		Limit:     10,
	}
}
