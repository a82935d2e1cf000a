// Package birdeye implements the Birdeye REST connector. It is the primary
// provider: the only one in the set with true batch endpoints.
package birdeye

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gemscan/gemscan/internal/providers"
)

const defaultMaxBatchSize = 50

// Config holds the connector settings.
type Config struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Chain          string        `yaml:"chain"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBatchSize   int           `yaml:"max_batch_size"`
	UserAgent      string        `yaml:"user_agent"`
}

// Client is the Birdeye provider implementation.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a Birdeye client. Missing config fields get defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://public-api.birdeye.so"
	}
	if cfg.Chain == "" {
		cfg.Chain = "solana"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "GemScan/1.0"
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *Client) Name() string      { return "birdeye" }
func (c *Client) MaxBatchSize() int { return c.cfg.MaxBatchSize }

// envelope is the common Birdeye response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type priceData struct {
	Value          float64 `json:"value"`
	Liquidity      float64 `json:"liquidity"`
	UpdateUnixTime int64   `json:"updateUnixTime"`
}

type metadataData struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	LogoURI  string `json:"logo_uri"`
}

type overviewData struct {
	Address               string  `json:"address"`
	Symbol                string  `json:"symbol"`
	Price                 float64 `json:"price"`
	Liquidity             float64 `json:"liquidity"`
	MarketCap             float64 `json:"mc"`
	Volume24hUSD          float64 `json:"v24hUSD"`
	PriceChange1hPercent  float64 `json:"priceChange1hPercent"`
	PriceChange24hPercent float64 `json:"priceChange24hPercent"`
	Trade24h              int64   `json:"trade24h"`
	Holder                int64   `json:"holder"`
	// Unix seconds; zero when Birdeye has no listing time.
	ListingTime int64 `json:"listingTime"`
}

type securityData struct {
	CreatorPercentage  float64 `json:"creatorPercentage"`
	Top10HolderPercent float64 `json:"top10HolderPercent"`
	Freezeable         bool    `json:"freezeable"`
	MintAuthority      bool    `json:"mintable"`
	IsHoneypot         bool    `json:"isHoneypot"`
}

type traderData struct {
	Owner      string  `json:"owner"`
	VolumeUSD  float64 `json:"volume"`
	TradeCount int64   `json:"trade"`
}

// TokenPrice fetches the current price for one address.
func (c *Client) TokenPrice(ctx context.Context, address string) (*providers.TokenPrice, error) {
	raw, err := c.get(ctx, "/defi/price", map[string]string{"address": address})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var data priceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode price response: %w", err)
	}
	return &providers.TokenPrice{
		Address:        address,
		PriceUSD:       data.Value,
		LiquidityUSD:   data.Liquidity,
		UpdateUnixTime: data.UpdateUnixTime,
	}, nil
}

// MultiTokenPrice fetches prices for up to MaxBatchSize addresses in one call.
func (c *Client) MultiTokenPrice(ctx context.Context, addresses []string) (map[string]*providers.TokenPrice, error) {
	if len(addresses) > c.cfg.MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds provider limit %d", len(addresses), c.cfg.MaxBatchSize)
	}

	raw, err := c.get(ctx, "/defi/multi_price", map[string]string{
		"list_address": strings.Join(addresses, ","),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*providers.TokenPrice, len(addresses))
	if raw == nil {
		return out, nil
	}

	var data map[string]*priceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode multi-price response: %w", err)
	}
	for addr, p := range data {
		if p == nil {
			continue
		}
		out[addr] = &providers.TokenPrice{
			Address:        addr,
			PriceUSD:       p.Value,
			LiquidityUSD:   p.Liquidity,
			UpdateUnixTime: p.UpdateUnixTime,
		}
	}
	return out, nil
}

// TokenMetadata fetches metadata for one address.
func (c *Client) TokenMetadata(ctx context.Context, address string) (*providers.TokenMetadata, error) {
	raw, err := c.get(ctx, "/defi/v3/token/meta-data/single", map[string]string{"address": address})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var data metadataData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode metadata response: %w", err)
	}
	return metadataToProvider(address, data), nil
}

// BatchTokenMetadata fetches metadata for multiple addresses in one call.
func (c *Client) BatchTokenMetadata(ctx context.Context, addresses []string) (map[string]*providers.TokenMetadata, error) {
	if len(addresses) > c.cfg.MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds provider limit %d", len(addresses), c.cfg.MaxBatchSize)
	}

	raw, err := c.get(ctx, "/defi/v3/token/meta-data/multiple", map[string]string{
		"list_address": strings.Join(addresses, ","),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*providers.TokenMetadata, len(addresses))
	if raw == nil {
		return out, nil
	}

	var data map[string]*metadataData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode batch metadata response: %w", err)
	}
	for addr, m := range data {
		if m == nil {
			continue
		}
		out[addr] = metadataToProvider(addr, *m)
	}
	return out, nil
}

// TokenOverview fetches the market snapshot for one address.
func (c *Client) TokenOverview(ctx context.Context, address string) (*providers.TokenOverview, error) {
	raw, err := c.get(ctx, "/defi/token_overview", map[string]string{"address": address})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var data overviewData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode overview response: %w", err)
	}
	overview := overviewToProvider(data)
	if overview.Address == "" {
		overview.Address = address
	}
	return &overview, nil
}

// TokenSecurity fetches holder-concentration data for one address.
func (c *Client) TokenSecurity(ctx context.Context, address string) (*providers.TokenSecurity, error) {
	raw, err := c.get(ctx, "/defi/token_security", map[string]string{"address": address})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var data securityData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode security response: %w", err)
	}
	return &providers.TokenSecurity{
		Address:         address,
		CreatorPercent:  data.CreatorPercentage * 100,
		Top10Percent:    data.Top10HolderPercent * 100,
		FreezeAuthority: data.Freezeable,
		MintAuthority:   data.MintAuthority,
		IsHoneypot:      data.IsHoneypot,
	}, nil
}

// TopTraders fetches the most active traders for a token.
func (c *Client) TopTraders(ctx context.Context, address string, opts providers.TopTradersOptions) ([]providers.TraderInfo, error) {
	if opts.Limit <= 0 {
		opts = providers.DefaultTopTradersOptions()
	}

	raw, err := c.get(ctx, "/defi/v2/tokens/top_traders", map[string]string{
		"address":    address,
		"time_frame": opts.TimeFrame,
		"sort_by":    opts.SortBy,
		"sort_type":  opts.SortType,
		"limit":      fmt.Sprintf("%d", opts.Limit),
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var data struct {
		Items []traderData `json:"items"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode top traders response: %w", err)
	}

	traders := make([]providers.TraderInfo, 0, len(data.Items))
	for _, item := range data.Items {
		traders = append(traders, providers.TraderInfo{
			Owner:      item.Owner,
			VolumeUSD:  item.VolumeUSD,
			TradeCount: item.TradeCount,
		})
	}
	return traders, nil
}

// TokenList fetches token overviews ranked by sortBy.
func (c *Client) TokenList(ctx context.Context, sortBy string, limit int) ([]providers.TokenOverview, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := c.get(ctx, "/defi/tokenlist", map[string]string{
		"sort_by":   sortBy,
		"sort_type": "desc",
		"offset":    "0",
		"limit":     fmt.Sprintf("%d", limit),
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var data struct {
		Tokens []overviewData `json:"tokens"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode token list response: %w", err)
	}

	out := make([]providers.TokenOverview, 0, len(data.Tokens))
	for _, tok := range data.Tokens {
		out = append(out, overviewToProvider(tok))
	}
	return out, nil
}

func metadataToProvider(address string, m metadataData) *providers.TokenMetadata {
	if m.Address == "" {
		m.Address = address
	}
	return &providers.TokenMetadata{
		Address:  m.Address,
		Symbol:   m.Symbol,
		Name:     m.Name,
		Decimals: m.Decimals,
		LogoURI:  m.LogoURI,
	}
}

func overviewToProvider(data overviewData) providers.TokenOverview {
	overview := providers.TokenOverview{
		Address:        data.Address,
		Symbol:         data.Symbol,
		PriceUSD:       data.Price,
		LiquidityUSD:   data.Liquidity,
		MarketCapUSD:   data.MarketCap,
		Volume24hUSD:   data.Volume24hUSD,
		PriceChange1h:  data.PriceChange1hPercent,
		PriceChange24h: data.PriceChange24hPercent,
		Trades24h:      data.Trade24h,
		Holders:        data.Holder,
	}
	if data.ListingTime > 0 {
		overview.CreatedAt = time.Unix(data.ListingTime, 0)
	}
	return overview
}

// get performs one GET request and returns the envelope's data payload.
// A successful response with empty data is a soft miss (nil, nil).
func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	reqURL := c.cfg.BaseURL + endpoint
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		reqURL += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("x-chain", c.cfg.Chain)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("endpoint not found (404): %s", string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	return env.Data, nil
}
