// Package dexscreener implements the DexScreener REST connector, used as the
// keyless fallback when Birdeye is unavailable. DexScreener reports per-pair
// data, so token-level results are derived from the deepest pair.
package dexscreener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gemscan/gemscan/internal/providers"
)

// batchLimit is DexScreener's cap on comma-joined addresses per request.
const batchLimit = 30

// Config holds the connector settings.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

// Client is the DexScreener provider implementation.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a DexScreener client. Missing config fields get defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dexscreener.com"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "GemScan/1.0"
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (c *Client) Name() string      { return "dexscreener" }
func (c *Client) MaxBatchSize() int { return batchLimit }

type pairResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H1  float64 `json:"h1"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Txns struct {
		H24 struct {
			Buys  int64 `json:"buys"`
			Sells int64 `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	FDV float64 `json:"fdv"`
	// Milliseconds since epoch.
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// TokenPrice derives a price from the token's deepest pair.
func (c *Client) TokenPrice(ctx context.Context, address string) (*providers.TokenPrice, error) {
	prices, err := c.MultiTokenPrice(ctx, []string{address})
	if err != nil {
		return nil, err
	}
	return prices[address], nil
}

// MultiTokenPrice fetches prices for up to MaxBatchSize addresses in one call.
func (c *Client) MultiTokenPrice(ctx context.Context, addresses []string) (map[string]*providers.TokenPrice, error) {
	best, err := c.bestPairs(ctx, addresses)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*providers.TokenPrice, len(best))
	for addr, p := range best {
		price, err := strconv.ParseFloat(p.PriceUSD, 64)
		if err != nil {
			continue
		}
		out[addr] = &providers.TokenPrice{
			Address:      addr,
			PriceUSD:     price,
			LiquidityUSD: p.Liquidity.USD,
		}
	}
	return out, nil
}

// TokenMetadata derives symbol and name from the token's deepest pair.
// DexScreener does not expose decimals or logos.
func (c *Client) TokenMetadata(ctx context.Context, address string) (*providers.TokenMetadata, error) {
	meta, err := c.BatchTokenMetadata(ctx, []string{address})
	if err != nil {
		return nil, err
	}
	return meta[address], nil
}

// BatchTokenMetadata fetches metadata for multiple addresses in one call.
func (c *Client) BatchTokenMetadata(ctx context.Context, addresses []string) (map[string]*providers.TokenMetadata, error) {
	best, err := c.bestPairs(ctx, addresses)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*providers.TokenMetadata, len(best))
	for addr, p := range best {
		out[addr] = &providers.TokenMetadata{
			Address: addr,
			Symbol:  p.BaseToken.Symbol,
			Name:    p.BaseToken.Name,
		}
	}
	return out, nil
}

// TokenOverview builds a market snapshot from the token's deepest pair.
func (c *Client) TokenOverview(ctx context.Context, address string) (*providers.TokenOverview, error) {
	best, err := c.bestPairs(ctx, []string{address})
	if err != nil {
		return nil, err
	}
	p, ok := best[address]
	if !ok {
		return nil, nil
	}

	price, _ := strconv.ParseFloat(p.PriceUSD, 64)
	overview := &providers.TokenOverview{
		Address:        address,
		Symbol:         p.BaseToken.Symbol,
		PriceUSD:       price,
		LiquidityUSD:   p.Liquidity.USD,
		MarketCapUSD:   p.FDV,
		Volume24hUSD:   p.Volume.H24,
		PriceChange1h:  p.PriceChange.H1,
		PriceChange24h: p.PriceChange.H24,
		Trades24h:      p.Txns.H24.Buys + p.Txns.H24.Sells,
	}
	if p.PairCreatedAt > 0 {
		overview.CreatedAt = time.UnixMilli(p.PairCreatedAt)
	}
	return overview, nil
}

// TokenSecurity is not available from DexScreener; every address is a soft
// miss so the orchestrator can try another source.
func (c *Client) TokenSecurity(ctx context.Context, address string) (*providers.TokenSecurity, error) {
	return nil, nil
}

// TopTraders is not available from DexScreener.
func (c *Client) TopTraders(ctx context.Context, address string, opts providers.TopTradersOptions) ([]providers.TraderInfo, error) {
	return nil, nil
}

// TokenList is not available from DexScreener: there is no ranked listing
// endpoint on the public API.
func (c *Client) TokenList(ctx context.Context, sortBy string, limit int) ([]providers.TokenOverview, error) {
	return nil, errors.New("token list endpoint not found (404)")
}

// bestPairs fetches all pairs for the given addresses and keeps the deepest
// pair per base token.
func (c *Client) bestPairs(ctx context.Context, addresses []string) (map[string]pair, error) {
	if len(addresses) == 0 {
		return map[string]pair{}, nil
	}
	if len(addresses) > batchLimit {
		return nil, fmt.Errorf("batch of %d exceeds provider limit %d", len(addresses), batchLimit)
	}

	endpoint := "/latest/dex/tokens/" + strings.Join(addresses, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
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

	var parsed pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode pairs response: %w", err)
	}

	best := make(map[string]pair, len(addresses))
	for _, p := range parsed.Pairs {
		addr := p.BaseToken.Address
		if addr == "" {
			continue
		}
		if cur, ok := best[addr]; !ok || p.Liquidity.USD > cur.Liquidity.USD {
			best[addr] = p
		}
	}
	return best, nil
}
