package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gemscan/gemscan/internal/providers"
)

// errEndpointMissing mimics the upstream "no such route" failure shape.
var errEndpointMissing = errors.New("endpoint not found (404)")

// fakeProvider is a scriptable Provider for manager and selector tests.
type fakeProvider struct {
	mu sync.Mutex

	maxBatch   int
	batchErr   error            // returned by every batch call when set
	failAddrs  map[string]error // per-address single-call failures
	missAddrs  map[string]bool  // per-address soft misses
	callCounts map[string]int   // method name -> calls
	addrCounts map[string]int   // address -> fetches (single + batch membership)
}

func newFakeProvider(maxBatch int) *fakeProvider {
	return &fakeProvider{
		maxBatch:   maxBatch,
		failAddrs:  make(map[string]error),
		missAddrs:  make(map[string]bool),
		callCounts: make(map[string]int),
		addrCounts: make(map[string]int),
	}
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) MaxBatchSize() int { return f.maxBatch }

func (f *fakeProvider) record(method string, addresses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCounts[method]++
	for _, addr := range addresses {
		f.addrCounts[addr]++
	}
}

func (f *fakeProvider) calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCounts[method]
}

func (f *fakeProvider) fetchesFor(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addrCounts[addr]
}

func (f *fakeProvider) TokenPrice(ctx context.Context, address string) (*providers.TokenPrice, error) {
	f.record("TokenPrice", address)
	if err := f.failAddrs[address]; err != nil {
		return nil, err
	}
	if f.missAddrs[address] {
		return nil, nil
	}
	return &providers.TokenPrice{Address: address, PriceUSD: 1.0}, nil
}

func (f *fakeProvider) MultiTokenPrice(ctx context.Context, addresses []string) (map[string]*providers.TokenPrice, error) {
	f.record("MultiTokenPrice", addresses...)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make(map[string]*providers.TokenPrice, len(addresses))
	for _, addr := range addresses {
		if f.missAddrs[addr] {
			continue
		}
		out[addr] = &providers.TokenPrice{Address: addr, PriceUSD: 1.0}
	}
	return out, nil
}

func (f *fakeProvider) TokenMetadata(ctx context.Context, address string) (*providers.TokenMetadata, error) {
	f.record("TokenMetadata", address)
	if err := f.failAddrs[address]; err != nil {
		return nil, err
	}
	if f.missAddrs[address] {
		return nil, nil
	}
	return &providers.TokenMetadata{
		Address: address,
		Symbol:  fmt.Sprintf("T%s", address),
		Name:    "Fake Token",
	}, nil
}

func (f *fakeProvider) BatchTokenMetadata(ctx context.Context, addresses []string) (map[string]*providers.TokenMetadata, error) {
	f.record("BatchTokenMetadata", addresses...)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make(map[string]*providers.TokenMetadata, len(addresses))
	for _, addr := range addresses {
		if f.missAddrs[addr] {
			continue
		}
		out[addr] = &providers.TokenMetadata{Address: addr, Symbol: "FAKE"}
	}
	return out, nil
}

func (f *fakeProvider) TokenOverview(ctx context.Context, address string) (*providers.TokenOverview, error) {
	f.record("TokenOverview", address)
	if err := f.failAddrs[address]; err != nil {
		return nil, err
	}
	if f.missAddrs[address] {
		return nil, nil
	}
	return &providers.TokenOverview{Address: address, Volume24hUSD: 1000}, nil
}

func (f *fakeProvider) TokenSecurity(ctx context.Context, address string) (*providers.TokenSecurity, error) {
	f.record("TokenSecurity", address)
	if err := f.failAddrs[address]; err != nil {
		return nil, err
	}
	if f.missAddrs[address] {
		return nil, nil
	}
	return &providers.TokenSecurity{Address: address}, nil
}

func (f *fakeProvider) TopTraders(ctx context.Context, address string, opts providers.TopTradersOptions) ([]providers.TraderInfo, error) {
	f.record("TopTraders", address)
	return nil, nil
}

func (f *fakeProvider) TokenList(ctx context.Context, sortBy string, limit int) ([]providers.TokenOverview, error) {
	f.record("TokenList")
	return nil, nil
}
