package batch

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gemscan/gemscan/internal/providers"
)

// Strategy is the fetch plan for one batch request.
type Strategy int

const (
	// TrueBatch sends many addresses in one upstream call.
	TrueBatch Strategy = iota
	// ParallelIndividual fans out single-address calls under a concurrency gate.
	ParallelIndividual
	// SequentialSafe fetches one address at a time with extra spacing. The
	// slowest path, used as the ultimate fallback.
	SequentialSafe
)

// String returns the strategy name used in logs and stats.
func (s Strategy) String() string {
	switch s {
	case TrueBatch:
		return "true_batch"
	case ParallelIndividual:
		return "parallel_individual"
	case SequentialSafe:
		return "sequential_safe"
	default:
		return "unknown"
	}
}

// DataKind names the categories of token data the manager fetches. Each kind
// has its own cache TTL and capability record.
type DataKind string

const (
	KindMetadata DataKind = "metadata"
	KindPrice    DataKind = "price"
	KindOverview DataKind = "overview"
	KindSecurity DataKind = "security"
)

// Capability is the probed state of an upstream batch endpoint. Unknown is
// re-probed on the next call; Supported and Unsupported stick for the
// lifetime of the selector unless Reprobe is called.
type Capability int

const (
	CapabilityUnknown Capability = iota
	CapabilitySupported
	CapabilityUnsupported
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapabilitySupported:
		return "supported"
	case CapabilityUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// probeAddress is a mint that always exists upstream (wrapped SOL), used to
// exercise batch endpoints during capability detection.
const probeAddress = "So11111111111111111111111111111111111111112"

// Gate rate-limits outbound calls. The manager passes its request throttle so
// capability probes count against the same ceiling as regular fetches.
type Gate interface {
	Wait(ctx context.Context) error
}

// Selector decides the fetch strategy per data kind, probing the provider's
// batch endpoints on first use.
type Selector struct {
	provider providers.Provider
	fallback Strategy
	gate     Gate

	mu           sync.Mutex
	capabilities map[DataKind]Capability
}

// NewSelector creates a Selector that falls back to the given strategy while
// a kind's capability is still unknown. gate may be nil to leave probe calls
// ungated.
func NewSelector(provider providers.Provider, fallback Strategy, gate Gate) *Selector {
	return &Selector{
		provider:     provider,
		fallback:     fallback,
		gate:         gate,
		capabilities: make(map[DataKind]Capability),
	}
}

// Determine returns the strategy for kind, probing the batch endpoint once if
// the capability has not been detected yet. Ambiguous probe failures leave
// the capability unknown so a transient error never permanently disables
// true-batch usage.
func (s *Selector) Determine(ctx context.Context, kind DataKind) Strategy {
	switch s.Capability(kind) {
	case CapabilitySupported:
		return TrueBatch
	case CapabilityUnsupported:
		return ParallelIndividual
	}

	capability := s.probe(ctx, kind)
	s.setCapability(kind, capability)

	switch capability {
	case CapabilitySupported:
		return TrueBatch
	case CapabilityUnsupported:
		return ParallelIndividual
	default:
		log.Debug().Str("kind", string(kind)).Str("fallback", s.fallback.String()).
			Msg("Batch capability still unknown, using fallback strategy")
		return s.fallback
	}
}

// Capability returns the recorded capability for kind.
func (s *Selector) Capability(kind DataKind) Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capabilities[kind]
}

// Reprobe clears the recorded capability so the next Determine call probes
// again. There is no automatic re-probe.
func (s *Selector) Reprobe(kind DataKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.capabilities, kind)
}

func (s *Selector) setCapability(kind DataKind, c Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c != CapabilityUnknown {
		s.capabilities[kind] = c
	}
}

// probe issues one lightweight batch request for the kind and classifies the
// outcome. Kinds without batch endpoints are unsupported by definition.
func (s *Selector) probe(ctx context.Context, kind DataKind) Capability {
	if s.provider.MaxBatchSize() <= 0 {
		return CapabilityUnsupported
	}

	if s.gate != nil {
		if err := s.gate.Wait(ctx); err != nil {
			return CapabilityUnknown
		}
	}

	var err error
	var empty bool
	switch kind {
	case KindMetadata:
		var res map[string]*providers.TokenMetadata
		res, err = s.provider.BatchTokenMetadata(ctx, []string{probeAddress})
		empty = len(res) == 0
	case KindPrice:
		var res map[string]*providers.TokenPrice
		res, err = s.provider.MultiTokenPrice(ctx, []string{probeAddress})
		empty = len(res) == 0
	default:
		// Overview and security have no batch endpoints upstream.
		return CapabilityUnsupported
	}

	switch {
	case err == nil && !empty:
		log.Info().Str("kind", string(kind)).Msg("Batch endpoint detected")
		return CapabilitySupported
	case err != nil && isEndpointMissing(err):
		log.Info().Str("kind", string(kind)).Msg("Batch endpoint not available")
		return CapabilityUnsupported
	case err != nil:
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Batch capability probe inconclusive")
		return CapabilityUnknown
	default:
		// Empty but successful response: cannot tell, retry later.
		return CapabilityUnknown
	}
}

// isEndpointMissing recognizes the "no such endpoint" error shapes upstream
// APIs return for unsupported batch routes.
func isEndpointMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
