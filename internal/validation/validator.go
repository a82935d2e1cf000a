package validation

import (
	"regexp"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Well-known Solana mints that never belong in an early-gem scan. Wrapped
// majors and stablecoins produce false positives in every discovery heuristic,
// so they are filtered before any network call.
var majorTokens = map[string]string{
	"So11111111111111111111111111111111111111112": "WSOL",
	"3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh": "WBTC",
	"7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs": "WETH",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
	"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn": "jitoSOL",
}

var stablecoins = map[string]string{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"USDH1SM1ojwWUga67PGrgFWUHibbjqMvuMaDkRJTgkX":  "USDH",
	"7kbnvuGBxxj8AG9qp8Scn56muWGaRaFqxg1FsRp3PaFT": "UXD",
}

var (
	base58Pattern  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	ethAddrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// Report summarizes one ValidateBatch call. It is created fresh per call and
// not retained by the validator.
type Report struct {
	InputCount        int           `json:"input_count"`
	ValidCount        int           `json:"valid_count"`
	FilteredCount     int           `json:"filtered_count"`
	DuplicatesRemoved int           `json:"duplicates_removed"`
	InvalidFormat     []string      `json:"invalid_format,omitempty"`
	ExcludedTokens    []string      `json:"excluded_tokens,omitempty"`
	Elapsed           time.Duration `json:"elapsed"`
	Error             string        `json:"error,omitempty"`
}

// Options toggles the individual validation passes. The zero value disables
// everything, so use DefaultOptions as the base.
type Options struct {
	FormatCheck    bool
	ExclusionCheck bool
	DuplicateCheck bool
}

// DefaultOptions enables every pass.
func DefaultOptions() Options {
	return Options{FormatCheck: true, ExclusionCheck: true, DuplicateCheck: true}
}

// Stats accumulates validator session counters across calls.
type Stats struct {
	Calls             int64         `json:"calls"`
	TokensIn          int64         `json:"tokens_in"`
	TokensValid       int64         `json:"tokens_valid"`
	TokensFiltered    int64         `json:"tokens_filtered"`
	DuplicatesRemoved int64         `json:"duplicates_removed"`
	TotalElapsed      time.Duration `json:"total_elapsed"`
}

// Validator filters token address lists before they reach the network.
// Exclusion sets are instance state so tests and callers can adjust them
// without touching package globals.
type Validator struct {
	mu         sync.RWMutex
	exclusions map[string]string
	stats      Stats
}

// New creates a Validator preloaded with the major-token and stablecoin sets.
func New() *Validator {
	exclusions := make(map[string]string, len(majorTokens)+len(stablecoins))
	for addr, sym := range majorTokens {
		exclusions[addr] = sym
	}
	for addr, sym := range stablecoins {
		exclusions[addr] = sym
	}
	return &Validator{exclusions: exclusions}
}

// ValidateBatch dedups, format-checks, and exclusion-filters the given
// addresses. Relative input order is preserved in the returned slice. A fully
// empty result is not an error; callers check len(valid).
func (v *Validator) ValidateBatch(addresses []string, opts Options) ([]string, *Report) {
	start := time.Now()
	report := &Report{InputCount: len(addresses)}

	if len(addresses) == 0 {
		report.Error = "empty address list"
		report.Elapsed = time.Since(start)
		v.record(report)
		return []string{}, report
	}

	candidates := addresses
	if opts.DuplicateCheck {
		seen := make(map[string]struct{}, len(addresses))
		deduped := make([]string, 0, len(addresses))
		for _, addr := range addresses {
			if _, dup := seen[addr]; dup {
				report.DuplicatesRemoved++
				continue
			}
			seen[addr] = struct{}{}
			deduped = append(deduped, addr)
		}
		candidates = deduped
	}

	valid := make([]string, 0, len(candidates))
	for _, addr := range candidates {
		if opts.FormatCheck && !IsValidSolanaAddress(addr) {
			report.InvalidFormat = append(report.InvalidFormat, addr)
			continue
		}
		if opts.ExclusionCheck {
			if sym, excluded := v.exclusionFor(addr); excluded {
				report.ExcludedTokens = append(report.ExcludedTokens, addr)
				log.Debug().Str("address", addr).Str("symbol", sym).Msg("Excluded token filtered")
				continue
			}
		}
		valid = append(valid, addr)
	}

	report.ValidCount = len(valid)
	report.FilteredCount = report.InputCount - report.ValidCount
	report.Elapsed = time.Since(start)
	v.record(report)

	if report.FilteredCount > 0 {
		log.Debug().
			Int("input", report.InputCount).
			Int("valid", report.ValidCount).
			Int("filtered", report.FilteredCount).
			Int("duplicates", report.DuplicatesRemoved).
			Msg("Token batch validated")
	}
	return valid, report
}

// IsValidSolanaAddress reports whether addr looks like a Solana mint: base58
// alphabet, 32-44 chars, actually decodable, and not an Ethereum address.
func IsValidSolanaAddress(addr string) bool {
	if addr == "" || ethAddrPattern.MatchString(addr) {
		return false
	}
	if !base58Pattern.MatchString(addr) {
		return false
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	// Solana public keys are 32 bytes.
	return len(decoded) == 32
}

// AddExclusion adds an address to the exclusion set.
func (v *Validator) AddExclusion(address, symbol string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.exclusions[address] = symbol
}

// RemoveExclusion drops an address from the exclusion set.
func (v *Validator) RemoveExclusion(address string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.exclusions, address)
}

// IsExcluded reports whether the address is in the exclusion set.
func (v *Validator) IsExcluded(address string) bool {
	_, excluded := v.exclusionFor(address)
	return excluded
}

func (v *Validator) exclusionFor(address string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	sym, ok := v.exclusions[address]
	return sym, ok
}

// Stats returns a snapshot of the session counters.
func (v *Validator) Stats() Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stats
}

func (v *Validator) record(report *Report) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats.Calls++
	v.stats.TokensIn += int64(report.InputCount)
	v.stats.TokensValid += int64(report.ValidCount)
	v.stats.TokensFiltered += int64(report.FilteredCount)
	v.stats.DuplicatesRemoved += int64(report.DuplicatesRemoved)
	v.stats.TotalElapsed += report.Elapsed
}
