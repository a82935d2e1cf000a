package batch

import (
	"sync"
	"time"
)

// Stats accumulates manager counters. Counters only grow; Reset is an
// explicit caller action.
type Stats struct {
	mu sync.Mutex

	requests        int64
	successes       int64
	failures        int64
	tokensProcessed int64
	tokensValidated int64
	tokensFiltered  int64
	apiCallsMade    int64
	apiCallsSaved   int64
	totalTime       time.Duration
}

// PerformanceStats is the read-side snapshot returned to callers and the
// stats endpoint. Ratios are derived at snapshot time.
type PerformanceStats struct {
	Requests        int64         `json:"requests"`
	Successes       int64         `json:"successes"`
	Failures        int64         `json:"failures"`
	TokensProcessed int64         `json:"tokens_processed"`
	TokensValidated int64         `json:"tokens_validated"`
	TokensFiltered  int64         `json:"tokens_filtered"`
	APICallsMade    int64         `json:"api_calls_made"`
	APICallsSaved   int64         `json:"api_calls_saved"`
	TotalTime       time.Duration `json:"total_time"`
	SavedRatio      float64       `json:"saved_ratio"`
	AvgRequestTime  time.Duration `json:"avg_request_time"`
}

type requestOutcome struct {
	processed  int
	validated  int
	filtered   int
	callsMade  int
	callsSaved int
	succeeded  bool
	elapsed    time.Duration
}

func (s *Stats) record(o requestOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests++
	if o.succeeded {
		s.successes++
	} else {
		s.failures++
	}
	s.tokensProcessed += int64(o.processed)
	s.tokensValidated += int64(o.validated)
	s.tokensFiltered += int64(o.filtered)
	s.apiCallsMade += int64(o.callsMade)
	s.apiCallsSaved += int64(o.callsSaved)
	s.totalTime += o.elapsed
}

// Snapshot returns the current counters with derived ratios.
func (s *Stats) Snapshot() PerformanceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := PerformanceStats{
		Requests:        s.requests,
		Successes:       s.successes,
		Failures:        s.failures,
		TokensProcessed: s.tokensProcessed,
		TokensValidated: s.tokensValidated,
		TokensFiltered:  s.tokensFiltered,
		APICallsMade:    s.apiCallsMade,
		APICallsSaved:   s.apiCallsSaved,
		TotalTime:       s.totalTime,
	}
	if total := s.apiCallsMade + s.apiCallsSaved; total > 0 {
		snap.SavedRatio = float64(s.apiCallsSaved) / float64(total)
	}
	if s.requests > 0 {
		snap.AvgRequestTime = s.totalTime / time.Duration(s.requests)
	}
	return snap
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = 0
	s.successes = 0
	s.failures = 0
	s.tokensProcessed = 0
	s.tokensValidated = 0
	s.tokensFiltered = 0
	s.apiCallsMade = 0
	s.apiCallsSaved = 0
	s.totalTime = 0
}
