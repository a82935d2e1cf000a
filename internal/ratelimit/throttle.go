package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum inter-request interval derived from a
// requests-per-minute ceiling (800/min gives 75ms between requests). It is a
// deliberately simple global gate, not a sliding-window limiter: bursts are
// bounded only by the fixed interval, which is what the upstream APIs expect.
type Throttle struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	rpm         int
	requests    int64
	windowCount int
	windowStart time.Time
}

// NewThrottle creates a throttle for the given requests-per-minute ceiling.
// Burst is pinned to 1 so the token bucket degenerates to an exact
// fixed-interval spacing.
func NewThrottle(requestsPerMinute int) *Throttle {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &Throttle{
		limiter:     rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1),
		rpm:         requestsPerMinute,
		windowStart: time.Now(),
	}
}

// Wait blocks until the next request may be issued, then records it. It
// returns early with the context error if ctx is cancelled while waiting.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.record()
	return nil
}

// Interval returns the enforced minimum spacing between requests.
func (t *Throttle) Interval() time.Duration {
	return time.Minute / time.Duration(t.rpm)
}

// Snapshot describes current throttle state for diagnostics.
type Snapshot struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	MinInterval       time.Duration `json:"min_interval"`
	TotalRequests     int64         `json:"total_requests"`
	WindowRequests    int           `json:"window_requests"`
	WindowStart       time.Time     `json:"window_start"`
}

// Snapshot returns the rolling one-minute counter and totals. The window
// counter is reporting-only; the hard gate is always the per-request interval.
func (t *Throttle) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollWindowLocked(time.Now())
	return Snapshot{
		RequestsPerMinute: t.rpm,
		MinInterval:       time.Minute / time.Duration(t.rpm),
		TotalRequests:     t.requests,
		WindowRequests:    t.windowCount,
		WindowStart:       t.windowStart,
	}
}

func (t *Throttle) record() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.rollWindowLocked(now)
	t.requests++
	t.windowCount++
}

// rollWindowLocked resets the one-minute counter when the wall-clock window
// has elapsed. Caller holds mu.
func (t *Throttle) rollWindowLocked(now time.Time) {
	if now.Sub(t.windowStart) >= time.Minute {
		t.windowStart = now
		t.windowCount = 0
	}
}
