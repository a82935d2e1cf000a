package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_Interval(t *testing.T) {
	th := NewThrottle(800)
	assert.Equal(t, 75*time.Millisecond, th.Interval())

	th = NewThrottle(60)
	assert.Equal(t, time.Second, th.Interval())
}

func TestThrottle_EnforcesSpacing(t *testing.T) {
	th := NewThrottle(600) // 100ms interval
	ctx := context.Background()

	// First request passes immediately, second waits ~100ms.
	require.NoError(t, th.Wait(ctx))

	start := time.Now()
	require.NoError(t, th.Wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestThrottle_ContextCancellation(t *testing.T) {
	th := NewThrottle(6) // 10s interval
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx))

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := th.Wait(shortCtx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestThrottle_SnapshotCountsRequests(t *testing.T) {
	th := NewThrottle(6000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, th.Wait(ctx))
	}

	snap := th.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, 3, snap.WindowRequests)
	assert.Equal(t, 6000, snap.RequestsPerMinute)
	assert.Equal(t, 10*time.Millisecond, snap.MinInterval)
}

func TestThrottle_DefaultsOnBadInput(t *testing.T) {
	th := NewThrottle(0)
	assert.Equal(t, time.Second, th.Interval())
}
