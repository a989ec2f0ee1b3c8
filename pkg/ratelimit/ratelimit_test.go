package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, opts Options) (*Limiter, *time.Time) {
	t.Helper()
	l, err := New(opts)
	require.NoError(t, err)

	now := time.Now()
	l.now = func() time.Time { return now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		now = now.Add(d)
		return ctx.Err()
	}
	return l, &now
}

func defaultOptions() Options {
	return Options{
		Capacity:     10,
		RefillRate:   10,
		RefillPeriod: time.Second,
		Behavior:     Reject,
		MaxQueueWait: time.Second,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Capacity: 0, RefillRate: 1, RefillPeriod: time.Second})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = New(Options{Capacity: 1, RefillRate: -1, RefillPeriod: time.Second})
	assert.ErrorIs(t, err, ErrInvalidOptions)
	_, err = New(Options{Capacity: 1, RefillRate: 1})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestAcquire_BurstWithinCapacitySucceeds(t *testing.T) {
	l, _ := newTestLimiter(t, defaultOptions())

	// A burst of k <= C permits at t=0 all succeed.
	for i := 0; i < 10; i++ {
		d, err := l.Acquire(context.Background(), "", 1)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "permit %d", i)
	}

	d, err := l.Acquire(context.Background(), "", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestAcquire_LazyRefill(t *testing.T) {
	l, now := newTestLimiter(t, defaultOptions())

	_, err := l.Acquire(context.Background(), "", 10)
	require.NoError(t, err)

	// Half a second at 10/s refills 5 tokens.
	*now = now.Add(500 * time.Millisecond)

	d, err := l.Acquire(context.Background(), "", 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.InDelta(t, 0, d.Remaining, 0.001)

	// Refill never exceeds capacity.
	*now = now.Add(time.Hour)
	d, err = l.Acquire(context.Background(), "", 1)
	require.NoError(t, err)
	assert.InDelta(t, 9, d.Remaining, 0.001)
}

func TestAcquire_RejectReportsRetryAfter(t *testing.T) {
	l, _ := newTestLimiter(t, defaultOptions())

	_, err := l.Acquire(context.Background(), "", 10)
	require.NoError(t, err)

	d, err := l.Acquire(context.Background(), "", 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	// 5 permits short at 10/s = 500ms.
	assert.InDelta(t, float64(500*time.Millisecond), float64(d.RetryAfter), float64(time.Millisecond))
}

func TestAcquire_QueueWaitsForRefill(t *testing.T) {
	opts := defaultOptions()
	opts.Behavior = Queue
	opts.MaxQueueWait = 2 * time.Second
	l, _ := newTestLimiter(t, opts)

	_, err := l.Acquire(context.Background(), "", 10)
	require.NoError(t, err)

	d, err := l.Acquire(context.Background(), "", 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "queued acquisition succeeds after simulated wait")
}

func TestAcquire_QueueBoundExceeded(t *testing.T) {
	opts := defaultOptions()
	opts.Behavior = Queue
	opts.MaxQueueWait = 100 * time.Millisecond
	l, _ := newTestLimiter(t, opts)

	_, err := l.Acquire(context.Background(), "", 10)
	require.NoError(t, err)

	// 5 tokens need 500ms, beyond the 100ms bound.
	d, err := l.Acquire(context.Background(), "", 5)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAcquire_QueueHonorsCancellation(t *testing.T) {
	opts := defaultOptions()
	opts.Behavior = Queue
	opts.MaxQueueWait = time.Minute
	l, err := New(opts)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "", 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquire_TooManyPermits(t *testing.T) {
	l, _ := newTestLimiter(t, defaultOptions())
	_, err := l.Acquire(context.Background(), "", 11)
	assert.ErrorIs(t, err, ErrTooManyPermits)
}

func TestScoping_IndependentBuckets(t *testing.T) {
	opts := defaultOptions()
	opts.EnableScoping = true
	l, _ := newTestLimiter(t, opts)

	_, err := l.Acquire(context.Background(), "tenant-a", 10)
	require.NoError(t, err)

	d, err := l.Acquire(context.Background(), "tenant-a", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = l.Acquire(context.Background(), "tenant-b", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "tenant-b has its own bucket")
}

func TestScoping_EvictsLRUBeyondCap(t *testing.T) {
	opts := defaultOptions()
	opts.EnableScoping = true
	opts.MaxScopedKeys = 2
	l, now := newTestLimiter(t, opts)

	_, err := l.Acquire(context.Background(), "a", 1)
	require.NoError(t, err)
	*now = now.Add(time.Millisecond)
	_, err = l.Acquire(context.Background(), "b", 1)
	require.NoError(t, err)
	*now = now.Add(time.Millisecond)
	_, err = l.Acquire(context.Background(), "c", 1)
	require.NoError(t, err)

	assert.Equal(t, 2, l.ScopedKeys())
}

func TestStatistics(t *testing.T) {
	l, _ := newTestLimiter(t, defaultOptions())

	for i := 0; i < 10; i++ {
		_, err := l.Acquire(context.Background(), "", 1)
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := l.Acquire(context.Background(), "", 1)
		require.NoError(t, err)
	}

	stats := l.Statistics()
	assert.Equal(t, float64(10), stats.Capacity)
	assert.Equal(t, float64(10), stats.RefillPerSecond)
	assert.Equal(t, uint64(10), stats.Acquired)
	assert.Equal(t, uint64(5), stats.Throttled)
	assert.InDelta(t, 5.0/15.0, stats.ThrottleRate, 0.001)
}
