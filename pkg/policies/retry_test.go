package policies

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
)

func TestNoRetry(t *testing.T) {
	p := NewNoRetry()
	assert.Equal(t, 0, p.MaxRetries())
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 0))
	assert.Equal(t, time.Duration(0), p.RetryDelay(3))
}

func TestLinear(t *testing.T) {
	p := NewLinear(3, 50*time.Millisecond)

	assert.True(t, p.ShouldRetry(context.DeadlineExceeded, 0))
	assert.True(t, p.ShouldRetry(faults.New(faults.KindNetwork, "conn reset"), 2))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 3), "exhausted retries")
	assert.False(t, p.ShouldRetry(errors.New("unknown"), 0))
	assert.False(t, p.ShouldRetry(faults.New(faults.KindValidation, "bad input"), 0))
	assert.False(t, p.ShouldRetry(faults.New(faults.KindFatal, "oom"), 0), "fatal never retried")

	assert.Equal(t, 50*time.Millisecond, p.RetryDelay(0))
	assert.Equal(t, 50*time.Millisecond, p.RetryDelay(5))
}

func TestLinear_CustomKinds(t *testing.T) {
	p := NewLinear(3, time.Millisecond, WithRetryableKinds(faults.KindConflict))

	assert.True(t, p.ShouldRetry(faults.New(faults.KindConflict, "version mismatch"), 0))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 0))
}

func TestExponentialBackoff_Delay(t *testing.T) {
	p := NewExponentialBackoff(5, 100*time.Millisecond, 2*time.Second, 0.5)
	p.rand = func() float64 { return 1 } // pin jitter at its maximum

	// delay = base * 2^attempt * (1 + 0.5)
	assert.Equal(t, 150*time.Millisecond, p.RetryDelay(0))
	assert.Equal(t, 300*time.Millisecond, p.RetryDelay(1))
	assert.Equal(t, 600*time.Millisecond, p.RetryDelay(2))
	// Capped at maxDelay.
	assert.Equal(t, 2*time.Second, p.RetryDelay(5))
	// Negative attempts are clamped.
	assert.Equal(t, 150*time.Millisecond, p.RetryDelay(-1))
}

func TestExponentialBackoff_RetriesTransientOnly(t *testing.T) {
	p := NewExponentialBackoff(3, time.Millisecond, time.Second, 0)

	assert.True(t, p.ShouldRetry(context.DeadlineExceeded, 0))
	assert.True(t, p.ShouldRetry(faults.New(faults.KindIO, "disk"), 1))
	// Walks the wrapped chain.
	wrapped := faults.Wrap(faults.KindNetwork, errors.New("conn refused"))
	assert.True(t, p.ShouldRetry(wrapped, 0))

	assert.False(t, p.ShouldRetry(faults.New(faults.KindValidation, "bad"), 0))
	assert.False(t, p.ShouldRetry(faults.New(faults.KindFatal, "stack overflow"), 0))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 3), "exhausted")
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	p := NewCircuitBreaker(10, time.Millisecond, 3, time.Second)
	err := faults.New(faults.KindTimeout, "backend slow")

	// The first three failures are allowed through.
	assert.True(t, p.ShouldRetry(err, 0))
	assert.True(t, p.ShouldRetry(err, 1))
	assert.True(t, p.ShouldRetry(err, 2))

	// Threshold reached: the fourth is suppressed.
	assert.False(t, p.ShouldRetry(err, 3))
}

func TestCircuitBreaker_HalfOpenAfterWindow(t *testing.T) {
	p := NewCircuitBreaker(10, time.Millisecond, 2, 50*time.Millisecond)
	err := faults.New(faults.KindTimeout, "backend slow")

	assert.True(t, p.ShouldRetry(err, 0))
	assert.True(t, p.ShouldRetry(err, 1))
	assert.False(t, p.ShouldRetry(err, 2), "circuit open")

	time.Sleep(60 * time.Millisecond)

	// Open window elapsed: half-open lets the next attempt through.
	assert.True(t, p.ShouldRetry(err, 3))
}

func TestCircuitBreaker_KeysAreIndependent(t *testing.T) {
	p := NewCircuitBreaker(10, time.Millisecond, 2, time.Second)
	errA := faults.New(faults.KindTimeout, "backend A slow")
	errB := faults.New(faults.KindTimeout, "backend B slow")

	assert.True(t, p.ShouldRetry(errA, 0))
	assert.True(t, p.ShouldRetry(errA, 1))
	assert.False(t, p.ShouldRetry(errA, 2))

	// A's open circuit does not affect B.
	assert.True(t, p.ShouldRetry(errB, 0))
}

func TestCircuitBreaker_FatalNeverRetried(t *testing.T) {
	p := NewCircuitBreaker(10, time.Millisecond, 3, time.Second)
	assert.False(t, p.ShouldRetry(faults.New(faults.KindFatal, "corrupt"), 0))
}

func TestFailureKey(t *testing.T) {
	a := FailureKey(faults.New(faults.KindTimeout, "backend slow"))
	b := FailureKey(faults.New(faults.KindTimeout, "backend slow"))
	c := FailureKey(faults.New(faults.KindTimeout, "other backend"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "none", FailureKey(nil))
}
