// Package policies provides the retry policies used by the pipeline retry
// decorator and the outbox processor: no-retry, linear, exponential with
// jitter, and a per-failure-key circuit breaker.
package policies

import (
	"math"
	"math/rand"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
)

// RetryPolicy decides whether and when a failed attempt is retried.
// attempt is 0-based: ShouldRetry(err, 0) is asked after the first failure.
type RetryPolicy interface {
	// MaxRetries returns the maximum number of retries after the initial
	// attempt.
	MaxRetries() int

	// ShouldRetry reports whether the attempt should be retried.
	ShouldRetry(err error, attempt int) bool

	// RetryDelay returns how long to wait before the given attempt.
	RetryDelay(attempt int) time.Duration
}

// NoRetry never retries.
type NoRetry struct{}

// NewNoRetry creates a policy that never retries.
func NewNoRetry() NoRetry { return NoRetry{} }

func (NoRetry) MaxRetries() int                         { return 0 }
func (NoRetry) ShouldRetry(err error, attempt int) bool { return false }
func (NoRetry) RetryDelay(attempt int) time.Duration    { return 0 }

// Linear retries with a fixed delay, only for a configured set of failure
// kinds. Fatal failures are never retried.
type Linear struct {
	maxRetries int
	delay      time.Duration
	retryable  map[faults.Kind]bool
}

// LinearOption configures a Linear policy.
type LinearOption func(*Linear)

// WithRetryableKinds replaces the set of failure kinds the policy retries.
func WithRetryableKinds(kinds ...faults.Kind) LinearOption {
	return func(p *Linear) {
		p.retryable = make(map[faults.Kind]bool, len(kinds))
		for _, k := range kinds {
			p.retryable[k] = true
		}
	}
}

// NewLinear creates a fixed-delay policy. By default it retries the
// transient kinds only: timeout, I/O and network failures.
func NewLinear(maxRetries int, delay time.Duration, opts ...LinearOption) *Linear {
	p := &Linear{
		maxRetries: maxRetries,
		delay:      delay,
		retryable: map[faults.Kind]bool{
			faults.KindTimeout: true,
			faults.KindIO:      true,
			faults.KindNetwork: true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Linear) MaxRetries() int { return p.maxRetries }

func (p *Linear) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxRetries {
		return false
	}
	kind := faults.Classify(err)
	if faults.IsFatal(kind) {
		return false
	}
	return p.retryable[kind]
}

func (p *Linear) RetryDelay(attempt int) time.Duration { return p.delay }

// ExponentialBackoff retries transient failures with
//
//	delay = min(maxDelay, baseDelay * 2^attempt * (1 + U[0,jitterFactor]))
//
// walking the wrapped-error chain for classification. Fatal failures are
// never retried.
type ExponentialBackoff struct {
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	jitterFactor float64
	rand         func() float64
}

// NewExponentialBackoff creates an exponential policy with jitterFactor in
// [0,1).
func NewExponentialBackoff(maxRetries int, baseDelay, maxDelay time.Duration, jitterFactor float64) *ExponentialBackoff {
	return &ExponentialBackoff{
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		jitterFactor: jitterFactor,
		rand:         rand.Float64,
	}
}

func (p *ExponentialBackoff) MaxRetries() int { return p.maxRetries }

func (p *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxRetries {
		return false
	}
	kind := faults.Classify(err)
	if faults.IsFatal(kind) {
		return false
	}
	return faults.IsTransient(kind)
}

func (p *ExponentialBackoff) RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	jittered := base * (1 + p.rand()*p.jitterFactor)
	if max := float64(p.maxDelay); jittered > max {
		jittered = max
	}
	return time.Duration(jittered)
}
