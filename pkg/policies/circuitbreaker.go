package policies

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
)

// CircuitBreaker is a retry policy that opens a circuit per failure key.
// When a key accumulates failureThreshold consecutive failures its circuit
// opens for openDuration and ShouldRetry returns false; after the window the
// circuit is half-open and the next attempt is allowed through.
//
// The failure key derives from the failure kind and a digest of the error
// message, so distinct failure causes trip independently.
type CircuitBreaker struct {
	maxRetries       int
	delay            time.Duration
	failureThreshold uint32
	openDuration     time.Duration

	breakers sync.Map // failure key -> *gobreaker.TwoStepCircuitBreaker
}

// NewCircuitBreaker creates a circuit-breaker retry policy.
func NewCircuitBreaker(maxRetries int, delay time.Duration, failureThreshold int, openDuration time.Duration) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		maxRetries:       maxRetries,
		delay:            delay,
		failureThreshold: uint32(failureThreshold),
		openDuration:     openDuration,
	}
}

func (p *CircuitBreaker) MaxRetries() int { return p.maxRetries }

func (p *CircuitBreaker) ShouldRetry(err error, attempt int) bool {
	kind := faults.Classify(err)
	if faults.IsFatal(kind) {
		return false
	}

	breaker := p.breakerFor(FailureKey(err))

	done, allowErr := breaker.Allow()
	if allowErr != nil {
		// Circuit open: suppress the retry.
		return false
	}
	// The attempt we were asked about has already failed; record it.
	done(false)

	return attempt < p.maxRetries
}

func (p *CircuitBreaker) RetryDelay(attempt int) time.Duration { return p.delay }

// State returns the circuit state for err's failure key, for health
// snapshots.
func (p *CircuitBreaker) State(err error) gobreaker.State {
	return p.breakerFor(FailureKey(err)).State()
}

func (p *CircuitBreaker) breakerFor(key string) *gobreaker.TwoStepCircuitBreaker {
	if cb, ok := p.breakers.Load(key); ok {
		return cb.(*gobreaker.TwoStepCircuitBreaker)
	}

	created := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     p.openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.failureThreshold
		},
	})
	actual, _ := p.breakers.LoadOrStore(key, created)
	return actual.(*gobreaker.TwoStepCircuitBreaker)
}

// FailureKey derives the circuit key for an error from its classified kind
// and a digest of its message.
func FailureKey(err error) string {
	if err == nil {
		return "none"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(err.Error()))
	return fmt.Sprintf("%s:%08x", faults.Classify(err), h.Sum32())
}
