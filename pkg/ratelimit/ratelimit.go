// Package ratelimit implements a lazily refilled token bucket with optional
// per-key scoping and reject/queue throttle behaviors.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Behavior selects what Acquire does when the bucket runs dry.
type Behavior int

const (
	// Reject returns a throttled decision immediately.
	Reject Behavior = iota

	// Queue waits for refill up to MaxQueueWait before giving up.
	Queue
)

var (
	// ErrInvalidOptions is returned for non-positive capacity or refill
	// configuration.
	ErrInvalidOptions = errors.New("rate limiter options must have positive capacity, refill rate and period")

	// ErrTooManyPermits is returned when a single acquisition asks for
	// more permits than the bucket can ever hold.
	ErrTooManyPermits = errors.New("requested permits exceed bucket capacity")
)

// Options configures a Limiter.
type Options struct {
	// Capacity is the maximum number of tokens the bucket holds.
	Capacity float64

	// RefillRate tokens are added per RefillPeriod.
	RefillRate   float64
	RefillPeriod time.Duration

	// Behavior selects Reject or Queue on shortage.
	Behavior Behavior

	// MaxQueueWait bounds the total wait in Queue mode.
	MaxQueueWait time.Duration

	// EnableScoping maintains an independent bucket per key.
	EnableScoping bool

	// MaxScopedKeys caps the scoped-bucket map; beyond it the least
	// recently used buckets are evicted. Zero means unbounded.
	MaxScopedKeys int
}

// Decision is the outcome of an Acquire call.
type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

// Statistics is a point-in-time snapshot of limiter state.
type Statistics struct {
	AvailablePermits float64
	Capacity         float64
	RefillPerSecond  float64
	Acquired         uint64
	Throttled        uint64
	ThrottleRate     float64
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

// Limiter meters operations against a continually refilled reservoir.
// Safe for concurrent use; token accounting is exact, all mutation happens
// inside a bucket-local lock.
type Limiter struct {
	opts          Options
	perSec        float64
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	defaultBucket *bucket

	mu     sync.Mutex
	scoped map[string]*bucket

	acquired  atomic.Uint64
	throttled atomic.Uint64
}

// New creates a Limiter from options.
func New(opts Options) (*Limiter, error) {
	if opts.Capacity <= 0 || opts.RefillRate <= 0 || opts.RefillPeriod <= 0 {
		return nil, ErrInvalidOptions
	}
	l := &Limiter{
		opts:   opts,
		perSec: opts.RefillRate / opts.RefillPeriod.Seconds(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	l.defaultBucket = l.newBucket()
	if opts.EnableScoping {
		l.scoped = make(map[string]*bucket)
	}
	return l, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) newBucket() *bucket {
	now := l.now()
	return &bucket{
		tokens:     l.opts.Capacity,
		lastRefill: now,
		lastAccess: now,
	}
}

// Acquire takes permits tokens from the bucket selected by key (the default
// bucket when scoping is disabled or key is empty). In Queue mode it waits
// up to MaxQueueWait, honoring context cancellation.
func (l *Limiter) Acquire(ctx context.Context, key string, permits int) (Decision, error) {
	if permits <= 0 {
		permits = 1
	}
	if float64(permits) > l.opts.Capacity {
		return Decision{}, ErrTooManyPermits
	}

	b := l.bucketFor(key)
	deadline := l.now().Add(l.opts.MaxQueueWait)

	for {
		decision := l.tryAcquire(b, float64(permits))
		if decision.Allowed {
			l.acquired.Add(uint64(permits))
			return decision, nil
		}
		l.throttled.Add(1)

		if l.opts.Behavior == Reject {
			return decision, nil
		}

		wait := decision.RetryAfter
		if remaining := deadline.Sub(l.now()); wait > remaining {
			// The shortfall cannot refill inside the queue bound.
			return decision, nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return Decision{}, err
		}
	}
}

func (l *Limiter) tryAcquire(b *bucket, permits float64) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.lastAccess = now
	l.refillLocked(b, now)

	if b.tokens >= permits {
		b.tokens -= permits
		return Decision{Allowed: true, Remaining: b.tokens}
	}

	short := permits - b.tokens
	return Decision{
		Remaining:  b.tokens,
		RetryAfter: time.Duration(short / l.perSec * float64(time.Second)),
	}
}

func (l *Limiter) refillLocked(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * l.perSec
	if b.tokens > l.opts.Capacity {
		b.tokens = l.opts.Capacity
	}
	b.lastRefill = now
}

func (l *Limiter) bucketFor(key string) *bucket {
	if !l.opts.EnableScoping || key == "" {
		return l.defaultBucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.scoped[key]; ok {
		return b
	}
	if l.opts.MaxScopedKeys > 0 && len(l.scoped) >= l.opts.MaxScopedKeys {
		l.evictOldestLocked()
	}
	b := l.newBucket()
	l.scoped[key] = b
	return b
}

// evictOldestLocked drops the least recently used scoped bucket. The scan is
// linear; the scope cap keeps it bounded.
func (l *Limiter) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, b := range l.scoped {
		b.mu.Lock()
		at := b.lastAccess
		b.mu.Unlock()
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey, oldestAt = key, at
		}
	}
	delete(l.scoped, oldestKey)
}

// ScopedKeys returns the current number of scoped buckets.
func (l *Limiter) ScopedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.scoped)
}

// Statistics returns a point-in-time snapshot of the default bucket and the
// acquisition counters.
func (l *Limiter) Statistics() Statistics {
	l.defaultBucket.mu.Lock()
	l.refillLocked(l.defaultBucket, l.now())
	available := l.defaultBucket.tokens
	l.defaultBucket.mu.Unlock()

	acquired := l.acquired.Load()
	throttled := l.throttled.Load()
	var rate float64
	if total := acquired + throttled; total > 0 {
		rate = float64(throttled) / float64(total)
	}

	return Statistics{
		AvailablePermits: available,
		Capacity:         l.opts.Capacity,
		RefillPerSecond:  l.perSec,
		Acquired:         acquired,
		Throttled:        throttled,
		ThrottleRate:     rate,
	}
}
