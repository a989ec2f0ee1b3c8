// Package idempotency provides exactly-once semantics through response
// caching keyed by a deterministic fingerprint, with TTL'd success and
// failure entries and a failure classifier deciding what is safe to cache.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// MaxKeyLength bounds idempotency keys so they fit indexed storage columns.
const MaxKeyLength = 450

var (
	// ErrKeyTooLong is returned when a generated key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length")

	// ErrEmptyKey is returned when a key generator produces an empty key.
	ErrEmptyKey = errors.New("idempotency key cannot be empty")
)

// Status is the lifecycle state of a cached response.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
	StatusProcessing Status = "processing"
)

// Response is the cached outcome for one idempotency key. Entries are
// shared-immutable after write until expiry.
type Response struct {
	Key            string
	Status         Status
	SuccessResult  any
	FailureKind    faults.Kind
	FailureMessage string
	StoredAt       time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the entry is past its expiry.
func (r *Response) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ReconstructFailure rebuilds the classified error a Failure entry was
// stored from. Callers compare failure kinds, not concrete types.
func (r *Response) ReconstructFailure() error {
	return faults.Reconstruct(r.FailureKind, r.FailureMessage)
}

// KeyGenerator derives the deterministic cache key for a message. Keys must
// be deterministic, globally unique across operations that deduplicate
// together, stable across deployments, and at most MaxKeyLength characters.
type KeyGenerator func(msg messaging.Message, pc *messaging.ProcessingContext) string

// DefaultKeyGenerator keys on the message id: "idempotency:{MessageId}".
func DefaultKeyGenerator(msg messaging.Message, _ *messaging.ProcessingContext) string {
	return "idempotency:" + msg.MessageID().String()
}

// Policy is the immutable idempotency configuration.
type Policy struct {
	// SuccessTTL bounds how long successful outcomes are replayed.
	SuccessTTL time.Duration

	// FailureTTL bounds how long deterministic failures are replayed.
	FailureTTL time.Duration

	// CacheFailures enables failure caching at all.
	CacheFailures bool

	// KeyGenerator derives the cache key.
	KeyGenerator KeyGenerator

	// IsIdempotentFailure reports whether a failure is deterministic and
	// will recur for the same input. Transient, cancellation, fatal and
	// unknown failures must never be cached.
	IsIdempotentFailure func(err error) bool
}

// DefaultPolicy returns the standard policy: 24h success TTL, 1h failure
// TTL, failures cached when the classifier marks them deterministic.
func DefaultPolicy() Policy {
	return Policy{
		SuccessTTL:          24 * time.Hour,
		FailureTTL:          time.Hour,
		CacheFailures:       true,
		KeyGenerator:        DefaultKeyGenerator,
		IsIdempotentFailure: DefaultClassifier,
	}
}

// DefaultClassifier caches deterministic failure kinds only: validation,
// invalid-operation, not-supported, format, unauthorized and not-found.
// Cancellation is classified before timeout, so a cancellation that also
// satisfies timeout interfaces is never cached.
func DefaultClassifier(err error) bool {
	return faults.IsDeterministic(faults.Classify(err))
}

// Store is the idempotency cache contract. Implementations must be safe for
// concurrent callers; storing for an existing key atomically replaces the
// entry (single writer wins).
type Store interface {
	// Get returns the unexpired entry for key, or nil. Implementations
	// may prune expired entries on access.
	Get(ctx context.Context, key string) (*Response, error)

	// StoreSuccess caches a successful result for ttl.
	StoreSuccess(ctx context.Context, key string, result any, ttl time.Duration) error

	// StoreFailure caches a classified failure for ttl.
	StoreFailure(ctx context.Context, key string, failure error, ttl time.Duration) error

	// StoreProcessing marks key as in flight for ttl, guarding against
	// crashed workers holding the key forever.
	StoreProcessing(ctx context.Context, key string, ttl time.Duration) error

	// Exists reports whether an unexpired entry exists for key.
	Exists(ctx context.Context, key string) (bool, error)

	// CleanupExpired removes expired entries and returns how many.
	CleanupExpired(ctx context.Context) (int, error)
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}
