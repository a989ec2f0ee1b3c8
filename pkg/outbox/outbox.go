// Package outbox implements the transactional outbox: messages are staged
// durably alongside business state and relayed to the transport by a worker,
// with leases guarding against double delivery.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// Status is the lifecycle state of an outbox entry.
type Status string

const (
	// StatusPending means the entry awaits delivery.
	StatusPending Status = "pending"

	// StatusProcessing means a worker holds a lease on the entry.
	StatusProcessing Status = "processing"

	// StatusProcessed means the entry was delivered.
	StatusProcessed Status = "processed"

	// StatusFailed means delivery exhausted its retry budget.
	StatusFailed Status = "failed"
)

// ErrNotFound is returned when an entry id is unknown.
var ErrNotFound = errors.New("outbox entry not found")

// Entry is one staged message. The lease is stored in-row: an entry is
// claimable when it is pending, or when it is processing but its lease
// expired (a worker died mid-flight).
type Entry struct {
	ID             string
	Message        messaging.Message
	Destination    string
	Priority       int
	Status         Status
	RetryCount     int
	MaxRetries     int
	RetryDelay     time.Duration
	LastError      string
	CreatedAt      time.Time
	NextRetryAt    time.Time
	LeaseExpiresAt time.Time
	ProcessedAt    time.Time
}

// Options configures one staged message.
type Options struct {
	// Destination names the transport target.
	Destination string

	// Priority orders delivery; higher is delivered first.
	Priority int

	// MaxRetries caps redelivery attempts for this entry. Zero falls back
	// to the worker's policy budget.
	MaxRetries int

	// RetryDelay spaces redeliveries of this entry. Zero falls back to
	// the worker's policy schedule.
	RetryDelay time.Duration
}

// Store is the outbox persistence contract. Claim must be atomic: an entry
// is handed to exactly one worker per lease period.
type Store interface {
	// Add stages msg for delivery.
	Add(ctx context.Context, msg messaging.Message, opts Options) (*Entry, error)

	// Claim leases up to limit due entries, highest priority first and
	// oldest first within a priority. Claimed entries move to processing
	// with a lease of leaseFor.
	Claim(ctx context.Context, limit int, leaseFor time.Duration) ([]*Entry, error)

	// MarkProcessed finalizes a delivered entry.
	MarkProcessed(ctx context.Context, id string) error

	// MarkRetry returns a failed entry to pending, due again at nextRetryAt.
	MarkRetry(ctx context.Context, id string, cause error, nextRetryAt time.Time) error

	// MarkFailed finalizes an entry whose retry budget is exhausted.
	MarkFailed(ctx context.Context, id string, cause error) error

	// PendingCount returns the number of entries awaiting delivery.
	PendingCount(ctx context.Context) (int, error)
}

// Transport delivers a staged message to its destination.
type Transport interface {
	Publish(ctx context.Context, destination string, msg messaging.Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, destination string, msg messaging.Message) error

func (f TransportFunc) Publish(ctx context.Context, destination string, msg messaging.Message) error {
	return f(ctx, destination, msg)
}
