// Package queue implements in-process work queuing with visibility
// timeouts: enqueued messages are leased to consumers, acknowledged on
// success and redelivered on failure or consumer death.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// ErrNotFound is returned when an entry id is unknown.
var ErrNotFound = errors.New("queue entry not found")

// Entry is one queued message.
type Entry struct {
	ID         string
	Message    messaging.Message
	Priority   int
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
	// VisibleAt delays initial delivery and spaces redeliveries. An
	// in-flight entry's VisibleAt is its lease expiry.
	VisibleAt time.Time
}

// EnqueueOptions configures one enqueued message.
type EnqueueOptions struct {
	// Priority orders delivery; higher first.
	Priority int

	// Delay postpones the first delivery.
	Delay time.Duration
}

// Store is the queue persistence contract. Dequeue must lease atomically:
// an entry is invisible to other consumers until acked, nacked or its
// visibility timeout lapses.
type Store interface {
	// Enqueue adds msg to the queue.
	Enqueue(ctx context.Context, msg messaging.Message, opts EnqueueOptions) (*Entry, error)

	// Dequeue leases up to limit visible entries for visibility, highest
	// priority first and oldest first within a priority.
	Dequeue(ctx context.Context, limit int, visibility time.Duration) ([]*Entry, error)

	// Ack removes a delivered entry.
	Ack(ctx context.Context, id string) error

	// Nack returns an entry to the queue, visible again after delay.
	Nack(ctx context.Context, id string, cause error, delay time.Duration) error

	// Depth returns the number of entries in the queue, leased included.
	Depth(ctx context.Context) (int, error)
}

// Sender routes dequeued messages onward. Satisfied by the dispatcher.
type Sender interface {
	Send(ctx context.Context, msg messaging.Message) (any, error)
	Publish(ctx context.Context, msg messaging.Message) error
}
