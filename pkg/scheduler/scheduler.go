// Package scheduler delivers messages at a future instant: entries are
// staged with a deliver-at time and a poll loop routes due entries to the
// dispatcher, commands by send and events by publish.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// Status is the lifecycle state of a scheduled entry.
type Status string

const (
	// StatusPending means the entry waits for its deliver-at time.
	StatusPending Status = "pending"

	// StatusDelivering means a worker picked the entry up.
	StatusDelivering Status = "delivering"

	// StatusDelivered means the entry was dispatched.
	StatusDelivered Status = "delivered"

	// StatusCancelled means the entry was cancelled before delivery.
	StatusCancelled Status = "cancelled"

	// StatusFailed means dispatch failed or the entry was past due.
	StatusFailed Status = "failed"
)

var (
	// ErrNotFound is returned when an entry id is unknown.
	ErrNotFound = errors.New("scheduled entry not found")

	// ErrUnschedulableMessage is returned when a reply-expecting message
	// is scheduled. There is no caller left to receive the reply when it
	// eventually runs.
	ErrUnschedulableMessage = errors.New("reply-expecting messages cannot be scheduled")

	// ErrPastDeliverAt is returned when the requested time is in the past.
	ErrPastDeliverAt = errors.New("deliver-at time is in the past")
)

// Entry is one scheduled message. The past-due policy is stored with the
// entry so the worker honors it without a second lookup.
type Entry struct {
	ID               string
	Message          messaging.Message
	DeliverAt        time.Time
	Priority         int
	Status           Status
	LastError        string
	CreatedAt        time.Time
	SkipIfPastDue    bool
	PastDueTolerance time.Duration
}

// Options configures one scheduling request.
type Options struct {
	// Priority breaks ties between entries due at the same instant;
	// higher first.
	Priority int

	// SkipIfPastDue fails the entry instead of delivering it when the
	// worker finds it later than PastDueTolerance after its time.
	SkipIfPastDue    bool
	PastDueTolerance time.Duration
}

// Storage is the scheduler persistence contract. ClaimDue must hand each
// entry to exactly one worker: the pending-to-delivering transition is
// atomic.
type Storage interface {
	// Add stages msg for delivery at deliverAt.
	Add(ctx context.Context, msg messaging.Message, deliverAt time.Time, opts Options) (*Entry, error)

	// ClaimDue atomically moves up to limit due pending entries to
	// delivering and returns them, earliest deliver-at first, highest
	// priority first among equals.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Entry, error)

	// MarkDelivered finalizes a dispatched entry.
	MarkDelivered(ctx context.Context, id string) error

	// MarkFailed finalizes an entry that could not be dispatched.
	MarkFailed(ctx context.Context, id string, cause error) error

	// Cancel cancels a pending entry. Cancelling an already cancelled
	// entry is a no-op; an entry that is delivering or delivered is past
	// the point of cancellation.
	Cancel(ctx context.Context, id string) error

	// Entry returns one entry by id.
	Entry(ctx context.Context, id string) (*Entry, error)

	// PendingCount returns the number of entries awaiting delivery.
	PendingCount(ctx context.Context) (int, error)
}

// ErrNotCancellable is returned by Cancel for entries already picked up.
var ErrNotCancellable = errors.New("entry is no longer cancellable")

// Sender routes due messages onward. Satisfied by the dispatcher.
type Sender interface {
	Send(ctx context.Context, msg messaging.Message) (any, error)
	Publish(ctx context.Context, msg messaging.Message) error
}
