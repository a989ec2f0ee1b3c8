// Package messaging defines the message model shared by every subsystem:
// message identity and correlation, the command/query/event capability kinds,
// the per-dispatch processing context and result, and the handler registry.
package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Kind partitions messages into their three capability variants.
type Kind int

const (
	// KindCommand is an imperative message with exactly one handler and an
	// optional response.
	KindCommand Kind = iota + 1

	// KindQuery is a read-only message with exactly one handler that always
	// returns a response. Queries must be side-effect-free and idempotent.
	KindQuery

	// KindEvent is a broadcast message delivered to every registered handler.
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Message is the contract every dispatched message satisfies.
//
// MessageID is immutable once assigned: any "with correlation" operation
// returns a value carrying the same id. MessageType is the stable token used
// for handler lookup; it must be unique per message type and stable across
// deployments.
type Message interface {
	// MessageID returns the unique identity of this message.
	MessageID() uuid.UUID

	// MessageType returns the stable type token used for handler lookup,
	// e.g. "orders.create".
	MessageType() string

	// MessageKind returns the capability variant of this message.
	MessageKind() Kind

	// OccurredAt returns the UTC instant the message was created.
	// Timestamps are monotonic per producer, not globally.
	OccurredAt() time.Time

	// CorrelationID returns the workflow identifier, or "" if unset.
	CorrelationID() string

	// CausationID returns the parent message's id, or "" if unset.
	CausationID() string

	// Metadata returns the free-form metadata mapping. May be nil.
	Metadata() map[string]any
}

// Replier is implemented by commands that return a value to the caller.
// Queries always reply; plain commands and events never do.
type Replier interface {
	ExpectsReply() bool
}

// Base carries the identity and correlation fields common to all messages.
// User message types embed one of CommandBase, QueryBase or EventBase and
// implement MessageType themselves.
type Base struct {
	ID          uuid.UUID
	At          time.Time
	Correlation string
	Causation   string
	Meta        map[string]any
}

// NewBase creates a Base with a fresh message id and the current UTC time.
func NewBase() Base {
	return Base{
		ID: uuid.New(),
		At: time.Now().UTC(),
	}
}

func (b Base) MessageID() uuid.UUID     { return b.ID }
func (b Base) OccurredAt() time.Time    { return b.At }
func (b Base) CorrelationID() string    { return b.Correlation }
func (b Base) CausationID() string      { return b.Causation }
func (b Base) Metadata() map[string]any { return b.Meta }

// CommandBase marks an embedding type as a command.
type CommandBase struct{ Base }

// NewCommandBase creates a CommandBase with a fresh id.
func NewCommandBase() CommandBase { return CommandBase{Base: NewBase()} }

func (CommandBase) MessageKind() Kind { return KindCommand }

// ExpectsReply reports whether the command returns a value. Commands that do
// shadow this method and return true.
func (CommandBase) ExpectsReply() bool { return false }

// QueryBase marks an embedding type as a query.
type QueryBase struct{ Base }

// NewQueryBase creates a QueryBase with a fresh id.
func NewQueryBase() QueryBase { return QueryBase{Base: NewBase()} }

func (QueryBase) MessageKind() Kind  { return KindQuery }
func (QueryBase) ExpectsReply() bool { return true }

// EventBase marks an embedding type as an event.
type EventBase struct{ Base }

// NewEventBase creates an EventBase with a fresh id.
func NewEventBase() EventBase { return EventBase{Base: NewBase()} }

func (EventBase) MessageKind() Kind  { return KindEvent }
func (EventBase) ExpectsReply() bool { return false }

// ExpectsReply reports whether msg returns a value to its caller.
// Queries always do; commands only when they implement Replier accordingly.
func ExpectsReply(msg Message) bool {
	if msg.MessageKind() == KindQuery {
		return true
	}
	if r, ok := msg.(Replier); ok {
		return r.ExpectsReply()
	}
	return false
}
