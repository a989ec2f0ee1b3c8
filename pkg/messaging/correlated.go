package messaging

import (
	"time"

	"github.com/google/uuid"
)

// correlated decorates a message with replacement correlation fields while
// delegating everything else, so the original MessageID is preserved.
type correlated struct {
	inner         Message
	correlationID string
	causationID   string
}

func (c correlated) MessageID() uuid.UUID     { return c.inner.MessageID() }
func (c correlated) MessageType() string      { return c.inner.MessageType() }
func (c correlated) MessageKind() Kind        { return c.inner.MessageKind() }
func (c correlated) OccurredAt() time.Time    { return c.inner.OccurredAt() }
func (c correlated) CorrelationID() string    { return c.correlationID }
func (c correlated) CausationID() string      { return c.causationID }
func (c correlated) Metadata() map[string]any { return c.inner.Metadata() }

func (c correlated) ExpectsReply() bool { return ExpectsReply(c.inner) }

// Unwrap exposes the decorated message for As.
func (c correlated) Unwrap() Message { return c.inner }

// WithCorrelation returns a copy of msg with the correlation and causation
// identifiers replaced. The returned message reports the same MessageID.
// An empty causationID leaves the original causation untouched.
func WithCorrelation(msg Message, correlationID, causationID string) Message {
	if causationID == "" {
		causationID = msg.CausationID()
	}
	return correlated{
		inner:         msg,
		correlationID: correlationID,
		causationID:   causationID,
	}
}

// Unwrapped strips all decorators and returns the original payload message.
func Unwrapped(msg Message) Message {
	for {
		u, ok := msg.(interface{ Unwrap() Message })
		if !ok {
			return msg
		}
		msg = u.Unwrap()
	}
}

// As unwraps msg until it finds a value of type M. It is how typed handlers
// recover their concrete message from a correlation-decorated value.
func As[M Message](msg Message) (M, bool) {
	for {
		if m, ok := msg.(M); ok {
			return m, true
		}
		u, ok := msg.(interface{ Unwrap() Message })
		if !ok {
			var zero M
			return zero, false
		}
		msg = u.Unwrap()
	}
}
