// Package correlation propagates workflow correlation across logical flows.
//
// A scope is carried on the context.Context, so nesting and restoration on
// exit follow naturally from context derivation: entering a message derives a
// child context, and the parent scope is still reachable from the parent
// context.
package correlation

import (
	"context"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

type scopeKey struct{}

// Scope is the ambient correlation state for one logical flow: the workflow
// identifier and the id of the message currently being processed.
type Scope struct {
	CorrelationID string
	MessageID     string
}

// FromContext returns the ambient scope, if any.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// Enter derives a context scoped to msg. The new scope keeps msg's
// correlation id (falling back to the enclosing scope's) and records msg's id
// so that messages produced inside the scope are caused by msg.
func Enter(ctx context.Context, msg messaging.Message) context.Context {
	s := Scope{
		CorrelationID: msg.CorrelationID(),
		MessageID:     msg.MessageID().String(),
	}
	if s.CorrelationID == "" {
		if parent, ok := FromContext(ctx); ok {
			s.CorrelationID = parent.CorrelationID
		}
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

// EnterNew derives a context with an explicit correlation id and no causing
// message. Used at the edge of a workflow.
func EnterNew(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, Scope{CorrelationID: correlationID})
}

// Apply stamps msg with the ambient scope: correlation id from the scope,
// causation id from the scope's message. Without an ambient scope the message
// is returned unchanged. The message id is always preserved.
func Apply(ctx context.Context, msg messaging.Message) messaging.Message {
	s, ok := FromContext(ctx)
	if !ok {
		return msg
	}
	return messaging.WithCorrelation(msg, s.CorrelationID, s.MessageID)
}
