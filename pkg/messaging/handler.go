package messaging

import (
	"context"
	"fmt"
)

// Handler processes a message of a single registered type. Command and query
// handlers return the response value (or nil); event handlers' return value
// is ignored.
//
// Handlers are never compared or used as map keys, so func-backed values
// like HandlerFunc and Typed are as good as pointer receivers. The registry
// identifies each registration by its Subscription id instead.
type Handler interface {
	Handle(ctx context.Context, msg Message, pc *ProcessingContext) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message, pc *ProcessingContext) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, msg Message, pc *ProcessingContext) (any, error) {
	return f(ctx, msg, pc)
}

// Typed adapts a strongly typed handler function to Handler. The concrete
// message is recovered through As, so correlation-decorated messages still
// reach the handler with their original payload.
func Typed[M Message](fn func(ctx context.Context, msg M, pc *ProcessingContext) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, msg Message, pc *ProcessingContext) (any, error) {
		m, ok := As[M](msg)
		if !ok {
			return nil, fmt.Errorf("%w: handler expects %T, got %T", ErrPayloadType, m, msg)
		}
		return fn(ctx, m, pc)
	})
}
