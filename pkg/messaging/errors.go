package messaging

import "errors"

var (
	// ErrNilMessage is returned when a nil message is dispatched.
	ErrNilMessage = errors.New("message cannot be nil")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrEmptyMessageType is returned when a message type token is empty.
	ErrEmptyMessageType = errors.New("message type cannot be empty")

	// ErrHandlerAlreadyRegistered is returned when an event handler is
	// registered twice for the same message type.
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")

	// ErrNoHandler is returned when no handler is registered for a
	// command or query message type.
	ErrNoHandler = errors.New("no handler registered for message type")

	// ErrPayloadType is returned when a typed handler receives a message
	// of an unexpected concrete type.
	ErrPayloadType = errors.New("unexpected message payload type")
)
