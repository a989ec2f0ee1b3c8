package messaging

import (
	"fmt"
	"sync"
)

// Subscription identifies one registration in a Registry. Handlers are plain
// interface values and frequently wrap funcs, which are not comparable, so
// removal and caching go through the subscription id instead of the handler.
type Subscription uint64

// Registration pairs a handler with its registry-assigned subscription id.
type Registration struct {
	Sub     Subscription
	Handler Handler
}

// Registry binds message type tokens to handlers. Commands and queries get
// exactly one handler each; events get any number. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	nextSub  Subscription
	commands map[string]Registration
	queries  map[string]Registration
	events   map[string][]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Registration),
		queries:  make(map[string]Registration),
		events:   make(map[string][]Registration),
	}
}

// RegisterCommand binds the single handler for a command type. Registering a
// second handler for the same type is an error.
func (r *Registry) RegisterCommand(messageType string, handler Handler) error {
	return r.registerSingle(r.commands, "command", messageType, handler)
}

// RegisterQuery binds the single handler for a query type.
func (r *Registry) RegisterQuery(messageType string, handler Handler) error {
	return r.registerSingle(r.queries, "query", messageType, handler)
}

func (r *Registry) registerSingle(m map[string]Registration, kind, messageType string, handler Handler) error {
	if messageType == "" {
		return ErrEmptyMessageType
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := m[messageType]; exists {
		return fmt.Errorf("%w: %s %q", ErrHandlerAlreadyRegistered, kind, messageType)
	}
	r.nextSub++
	m[messageType] = Registration{Sub: r.nextSub, Handler: handler}
	return nil
}

// RegisterEvent adds a handler for an event type and returns the subscription
// id that removes it again. Any number of handlers may subscribe to one type;
// subscribing the same handler twice yields two deliveries per event.
func (r *Registry) RegisterEvent(messageType string, handler Handler) (Subscription, error) {
	if messageType == "" {
		return 0, ErrEmptyMessageType
	}
	if handler == nil {
		return 0, ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSub++
	r.events[messageType] = append(r.events[messageType], Registration{Sub: r.nextSub, Handler: handler})
	return r.nextSub, nil
}

// CommandHandler returns the registration for a command type.
func (r *Registry) CommandHandler(messageType string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.commands[messageType]
	return reg, ok
}

// QueryHandler returns the registration for a query type.
func (r *Registry) QueryHandler(messageType string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.queries[messageType]
	return reg, ok
}

// EventHandlers returns a copy of the registration set for an event type, so
// callers never iterate under the registry lock.
func (r *Registry) EventHandlers(messageType string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs, ok := r.events[messageType]
	if !ok {
		return nil
	}
	out := make([]Registration, len(regs))
	copy(out, regs)
	return out
}

// RemoveEvent unregisters the event subscription with the given id. Removing
// an unknown subscription is a no-op.
func (r *Registry) RemoveEvent(messageType string, sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs, ok := r.events[messageType]
	if !ok {
		return
	}

	for i, reg := range regs {
		if reg.Sub == sub {
			next := append(regs[:i:i], regs[i+1:]...)
			if len(next) == 0 {
				delete(r.events, messageType)
			} else {
				r.events[messageType] = next
			}
			return
		}
	}
}

// Clear removes every registered handler.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = make(map[string]Registration)
	r.queries = make(map[string]Registration)
	r.events = make(map[string][]Registration)
}
