// Package inbox implements exactly-once intake for externally received
// messages: a uniqueness guard on the message id filters redeliveries before
// the message is handed to the dispatcher.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
	"github.com/heromessaging/heromessaging-go/pkg/pipeline"
)

// Status is the lifecycle state of an inbox entry.
type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when a message id is unknown.
var ErrNotFound = errors.New("inbox entry not found")

// Entry records one received message.
type Entry struct {
	MessageID   string
	MessageType string
	Message     messaging.Message
	Source      string
	Status      Status
	LastError   string
	ReceivedAt  time.Time
	ProcessedAt time.Time
}

// Store is the inbox persistence contract. TryAdd is the dedup point: it
// must behave like an insert under a unique constraint on the message id.
type Store interface {
	// TryAdd records msg once. It returns false without error when the
	// message id was seen before.
	TryAdd(ctx context.Context, msg messaging.Message, source string) (bool, error)

	// MarkProcessed finalizes a handled entry.
	MarkProcessed(ctx context.Context, messageID string) error

	// MarkFailed records a handling failure.
	MarkFailed(ctx context.Context, messageID string, cause error) error

	// Entry returns the entry for a message id.
	Entry(ctx context.Context, messageID string) (*Entry, error)

	// CleanupOlderThan removes processed entries older than age and
	// returns how many.
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Sender dispatches deduplicated messages onward. Satisfied by the
// dispatcher.
type Sender interface {
	Send(ctx context.Context, msg messaging.Message) (any, error)
	Publish(ctx context.Context, msg messaging.Message) error
}

// Processor is the inbox intake: dedup, dispatch, and status bookkeeping
// inside one unit of work, so the dedup record and the handler's effects
// commit together.
type Processor struct {
	store  Store
	sender Sender
	uow    pipeline.UnitOfWork
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithUnitOfWork wraps intake and dispatch in uow.
func WithUnitOfWork(uow pipeline.UnitOfWork) ProcessorOption {
	return func(p *Processor) { p.uow = uow }
}

// NewProcessor creates an inbox processor delivering through sender.
func NewProcessor(store Store, sender Sender, opts ...ProcessorOption) *Processor {
	p := &Processor{store: store, sender: sender, uow: pipeline.NopUnitOfWork{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result reports what happened to one incoming message.
type Result struct {
	// Duplicate is true when the message was dropped as a redelivery.
	Duplicate bool

	// Response carries the handler response for commands and queries.
	Response any
}

// Process ingests one message: duplicates are dropped, fresh messages are
// dispatched by kind and their outcome recorded.
func (p *Processor) Process(ctx context.Context, msg messaging.Message, source string) (Result, error) {
	if msg == nil {
		return Result{}, messaging.ErrNilMessage
	}

	var result Result
	err := p.uow.Do(ctx, func(txCtx context.Context) error {
		added, err := p.store.TryAdd(txCtx, msg, source)
		if err != nil {
			return fmt.Errorf("inbox add: %w", err)
		}
		if !added {
			result.Duplicate = true
			return nil
		}

		messageID := msg.MessageID().String()
		response, dispatchErr := p.dispatch(txCtx, msg)
		if dispatchErr != nil {
			if markErr := p.store.MarkFailed(txCtx, messageID, dispatchErr); markErr != nil {
				return errors.Join(dispatchErr, markErr)
			}
			return dispatchErr
		}

		result.Response = response
		return p.store.MarkProcessed(txCtx, messageID)
	})
	return result, err
}

func (p *Processor) dispatch(ctx context.Context, msg messaging.Message) (any, error) {
	if msg.MessageKind() == messaging.KindEvent {
		return nil, p.sender.Publish(ctx, msg)
	}
	return p.sender.Send(ctx, msg)
}

// MemoryStore is the in-memory Store used by default wiring and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory inbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) TryAdd(ctx context.Context, msg messaging.Message, source string) (bool, error) {
	if msg == nil {
		return false, messaging.ErrNilMessage
	}
	id := msg.MessageID().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return false, nil
	}
	s.entries[id] = &Entry{
		MessageID:   id,
		MessageType: msg.MessageType(),
		Message:     msg,
		Source:      source,
		Status:      StatusReceived,
		ReceivedAt:  s.now().UTC(),
	}
	return true, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[messageID]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusProcessed
	e.ProcessedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, messageID string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[messageID]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusFailed
	e.LastError = cause.Error()
	return nil
}

func (s *MemoryStore) Entry(ctx context.Context, messageID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (s *MemoryStore) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if e.Status == StatusProcessed && e.ProcessedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}
