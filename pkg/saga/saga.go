// Package saga persists long-running workflow state keyed by correlation id,
// with optimistic concurrency on a monotonic version.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when no saga exists for a correlation id.
var ErrNotFound = errors.New("saga not found")

// Saga is one workflow instance. Version increments on every successful
// save; a stale version loses the write.
type Saga struct {
	CorrelationID string
	CurrentState  string
	Data          map[string]any
	IsCompleted   bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New creates a fresh saga in state.
func New(correlationID, state string) *Saga {
	return &Saga{
		CorrelationID: correlationID,
		CurrentState:  state,
		Data:          make(map[string]any),
	}
}

// ConcurrencyConflictError reports a lost optimistic-concurrency race.
type ConcurrencyConflictError struct {
	CorrelationID string
	Expected      int64
	Actual        int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("saga %q: version conflict: expected %d, stored %d",
		e.CorrelationID, e.Expected, e.Actual)
}

// Repository is the saga persistence contract. Save must be compare-and-swap
// on Version: concurrent writers of the same saga see exactly one winner.
type Repository interface {
	// Save persists the saga when its Version matches the stored one,
	// then increments Version. A new saga must carry Version 0.
	Save(ctx context.Context, s *Saga) error

	// Find returns the saga for a correlation id.
	Find(ctx context.Context, correlationID string) (*Saga, error)

	// FindByState returns all sagas currently in state.
	FindByState(ctx context.Context, state string) ([]*Saga, error)

	// FindStale returns incomplete sagas not updated since cutoff.
	FindStale(ctx context.Context, cutoff time.Time) ([]*Saga, error)

	// Delete removes a saga. Deleting an unknown saga is an error.
	Delete(ctx context.Context, correlationID string) error
}

// MemoryRepository is the in-memory Repository used by default wiring and
// tests.
type MemoryRepository struct {
	mu    sync.Mutex
	sagas map[string]*Saga
	now   func() time.Time
}

// NewMemoryRepository creates an empty in-memory saga repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sagas: make(map[string]*Saga),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Save(ctx context.Context, s *Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	stored, exists := r.sagas[s.CorrelationID]

	if exists {
		if stored.Version != s.Version {
			return &ConcurrencyConflictError{
				CorrelationID: s.CorrelationID,
				Expected:      s.Version,
				Actual:        stored.Version,
			}
		}
	} else if s.Version != 0 {
		return &ConcurrencyConflictError{
			CorrelationID: s.CorrelationID,
			Expected:      s.Version,
			Actual:        0,
		}
	}

	s.Version++
	s.UpdatedAt = now
	if !exists {
		s.CreatedAt = now
	} else {
		s.CreatedAt = stored.CreatedAt
	}

	clone := cloneSaga(s)
	r.sagas[s.CorrelationID] = clone
	return nil
}

func (r *MemoryRepository) Find(ctx context.Context, correlationID string) (*Saga, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sagas[correlationID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSaga(stored), nil
}

func (r *MemoryRepository) FindByState(ctx context.Context, state string) ([]*Saga, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Saga
	for _, s := range r.sagas {
		if s.CurrentState == state {
			out = append(out, cloneSaga(s))
		}
	}
	return out, nil
}

func (r *MemoryRepository) FindStale(ctx context.Context, cutoff time.Time) ([]*Saga, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Saga
	for _, s := range r.sagas {
		if !s.IsCompleted && s.UpdatedAt.Before(cutoff) {
			out = append(out, cloneSaga(s))
		}
	}
	return out, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, correlationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sagas[correlationID]; !ok {
		return ErrNotFound
	}
	delete(r.sagas, correlationID)
	return nil
}

func cloneSaga(s *Saga) *Saga {
	clone := *s
	clone.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		clone.Data[k] = v
	}
	return &clone
}
