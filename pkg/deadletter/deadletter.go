// Package deadletter provides the terminal holding area for messages that
// exceeded retry budgets or violated invariants, with operational statistics.
package deadletter

import (
	"context"
	"crypto/rand"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// Status tracks what happened to a dead-lettered entry.
type Status string

const (
	// StatusActive means the entry awaits operator action.
	StatusActive Status = "active"

	// StatusRetried means the entry was re-queued by an operator.
	StatusRetried Status = "retried"

	// StatusDiscarded means the entry was dropped by an operator.
	StatusDiscarded Status = "discarded"
)

// ErrNotFound is returned when an entry id is unknown.
var ErrNotFound = errors.New("dead letter entry not found")

// Entry records one dead-lettered message.
type Entry struct {
	ID         string
	Message    messaging.Message
	Reason     string
	Component  string
	RetryCount int
	CreatedAt  time.Time
	Status     Status
}

// Statistics summarizes the store for dashboards.
type Statistics struct {
	ByStatus    map[Status]int
	ByComponent map[string]int
	ByReason    map[string]int
	Oldest      time.Time
	Newest      time.Time
}

// Store is the dead-letter contract the dispatcher and processors consume.
// Implementations must be safe for concurrent use.
type Store interface {
	// Send records msg as a dead letter with the failure context.
	Send(ctx context.Context, msg messaging.Message, reason, component string, retryCount int) (*Entry, error)

	// Active returns active entries, newest first, up to limit.
	Active(ctx context.Context, limit int) ([]*Entry, error)

	// Retry marks an entry retried and returns it so the caller can
	// re-dispatch the message.
	Retry(ctx context.Context, id string) (*Entry, error)

	// Discard marks an entry discarded.
	Discard(ctx context.Context, id string) error

	// Count returns the number of active entries.
	Count(ctx context.Context) (int, error)

	// Statistics returns a point-in-time summary.
	Statistics(ctx context.Context) (Statistics, error)
}

// reasonTruncateLen bounds reason cardinality in statistics.
const reasonTruncateLen = 80

// MemoryStore is the in-memory Store used by default wiring and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// NewMemoryStore creates an empty in-memory dead-letter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Send(ctx context.Context, msg messaging.Message, reason, component string, retryCount int) (*Entry, error) {
	if msg == nil {
		return nil, messaging.ErrNilMessage
	}

	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:         id.String(),
		Message:    msg,
		Reason:     reason,
		Component:  component,
		RetryCount: retryCount,
		CreatedAt:  time.Now().UTC(),
		Status:     StatusActive,
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	s.mu.Unlock()

	return entry, nil
}

func (s *MemoryStore) Active(ctx context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, limit)
	for _, id := range s.order {
		if e := s.entries[id]; e.Status == StatusActive {
			out = append(out, e)
		}
	}
	// Newest first; ULIDs are time-ordered but sort on CreatedAt to be
	// explicit.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Retry(ctx context.Context, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	entry.Status = StatusRetried
	return entry, nil
}

func (s *MemoryStore) Discard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	entry.Status = StatusDiscarded
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if e.Status == StatusActive {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Statistics(ctx context.Context) (Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Statistics{
		ByStatus:    make(map[Status]int),
		ByComponent: make(map[string]int),
		ByReason:    make(map[string]int),
	}
	for _, e := range s.entries {
		stats.ByStatus[e.Status]++
		stats.ByComponent[e.Component]++

		reason := e.Reason
		if len(reason) > reasonTruncateLen {
			reason = reason[:reasonTruncateLen]
		}
		stats.ByReason[reason]++

		if stats.Oldest.IsZero() || e.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = e.CreatedAt
		}
		if e.CreatedAt.After(stats.Newest) {
			stats.Newest = e.CreatedAt
		}
	}
	return stats, nil
}
