package outbox

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// MemoryStore is the in-memory Store used by default wiring and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory outbox store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Add(ctx context.Context, msg messaging.Message, opts Options) (*Entry, error) {
	if msg == nil {
		return nil, messaging.ErrNilMessage
	}

	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:          id.String(),
		Message:     msg,
		Destination: opts.Destination,
		Priority:    opts.Priority,
		MaxRetries:  opts.MaxRetries,
		RetryDelay:  opts.RetryDelay,
		Status:      StatusPending,
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()
	return entry, nil
}

func (s *MemoryStore) Claim(ctx context.Context, limit int, leaseFor time.Duration) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	due := make([]*Entry, 0, limit)
	for _, e := range s.entries {
		if s.claimable(e, now) {
			due = append(due, e)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*Entry, 0, len(due))
	for _, e := range due {
		e.Status = StatusProcessing
		e.LeaseExpiresAt = now.Add(leaseFor)
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) claimable(e *Entry, now time.Time) bool {
	switch e.Status {
	case StatusPending:
		return e.NextRetryAt.IsZero() || !now.Before(e.NextRetryAt)
	case StatusProcessing:
		return now.After(e.LeaseExpiresAt)
	default:
		return false
	}
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusProcessed
	e.ProcessedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) MarkRetry(ctx context.Context, id string, cause error, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusPending
	e.RetryCount++
	e.LastError = cause.Error()
	e.NextRetryAt = nextRetryAt
	e.LeaseExpiresAt = time.Time{}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = StatusFailed
	e.LastError = cause.Error()
	return nil
}

func (s *MemoryStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.entries {
		if e.Status == StatusPending || e.Status == StatusProcessing {
			count++
		}
	}
	return count, nil
}

// Entry returns a snapshot of one entry, for tests and inspection.
func (s *MemoryStore) Entry(id string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	clone := *e
	return &clone, true
}
