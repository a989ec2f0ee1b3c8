package scheduler

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/heromessaging/heromessaging-go/pkg/messaging"
)

// MemoryStorage is the in-memory Storage used by default wiring and tests.
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemoryStorage creates an empty in-memory scheduler storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

func (s *MemoryStorage) Add(ctx context.Context, msg messaging.Message, deliverAt time.Time, opts Options) (*Entry, error) {
	if msg == nil {
		return nil, messaging.ErrNilMessage
	}
	if messaging.ExpectsReply(msg) {
		return nil, ErrUnschedulableMessage
	}
	if deliverAt.Before(s.now()) {
		return nil, ErrPastDeliverAt
	}

	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:               id.String(),
		Message:          msg,
		DeliverAt:        deliverAt,
		Priority:         opts.Priority,
		Status:           StatusPending,
		CreatedAt:        s.now().UTC(),
		SkipIfPastDue:    opts.SkipIfPastDue,
		PastDueTolerance: opts.PastDueTolerance,
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	clone := *entry
	return &clone, nil
}

func (s *MemoryStorage) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*Entry, 0, limit)
	for _, e := range s.entries {
		if e.Status == StatusPending && !e.DeliverAt.After(now) {
			due = append(due, e)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].DeliverAt.Equal(due[j].DeliverAt) {
			return due[i].DeliverAt.Before(due[j].DeliverAt)
		}
		return due[i].Priority > due[j].Priority
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*Entry, 0, len(due))
	for _, e := range due {
		e.Status = StatusDelivering
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStorage) MarkDelivered(ctx context.Context, id string) error {
	return s.transition(id, StatusDelivered, "")
}

func (s *MemoryStorage) MarkFailed(ctx context.Context, id string, cause error) error {
	return s.transition(id, StatusFailed, cause.Error())
}

func (s *MemoryStorage) transition(id string, to Status, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Status = to
	e.LastError = lastError
	return nil
}

func (s *MemoryStorage) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	switch e.Status {
	case StatusPending:
		e.Status = StatusCancelled
		return nil
	case StatusCancelled:
		return nil
	default:
		return ErrNotCancellable
	}
}

func (s *MemoryStorage) Entry(ctx context.Context, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (s *MemoryStorage) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.entries {
		if e.Status == StatusPending {
			count++
		}
	}
	return count, nil
}
