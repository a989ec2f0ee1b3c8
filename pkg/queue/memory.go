package queue

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
	leased  map[string]bool
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory queue store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		leased:  make(map[string]bool),
		now:     time.Now,
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, msg messaging.Message, opts EnqueueOptions) (*Entry, error) {
	if msg == nil {
		return nil, messaging.ErrNilMessage
	}

	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &Entry{
		ID:         id.String(),
		Message:    msg,
		Priority:   opts.Priority,
		EnqueuedAt: now.UTC(),
		VisibleAt:  now.Add(opts.Delay),
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	clone := *entry
	return &clone, nil
}

func (s *MemoryStore) Dequeue(ctx context.Context, limit int, visibility time.Duration) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	visible := make([]*Entry, 0, limit)
	for id, e := range s.entries {
		// A leased entry whose visibility lapsed is redelivered.
		if e.VisibleAt.After(now) {
			continue
		}
		if s.leased[id] {
			s.leased[id] = false
		}
		visible = append(visible, e)
	}

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Priority != visible[j].Priority {
			return visible[i].Priority > visible[j].Priority
		}
		return visible[i].EnqueuedAt.Before(visible[j].EnqueuedAt)
	})
	if limit > 0 && len(visible) > limit {
		visible = visible[:limit]
	}

	out := make([]*Entry, 0, len(visible))
	for _, e := range visible {
		e.VisibleAt = now.Add(visibility)
		e.Attempts++
		s.leased[e.ID] = true
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) Ack(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	delete(s.leased, id)
	return nil
}

func (s *MemoryStore) Nack(ctx context.Context, id string, cause error, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.VisibleAt = s.now().Add(delay)
	if cause != nil {
		e.LastError = cause.Error()
	}
	delete(s.leased, id)
	return nil
}

func (s *MemoryStore) Depth(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}
