package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/heromessaging/heromessaging-go/pkg/faults"
)

// MemoryStore is the in-memory Store used by default wiring and tests.
// Expired entries are pruned on read and by CleanupExpired.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Response
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Response),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Response, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if entry.Expired(s.now()) {
		s.mu.Lock()
		// Re-check; a concurrent writer may have replaced the entry.
		if current, ok := s.entries[key]; ok && current.Expired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, nil
	}
	return entry, nil
}

func (s *MemoryStore) StoreSuccess(ctx context.Context, key string, result any, ttl time.Duration) error {
	return s.put(key, &Response{
		Status:        StatusSuccess,
		SuccessResult: result,
	}, ttl)
}

func (s *MemoryStore) StoreFailure(ctx context.Context, key string, failure error, ttl time.Duration) error {
	return s.put(key, &Response{
		Status:         StatusFailure,
		FailureKind:    faults.Classify(failure),
		FailureMessage: failure.Error(),
	}, ttl)
}

func (s *MemoryStore) StoreProcessing(ctx context.Context, key string, ttl time.Duration) error {
	return s.put(key, &Response{Status: StatusProcessing}, ttl)
}

func (s *MemoryStore) put(key string, entry *Response, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	now := s.now()
	entry.Key = key
	entry.StoredAt = now
	entry.ExpiresAt = now.Add(ttl)

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (s *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}
