package ratecache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in process. Expiry is judged against the
// injected clock so tests can move time.
type MemoryStore struct {
	mu    sync.Mutex
	clock Clock
	items map[string]memoryEntry
}

func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryStore{clock: clock, items: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}
