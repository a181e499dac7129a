package rate

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is the process-local counter store. A single mutex guards the
// map: the critical section is a map access plus a time comparison, so
// contention stays negligible next to the argon2 work on the same paths.
//
// Counters do not survive process restart and are not shared between
// instances; use [RedisStore] for horizontal scaling.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Incr implements Store. The read-then-write hazard lives entirely inside
// the lock: two concurrent callers can never both observe the same count.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || now.After(entry.resetAt) {
		entry = memoryEntry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = entry
		return entry.count, entry.resetAt, nil
	}

	entry.count++
	s.entries[key] = entry
	return entry.count, entry.resetAt, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string) (int64, time.Time, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || now.After(entry.resetAt) {
		return 0, time.Time{}, false, nil
	}
	return entry.count, entry.resetAt, true, nil
}

// Sweep implements Store. Deleting only already-expired entries makes it
// safe to run concurrently with in-flight checks.
func (s *MemoryStore) Sweep(_ context.Context) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.entries {
		if now.After(entry.resetAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len reports the live entry count. Test and sweep instrumentation only.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
