package counter

import (
	"context"
	"sync"
	"time"
)

// InMemoryCounterStore keeps counters in process memory. Counts are not
// shared between gateway instances, so quotas are enforced per instance.
// Intended for tests and single-node deployments; distributed deployments
// use RedisCounterStore.
type InMemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	count int64
	// expiresAt is zero until Expire arms the TTL.
	expiresAt time.Time
}

// NewInMemoryCounterStore creates an empty in-memory counter store.
func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Increment adds one to the counter at key, reviving expired keys at zero.
// Expiry is evaluated lazily here rather than by a background sweeper.
func (s *InMemoryCounterStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]
	if e == nil || s.expired(e) {
		e = &entry{}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Expire arms the TTL for an existing counter. Unknown keys are ignored.
func (s *InMemoryCounterStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.entries[key]; e != nil {
		e.expiresAt = s.now().Add(ttl)
	}
	return nil
}

// Len returns the number of live keys, sweeping expired ones first.
func (s *InMemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, key)
		}
	}
	return len(s.entries)
}

func (s *InMemoryCounterStore) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}
