package store

import (
	"context"
	"sync"
)

// InMemoryCounterStore is a mutex-guarded counter map for tests and
// single-node runs.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{counters: make(map[string]int64)}
}

func (s *InMemoryCounterStore) Next(_ context.Context, regionCode, bucket string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := regionCode + "." + bucket
	s.counters[key]++
	return s.counters[key], nil
}

// Snapshot captures current counter values for the memory transaction
// runner. Counters are deliberately NOT rolled back on transaction failure:
// a consumed sequence number stays consumed, matching the database sequence
// semantics of the production backend.
func (s *InMemoryCounterStore) Snapshot() any { return nil }

// Restore is a no-op; see Snapshot.
func (s *InMemoryCounterStore) Restore(any) {}
