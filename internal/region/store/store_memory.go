package store

import (
	"context"
	"sort"
	"sync"

	"kta/internal/region/models"
	"kta/pkg/platform/sentinel"
)

// InMemoryStore is a mutex-guarded map keyed by region code.
type InMemoryStore struct {
	mu      sync.RWMutex
	regions map[string]models.Region
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{regions: make(map[string]models.Region)}
}

func (s *InMemoryStore) Create(_ context.Context, region *models.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.regions[region.Code]; exists {
		return sentinel.ErrConflict
	}
	s.regions[region.Code] = *region
	return nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	region, ok := s.regions[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := region
	return &copied, nil
}

func (s *InMemoryStore) Update(_ context.Context, region *models.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[region.Code]; !ok {
		return sentinel.ErrNotFound
	}
	s.regions[region.Code] = *region
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Region, 0, len(s.regions))
	for _, region := range s.regions {
		copied := region
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Snapshot captures current state for all-or-nothing rollback by the memory
// transaction runner.
func (s *InMemoryStore) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]models.Region, len(s.regions))
	for k, v := range s.regions {
		copied[k] = v
	}
	return copied
}

// Restore replaces state with a snapshot taken by Snapshot.
func (s *InMemoryStore) Restore(snapshot any) {
	regions, ok := snapshot.(map[string]models.Region)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = regions
}
