package store

import (
	"context"
	"sort"
	"sync"

	"kta/internal/request/models"
	id "kta/pkg/domain"
	"kta/pkg/platform/sentinel"
)

// InMemoryStore is a mutex-guarded map keyed by request id.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]models.Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]models.Request)}
}

func (s *InMemoryStore) Create(_ context.Context, request *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = *request
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := request
	return &copied, nil
}

func (s *InMemoryStore) FindByIDs(_ context.Context, requestIDs []id.RequestID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Request, 0, len(requestIDs))
	for _, rid := range requestIDs {
		request, ok := s.requests[rid]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		copied := request
		out = append(out, &copied)
	}
	return out, nil
}

func (s *InMemoryStore) FindByBatch(_ context.Context, batchID id.BatchID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, request := range s.requests {
		if request.BatchID == batchID {
			copied := request
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, request *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[request.ID] = *request
	return nil
}

func (s *InMemoryStore) Transition(_ context.Context, request *models.Request, from models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[request.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != from {
		return sentinel.ErrInvalidState
	}
	s.requests[request.ID] = *request
	return nil
}

func (s *InMemoryStore) ListByRegion(_ context.Context, regionCode string) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, request := range s.requests {
		if request.RegionCode == regionCode {
			copied := request
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Snapshot captures current state for all-or-nothing rollback by the memory
// transaction runner.
func (s *InMemoryStore) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[id.RequestID]models.Request, len(s.requests))
	for k, v := range s.requests {
		copied[k] = v
	}
	return copied
}

// Restore replaces state with a snapshot taken by Snapshot.
func (s *InMemoryStore) Restore(snapshot any) {
	requests, ok := snapshot.(map[id.RequestID]models.Request)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = requests
}
