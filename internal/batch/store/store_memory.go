package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"kta/internal/batch/models"
	id "kta/pkg/domain"
	"kta/pkg/platform/sentinel"
)

// InMemoryStore keeps batches, lines, and approvals in mutex-guarded maps.
// It implements BatchStore, LineStore, and ApprovalStore.
type InMemoryStore struct {
	mu        sync.RWMutex
	batches   map[id.BatchID]models.PaymentBatch
	invoices  map[string]bool
	lines     map[id.BatchID][]models.PaymentLine
	approvals []models.ApprovalRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		batches:  make(map[id.BatchID]models.PaymentBatch),
		invoices: make(map[string]bool),
		lines:    make(map[id.BatchID][]models.PaymentLine),
	}
}

func (s *InMemoryStore) Create(_ context.Context, batch *models.PaymentBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[batch.ID]; exists {
		return sentinel.ErrConflict
	}
	if s.invoices[batch.InvoiceNumber] {
		return sentinel.ErrConflict
	}
	s.batches[batch.ID] = *batch
	s.invoices[batch.InvoiceNumber] = true
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, batchID id.BatchID) (*models.PaymentBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := batch
	return &copied, nil
}

func (s *InMemoryStore) Transition(_ context.Context, batch *models.PaymentBatch, from models.BatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.batches[batch.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status != from {
		return sentinel.ErrInvalidState
	}
	s.batches[batch.ID] = *batch
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, batch *models.PaymentBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.batches[batch.ID] = *batch
	return nil
}

func (s *InMemoryStore) ListByRegion(_ context.Context, regionCode string) ([]*models.PaymentBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PaymentBatch
	for _, batch := range s.batches {
		if batch.RegionCode == regionCode {
			copied := batch
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CreateLines(_ context.Context, lines []*models.PaymentLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines {
		s.lines[line.BatchID] = append(s.lines[line.BatchID], *line)
	}
	return nil
}

func (s *InMemoryStore) FindByBatch(_ context.Context, batchID id.BatchID) ([]*models.PaymentLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.lines[batchID]
	out := make([]*models.PaymentLine, len(stored))
	for i := range stored {
		copied := stored[i]
		out[i] = &copied
	}
	return out, nil
}

func (s *InMemoryStore) SetStatusForBatch(_ context.Context, batchID id.BatchID, status models.LineStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.lines[batchID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for i := range stored {
		stored[i].Status = status
		stored[i].UpdatedAt = now
	}
	return nil
}

func (s *InMemoryStore) Append(_ context.Context, record *models.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals = append(s.approvals, *record)
	return nil
}

func (s *InMemoryStore) ListByBatch(_ context.Context, batchID id.BatchID) ([]*models.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ApprovalRecord
	for i := range s.approvals {
		if s.approvals[i].BatchID == batchID {
			copied := s.approvals[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByRequest(_ context.Context, requestID id.RequestID) ([]*models.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ApprovalRecord
	for i := range s.approvals {
		if s.approvals[i].RequestID == requestID {
			copied := s.approvals[i]
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memorySnapshot struct {
	batches   map[id.BatchID]models.PaymentBatch
	invoices  map[string]bool
	lines     map[id.BatchID][]models.PaymentLine
	approvals []models.ApprovalRecord
}

// Snapshot captures current state for all-or-nothing rollback by the memory
// transaction runner.
func (s *InMemoryStore) Snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memorySnapshot{
		batches:   make(map[id.BatchID]models.PaymentBatch, len(s.batches)),
		invoices:  make(map[string]bool, len(s.invoices)),
		lines:     make(map[id.BatchID][]models.PaymentLine, len(s.lines)),
		approvals: append([]models.ApprovalRecord(nil), s.approvals...),
	}
	for k, v := range s.batches {
		snap.batches[k] = v
	}
	for k, v := range s.invoices {
		snap.invoices[k] = v
	}
	for k, v := range s.lines {
		snap.lines[k] = append([]models.PaymentLine(nil), v...)
	}
	return snap
}

// Restore replaces state with a snapshot taken by Snapshot.
func (s *InMemoryStore) Restore(snapshot any) {
	snap, ok := snapshot.(memorySnapshot)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = snap.batches
	s.invoices = snap.invoices
	s.lines = snap.lines
	s.approvals = snap.approvals
}
