// Package store persists payment batches, their lines, and approval records.
package store

import (
	"context"
	"time"

	"kta/internal/batch/models"
	id "kta/pkg/domain"
)

// BatchStore is the payment batch persistence boundary.
type BatchStore interface {
	// Create inserts a batch; returns sentinel.ErrConflict on a duplicate id
	// or invoice number.
	Create(ctx context.Context, batch *models.PaymentBatch) error
	// FindByID returns sentinel.ErrNotFound for unknown ids.
	FindByID(ctx context.Context, batchID id.BatchID) (*models.PaymentBatch, error)
	// Transition persists a mutated batch only while the stored status still
	// equals from; otherwise returns sentinel.ErrInvalidState.
	Transition(ctx context.Context, batch *models.PaymentBatch, from models.BatchStatus) error
	// Update persists non-lifecycle field changes (e.g. the invoice artifact).
	Update(ctx context.Context, batch *models.PaymentBatch) error
	// ListByRegion returns a region's batches, newest first.
	ListByRegion(ctx context.Context, regionCode string) ([]*models.PaymentBatch, error)
}

// LineStore is the payment line persistence boundary. Lines move only in
// lockstep with their batch.
type LineStore interface {
	CreateLines(ctx context.Context, lines []*models.PaymentLine) error
	FindByBatch(ctx context.Context, batchID id.BatchID) ([]*models.PaymentLine, error)
	// SetStatusForBatch moves every line of a batch to status in one write.
	SetStatusForBatch(ctx context.Context, batchID id.BatchID, status models.LineStatus, now time.Time) error
}

// ApprovalStore is the append-only verification outcome log.
type ApprovalStore interface {
	Append(ctx context.Context, record *models.ApprovalRecord) error
	ListByBatch(ctx context.Context, batchID id.BatchID) ([]*models.ApprovalRecord, error)
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.ApprovalRecord, error)
}
