// Package store persists card requests.
//
// Transition is the guarded write used by every state machine move: the
// update only lands when the persisted status still matches the status the
// caller read. A concurrent writer that got there first makes the losing
// call fail with sentinel.ErrInvalidState instead of silently overwriting.
package store

import (
	"context"

	"kta/internal/request/models"
	id "kta/pkg/domain"
)

// Store is the request persistence boundary.
type Store interface {
	// Create inserts a request; returns sentinel.ErrConflict on a duplicate id.
	Create(ctx context.Context, request *models.Request) error
	// FindByID returns sentinel.ErrNotFound for unknown ids.
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	// FindByIDs loads several requests; returns sentinel.ErrNotFound if any id
	// is unknown.
	FindByIDs(ctx context.Context, requestIDs []id.RequestID) ([]*models.Request, error)
	// FindByBatch loads every member request of a batch.
	FindByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Request, error)
	// Update persists a mutated request without a status guard. Use only for
	// non-lifecycle field changes on a freshly loaded request.
	Update(ctx context.Context, request *models.Request) error
	// Transition persists a mutated request only while the stored status still
	// equals from; otherwise returns sentinel.ErrInvalidState.
	Transition(ctx context.Context, request *models.Request, from models.Status) error
	// ListByRegion returns requests owned by a region, newest first.
	ListByRegion(ctx context.Context, regionCode string) ([]*models.Request, error)
}
