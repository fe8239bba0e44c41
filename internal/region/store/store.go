// Package store persists regions. Two implementations: in-memory for tests
// and single-node runs, PostgreSQL for production.
package store

import (
	"context"

	"kta/internal/region/models"
)

// Store is the region persistence boundary.
type Store interface {
	// Create inserts a region; returns sentinel.ErrConflict when the code is
	// already taken.
	Create(ctx context.Context, region *models.Region) error
	// FindByCode returns sentinel.ErrNotFound for unknown codes.
	FindByCode(ctx context.Context, code string) (*models.Region, error)
	// Update persists a mutated region; returns sentinel.ErrNotFound for
	// unknown codes.
	Update(ctx context.Context, region *models.Region) error
	List(ctx context.Context) ([]*models.Region, error)
}
