// Package service implements region management: chapter registration and the
// discount policy used when pricing batch submissions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kta/internal/region/models"
	audit "kta/pkg/platform/audit"
	"kta/pkg/platform/sentinel"
	"kta/pkg/requestcontext"

	dErrors "kta/pkg/domain-errors"
)

// Store is the region persistence boundary the service needs.
type Store interface {
	Create(ctx context.Context, region *models.Region) error
	FindByCode(ctx context.Context, code string) (*models.Region, error)
	Update(ctx context.Context, region *models.Region) error
	List(ctx context.Context) ([]*models.Region, error)
}

// TxRunner executes fn atomically. Store writes inside fn see the same
// transaction through the context.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CompliancePublisher records regulatory events with fail-closed semantics.
type CompliancePublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service coordinates region operations.
type Service struct {
	store      Store
	txRunner   TxRunner
	compliance CompliancePublisher
	logger     *slog.Logger
}

func New(store Store, txRunner TxRunner, compliance CompliancePublisher, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		txRunner:   txRunner,
		compliance: compliance,
		logger:     logger,
	}
}

// CreateRegion registers a new chapter. Central authority only.
func (s *Service) CreateRegion(ctx context.Context, code, name string, discountPercent int) (*models.Region, error) {
	if err := requireCentral(ctx); err != nil {
		return nil, err
	}

	region, err := models.NewRegion(code, name, discountPercent, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, region); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "region code already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create region")
	}

	s.logger.InfoContext(ctx, "region created",
		"region_code", region.Code,
		"discount_percent", region.DiscountPercent,
	)
	return region, nil
}

// UpdateDiscount changes a region's discount policy. Central authority only.
// The change affects only future submissions; prices already snapshotted onto
// submitted requests are untouched. The change and its compliance audit
// record commit atomically.
func (s *Service) UpdateDiscount(ctx context.Context, code string, percent int) (*models.Region, error) {
	if err := requireCentral(ctx); err != nil {
		return nil, err
	}

	var region *models.Region
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		region, err = s.store.FindByCode(txCtx, code)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "region not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load region")
		}

		if err := region.CanChangeDiscount(percent); err != nil {
			return err
		}
		previous := region.DiscountPercent
		region.ApplyDiscountChange(percent, requestcontext.Now(txCtx))

		if err := s.store.Update(txCtx, region); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update region")
		}

		return s.compliance.Emit(txCtx, audit.Event{
			Timestamp:  requestcontext.Now(txCtx),
			ActorID:    requestcontext.UserID(txCtx),
			Subject:    region.Code,
			Action:     string(audit.EventDiscountChanged),
			RegionCode: region.Code,
			Reason:     fmt.Sprintf("discount changed from %d%% to %d%%", previous, percent),
			Amount:     int64(percent),
			RequestID:  requestcontext.RequestID(txCtx),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "region discount changed",
		"region_code", region.Code,
		"discount_percent", region.DiscountPercent,
	)
	return region, nil
}

// GetRegion looks up one region by code.
func (s *Service) GetRegion(ctx context.Context, code string) (*models.Region, error) {
	region, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "region not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load region")
	}
	return region, nil
}

// ListRegions returns all registered chapters.
func (s *Service) ListRegions(ctx context.Context) ([]*models.Region, error) {
	regions, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list regions")
	}
	return regions, nil
}

func requireCentral(ctx context.Context) error {
	if requestcontext.CallerRole(ctx) != requestcontext.RoleCentral {
		return dErrors.New(dErrors.CodeForbidden, "central authority role required")
	}
	return nil
}
