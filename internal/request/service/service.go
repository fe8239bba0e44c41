// Package service implements the card request lifecycle outside of batch
// processing: draft creation, registry fetch, edits, read projections, and
// the final print confirmation.
//
// Batch-driven transitions (submission, payment, verification) live in the
// batch service; issuance lives in the issuance orchestrator. This service
// owns only the single-request operations.
package service

import (
	"context"
	"errors"
	"log/slog"

	"kta/internal/applicant"
	"kta/internal/request/models"
	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
	audit "kta/pkg/platform/audit"
	"kta/pkg/platform/sentinel"
	"kta/pkg/requestcontext"
)

// Store is the request persistence boundary the service needs.
type Store interface {
	Create(ctx context.Context, request *models.Request) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Transition(ctx context.Context, request *models.Request, from models.Status) error
	ListByRegion(ctx context.Context, regionCode string) ([]*models.Request, error)
}

// OperationsPublisher records operational events with fail-open semantics.
type OperationsPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service coordinates single-request operations.
type Service struct {
	store      Store
	registry   applicant.Client
	operations OperationsPublisher
	logger     *slog.Logger
}

func New(store Store, registry applicant.Client, operations OperationsPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		registry:   registry,
		operations: operations,
		logger:     logger,
	}
}

// CreateRequest opens a draft card request for an applicant. Regional callers
// only; the draft belongs to the caller's region.
func (s *Service) CreateRequest(ctx context.Context, nationalID string) (*models.Request, error) {
	regionCode := requestcontext.RegionCode(ctx)
	if requestcontext.CallerRole(ctx) != requestcontext.RoleRegional || regionCode == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "only a regional submitter may open a card request")
	}

	request, err := models.NewRequest(nationalID, regionCode, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, request); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create request")
	}

	s.logger.InfoContext(ctx, "card request created",
		"card_request_id", request.ID.String(),
		"region_code", regionCode,
	)
	return request, nil
}

// FetchApplicant pulls identity data from the external registry onto the
// request and moves it to FETCHED. A second fetch overwrites the first.
func (s *Service) FetchApplicant(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, request); err != nil {
		return nil, err
	}
	if err := request.CanApplyRegistryData(); err != nil {
		return nil, err
	}

	data, err := s.registry.FetchApplicant(ctx, request.NationalID)
	if err != nil {
		return nil, err
	}

	from := request.Status
	request.ApplyRegistryData(data.Name, data.JobTitle, data.SubClassification, data.Tier, requestcontext.Now(ctx))
	if err := s.transition(ctx, request, from); err != nil {
		return nil, err
	}
	return request, nil
}

// EditRequest amends fetched applicant data and moves the request to EDITED.
func (s *Service) EditRequest(ctx context.Context, requestID id.RequestID, edit models.Edit) (*models.Request, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, request); err != nil {
		return nil, err
	}
	if err := request.CanApplyEdit(); err != nil {
		return nil, err
	}
	if edit.Tier != 0 && (edit.Tier < 1 || edit.Tier > 9) {
		return nil, dErrors.New(dErrors.CodeValidation, "tier must be on the 1-9 scale")
	}

	from := request.Status
	request.ApplyEdit(edit, requestcontext.Now(ctx))
	if err := s.transition(ctx, request, from); err != nil {
		return nil, err
	}
	return request, nil
}

// GetRequest returns one request, including status, serial, and the price
// breakdown, for detail pages.
func (s *Service) GetRequest(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, request); err != nil {
		return nil, err
	}
	if err := request.CheckIntegrity(); err != nil {
		s.logger.ErrorContext(ctx, "corrupt request record",
			"card_request_id", request.ID.String(),
			"error", err.Error(),
		)
		return nil, err
	}
	return request, nil
}

// ListRequests returns a region's requests, newest first. Regional callers
// are pinned to their own region; central callers name any region.
func (s *Service) ListRequests(ctx context.Context, regionCode string) ([]*models.Request, error) {
	if requestcontext.CallerRole(ctx) == requestcontext.RoleRegional {
		regionCode = requestcontext.RegionCode(ctx)
	}
	if regionCode == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "region code is required")
	}

	requests, err := s.store.ListByRegion(ctx, regionCode)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list requests")
	}
	return requests, nil
}

// ConfirmPrinted records that the physical card left the printer. Central
// authority only; terminal transition.
func (s *Service) ConfirmPrinted(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	if requestcontext.CallerRole(ctx) != requestcontext.RoleCentral {
		return nil, dErrors.New(dErrors.CodeForbidden, "central authority role required")
	}

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := request.CanConfirmPrinted(); err != nil {
		return nil, err
	}

	from := request.Status
	request.ApplyPrinted(requestcontext.Now(ctx))
	if err := s.transition(ctx, request, from); err != nil {
		return nil, err
	}

	s.operations.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		ActorID:    requestcontext.UserID(ctx),
		Subject:    request.ID.String(),
		Action:     string(audit.EventRequestPrinted),
		RegionCode: request.RegionCode,
		RequestID:  requestcontext.RequestID(ctx),
	})
	return request, nil
}

func (s *Service) load(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	request, err := s.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load request")
	}
	return request, nil
}

// authorize pins regional callers to requests of their own region.
func (s *Service) authorize(ctx context.Context, request *models.Request) error {
	if requestcontext.CallerRole(ctx) == requestcontext.RoleCentral {
		return nil
	}
	if requestcontext.RegionCode(ctx) != request.RegionCode {
		return dErrors.New(dErrors.CodeForbidden, "request belongs to another region")
	}
	return nil
}

func (s *Service) transition(ctx context.Context, request *models.Request, from models.Status) error {
	if err := s.store.Transition(ctx, request, from); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeInvalidTransition, "request was modified concurrently")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist request transition")
	}
	return nil
}
