// Package issuance drives approved requests through serial allocation and
// card rendering.
//
// The fan-out over a verified batch isolates failures per request: one
// renderer outage or timeout leaves that request in APPROVED, safely
// retryable, and never blocks or rolls back its siblings.
package issuance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kta/internal/artifact"
	"kta/internal/issuance/metrics"
	requestModel "kta/internal/request/models"
	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
	audit "kta/pkg/platform/audit"
	"kta/pkg/platform/sentinel"
	"kta/pkg/requestcontext"
)

// RequestStore is the slice of request persistence the orchestrator needs.
type RequestStore interface {
	FindByID(ctx context.Context, requestID id.RequestID) (*requestModel.Request, error)
	Transition(ctx context.Context, request *requestModel.Request, from requestModel.Status) error
}

// Allocator hands out serials; see the serial package for the uniqueness
// contract.
type Allocator interface {
	Allocate(ctx context.Context, regionCode string, tier int, existingSerial string) (string, error)
}

// OperationsPublisher records operational events with fail-open semantics.
type OperationsPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Failure names one request that could not be issued and why.
type Failure struct {
	RequestID id.RequestID `json:"request_id"`
	Reason    string       `json:"reason"`
}

// BatchOutcome is the per-request result set of a batch-wide fan-out.
type BatchOutcome struct {
	Succeeded []id.RequestID `json:"succeeded"`
	Failed    []Failure      `json:"failed"`
}

// Orchestrator issues cards for approved requests.
type Orchestrator struct {
	requests      RequestStore
	allocator     Allocator
	renderer      artifact.Renderer
	operations    OperationsPublisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	concurrency   int
	renderTimeout time.Duration
}

func New(
	requests RequestStore,
	allocator Allocator,
	renderer artifact.Renderer,
	operations OperationsPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	concurrency int,
	renderTimeout time.Duration,
) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	if renderTimeout == 0 {
		renderTimeout = 15 * time.Second
	}
	return &Orchestrator{
		requests:      requests,
		allocator:     allocator,
		renderer:      renderer,
		operations:    operations,
		metrics:       m,
		logger:        logger,
		concurrency:   concurrency,
		renderTimeout: renderTimeout,
	}
}

// IssueCard allocates a serial and renders the card artifact for one approved
// request, writing serial, artifact reference, and the READY_TO_PRINT move as
// a single update. Calling it on an already-issued request is a no-op.
func (o *Orchestrator) IssueCard(ctx context.Context, requestID id.RequestID) (*requestModel.Request, error) {
	request, err := o.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load request")
	}

	// Idempotency: a request that already carries both a serial and an
	// artifact is done, regardless of who asks again.
	if request.IsIssued() {
		return request, nil
	}

	// Guard before allocating: a request refused here must not consume a
	// sequence number.
	if err := request.CanStartIssuance(); err != nil {
		return nil, err
	}

	serial, err := o.allocator.Allocate(ctx, request.RegionCode, request.Tier, request.Serial)
	if err != nil {
		o.metrics.IncrementFailure("allocate")
		return nil, err
	}

	if err := request.CanIssue(serial); err != nil {
		return nil, err
	}

	renderCtx, cancel := context.WithTimeout(ctx, o.renderTimeout)
	defer cancel()
	start := time.Now()
	artifactRef, err := o.renderer.RenderCard(renderCtx, artifact.CardSnapshot{
		Serial:            serial,
		NationalID:        request.NationalID,
		Name:              request.Name,
		JobTitle:          request.JobTitle,
		SubClassification: request.SubClassification,
		Tier:              request.Tier,
		RegionCode:        request.RegionCode,
	})
	o.metrics.ObserveRender(start)
	if err != nil {
		// The request stays APPROVED; a later IssueCard retries cleanly.
		o.metrics.IncrementFailure("render")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "card rendering timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "card rendering failed")
	}

	from := request.Status
	request.ApplyIssuance(serial, artifactRef, requestcontext.Now(ctx))
	if err := o.requests.Transition(ctx, request, from); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// The unique serial index refused the write. The allocator's
			// atomicity contract was violated; surface it as fatal, never
			// retry with a fresh number.
			o.metrics.IncrementFailure("duplicate_serial")
			o.logger.ErrorContext(ctx, "duplicate serial detected",
				"card_request_id", request.ID.String(),
				"serial", serial,
			)
			return nil, dErrors.New(dErrors.CodeDuplicateSerial,
				"serial "+serial+" already exists; allocator integrity violated")
		}
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeInvalidTransition, "request was modified concurrently")
		}
		o.metrics.IncrementFailure("persist")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist issuance")
	}

	o.metrics.IncrementIssued()
	o.operations.Emit(ctx, audit.Event{
		Timestamp:  requestcontext.Now(ctx),
		ActorID:    requestcontext.UserID(ctx),
		Subject:    request.ID.String(),
		Action:     string(audit.EventCardIssued),
		BatchID:    request.BatchID.String(),
		RegionCode: request.RegionCode,
		RequestID:  requestcontext.RequestID(ctx),
	})
	o.logger.InfoContext(ctx, "card issued",
		"card_request_id", request.ID.String(),
		"serial", serial,
	)
	return request, nil
}

// IssueBatch fans IssueCard out over every request of a verified batch and
// gathers a per-request outcome set. Individual failures never cancel
// siblings; the caller decides what to do with the failed ids.
func (o *Orchestrator) IssueBatch(ctx context.Context, requestIDs []id.RequestID) BatchOutcome {
	var (
		mu      sync.Mutex
		outcome BatchOutcome
	)

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for _, requestID := range requestIDs {
		g.Go(func() error {
			_, err := o.IssueCard(ctx, requestID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Failed = append(outcome.Failed, Failure{
					RequestID: requestID,
					Reason:    dErrors.MessageOf(err),
				})
				return nil
			}
			outcome.Succeeded = append(outcome.Succeeded, requestID)
			return nil
		})
	}
	// Closures always return nil; Wait only synchronizes.
	_ = g.Wait()

	if len(outcome.Failed) > 0 {
		o.logger.WarnContext(ctx, "batch issuance completed with failures",
			"succeeded", len(outcome.Succeeded),
			"failed", len(outcome.Failed),
		)
	}
	return outcome
}
