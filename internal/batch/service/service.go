// Package service implements bulk payment reconciliation: grouping requests
// into a payable batch, recording payment, and the central verify/reject
// decision that atomically flips every member request.
//
// Every multi-request move runs inside one transaction. A reader can never
// observe a verified batch with members still in READY_FOR_REVIEW, or a
// half-created batch with 2 of 5 lines written.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"kta/internal/artifact"
	"kta/internal/batch/metrics"
	"kta/internal/batch/models"
	batchstore "kta/internal/batch/store"
	"kta/internal/issuance"
	"kta/internal/pricing"
	regionModel "kta/internal/region/models"
	requestModel "kta/internal/request/models"
	"kta/internal/serial"
	serialstore "kta/internal/serial/store"
	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
	audit "kta/pkg/platform/audit"
	"kta/pkg/platform/sentinel"
	"kta/pkg/requestcontext"
)

var tracer = otel.Tracer("kta/batch")

// RequestStore is the slice of request persistence the reconciler needs.
type RequestStore interface {
	FindByIDs(ctx context.Context, requestIDs []id.RequestID) ([]*requestModel.Request, error)
	FindByBatch(ctx context.Context, batchID id.BatchID) ([]*requestModel.Request, error)
	Transition(ctx context.Context, request *requestModel.Request, from requestModel.Status) error
}

// RegionStore resolves the submitting region's discount policy.
type RegionStore interface {
	FindByCode(ctx context.Context, code string) (*regionModel.Region, error)
}

// Pricer computes the price snapshot for one request.
type Pricer interface {
	ComputePrice(tier int, discountPercent int) (pricing.Quote, error)
}

// Issuer fans card issuance out over a verified batch.
type Issuer interface {
	IssueBatch(ctx context.Context, requestIDs []id.RequestID) issuance.BatchOutcome
}

// TxRunner executes fn atomically; see the storage package.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CompliancePublisher records regulatory events with fail-closed semantics.
type CompliancePublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// OperationsPublisher records operational events with fail-open semantics.
type OperationsPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// VerifyResult is the outcome of one verification decision. Issuance is the
// per-request fan-out result, present only for approvals.
type VerifyResult struct {
	Batch    *models.PaymentBatch   `json:"batch"`
	Issuance *issuance.BatchOutcome `json:"issuance,omitempty"`
}

// BatchDetail is the read projection of one batch with its lines.
type BatchDetail struct {
	Batch     *models.PaymentBatch     `json:"batch"`
	Lines     []*models.PaymentLine    `json:"lines"`
	Approvals []*models.ApprovalRecord `json:"approvals,omitempty"`
}

// Service coordinates the batch lifecycle.
type Service struct {
	batches    batchstore.BatchStore
	lines      batchstore.LineStore
	approvals  batchstore.ApprovalStore
	requests   RequestStore
	regions    RegionStore
	pricer     Pricer
	invoices   serial.CounterStore
	issuer     Issuer
	renderer   artifact.Renderer
	txRunner   TxRunner
	compliance CompliancePublisher
	operations OperationsPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Config struct {
	Batches    batchstore.BatchStore
	Lines      batchstore.LineStore
	Approvals  batchstore.ApprovalStore
	Requests   RequestStore
	Regions    RegionStore
	Pricer     Pricer
	Invoices   serial.CounterStore
	Issuer     Issuer
	Renderer   artifact.Renderer
	TxRunner   TxRunner
	Compliance CompliancePublisher
	Operations OperationsPublisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func New(cfg Config) *Service {
	return &Service{
		batches:    cfg.Batches,
		lines:      cfg.Lines,
		approvals:  cfg.Approvals,
		requests:   cfg.Requests,
		regions:    cfg.Regions,
		pricer:     cfg.Pricer,
		invoices:   cfg.Invoices,
		issuer:     cfg.Issuer,
		renderer:   cfg.Renderer,
		txRunner:   cfg.TxRunner,
		compliance: cfg.Compliance,
		operations: cfg.Operations,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// CreateBatch groups requests into one payable invoice and moves every member
// to WAITING_PAYMENT, freezing each price at the region's current discount.
// Regional callers only, and only for requests of their own region.
func (s *Service) CreateBatch(ctx context.Context, requestIDs []id.RequestID) (*models.PaymentBatch, error) {
	ctx, span := tracer.Start(ctx, "batch.create", trace.WithAttributes(
		attribute.Int("batch.request_count", len(requestIDs)),
	))
	defer span.End()

	callerRegion := requestcontext.RegionCode(ctx)
	if requestcontext.CallerRole(ctx) != requestcontext.RoleRegional || callerRegion == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "only a regional submitter may create a batch")
	}
	if len(requestIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidRequestSet, "a batch needs at least one request")
	}
	if hasDuplicates(requestIDs) {
		return nil, dErrors.New(dErrors.CodeInvalidRequestSet, "request ids must be distinct")
	}

	now := requestcontext.Now(ctx)
	var batch *models.PaymentBatch
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		members, err := s.requests.FindByIDs(txCtx, requestIDs)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "batch references an unknown request")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "load batch members")
		}

		region, err := s.loadRegion(txCtx, callerRegion)
		if err != nil {
			return err
		}

		var totalAmount int64
		quotes := make([]pricing.Quote, len(members))
		for i, member := range members {
			if member.RegionCode != callerRegion {
				return dErrors.New(dErrors.CodeInvalidRequestSet,
					fmt.Sprintf("request %s belongs to region %s; a batch covers exactly one region",
						member.ID, member.RegionCode))
			}
			if err := member.CanSubmitForPayment(); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInvalidRequestSet,
					fmt.Sprintf("request %s cannot join a batch", member.ID))
			}
			quote, err := s.pricer.ComputePrice(member.Tier, region.DiscountPercent)
			if err != nil {
				return err
			}
			quotes[i] = quote
			totalAmount += quote.FinalPrice
		}

		invoiceNumber, err := s.nextInvoiceNumber(txCtx, callerRegion)
		if err != nil {
			return err
		}

		batch, err = models.NewPaymentBatch(invoiceNumber, callerRegion,
			requestcontext.UserID(txCtx), len(members), totalAmount, now)
		if err != nil {
			return err
		}
		if err := s.batches.Create(txCtx, batch); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create batch")
		}

		lines := make([]*models.PaymentLine, len(members))
		for i, member := range members {
			lines[i] = &models.PaymentLine{
				BatchID:   batch.ID,
				RequestID: member.ID,
				Amount:    quotes[i].FinalPrice,
				Status:    models.LineStatusFor(batch.Status),
				CreatedAt: now,
				UpdatedAt: now,
			}
		}
		if err := s.lines.CreateLines(txCtx, lines); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create payment lines")
		}

		for i, member := range members {
			from := member.Status
			member.ApplySubmission(batch.ID, requestModel.PriceSnapshot{
				BasePrice:  quotes[i].BasePrice,
				FinalPrice: quotes[i].FinalPrice,
			}, now)
			if err := s.transitionRequest(txCtx, member, from); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementCreated(batch.TotalCount)
	s.operations.Emit(ctx, audit.Event{
		Timestamp:  now,
		ActorID:    requestcontext.UserID(ctx),
		Subject:    batch.ID.String(),
		Action:     string(audit.EventBatchCreated),
		RegionCode: batch.RegionCode,
		Amount:     batch.TotalAmount,
		RequestID:  requestcontext.RequestID(ctx),
	})
	s.logger.InfoContext(ctx, "payment batch created",
		"batch_id", batch.ID.String(),
		"invoice_number", batch.InvoiceNumber,
		"region_code", batch.RegionCode,
		"total_count", batch.TotalCount,
		"total_amount", batch.TotalAmount,
	)

	s.renderInvoice(ctx, batch)
	return batch, nil
}

// MarkPaid records the proof of payment and moves every member request to
// READY_FOR_REVIEW. Only the submitting region's caller may pay its batch.
func (s *Service) MarkPaid(ctx context.Context, batchID id.BatchID, proofRef string) (*models.PaymentBatch, error) {
	ctx, span := tracer.Start(ctx, "batch.mark_paid")
	defer span.End()

	now := requestcontext.Now(ctx)
	var batch *models.PaymentBatch
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		batch, err = s.loadBatch(txCtx, batchID)
		if err != nil {
			return err
		}
		if err := s.authorizeRegional(txCtx, batch); err != nil {
			return err
		}
		if err := batch.CanMarkPaid(proofRef); err != nil {
			return err
		}

		batch.ApplyPaid(proofRef, now)
		if err := s.transitionBatch(txCtx, batch, models.BatchStatusSubmitted); err != nil {
			return err
		}
		if err := s.lines.SetStatusForBatch(txCtx, batch.ID, models.LineStatusFor(batch.Status), now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "move payment lines")
		}

		members, err := s.requests.FindByBatch(txCtx, batch.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load batch members")
		}
		for _, member := range members {
			if err := member.CanMarkPaymentReceived(); err != nil {
				return err
			}
			from := member.Status
			member.ApplyPaymentReceived(now)
			if err := s.transitionRequest(txCtx, member, from); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementPaid()
	s.operations.Emit(ctx, audit.Event{
		Timestamp:  now,
		ActorID:    requestcontext.UserID(ctx),
		Subject:    batch.ID.String(),
		Action:     string(audit.EventBatchPaid),
		RegionCode: batch.RegionCode,
		Amount:     batch.TotalAmount,
		RequestID:  requestcontext.RequestID(ctx),
	})
	s.logger.InfoContext(ctx, "payment batch marked paid",
		"batch_id", batch.ID.String(),
		"proof_ref", proofRef,
	)
	return batch, nil
}

// Verify records the central decision on a paid batch. Approval moves every
// member to APPROVED, writes one approval record each, and fans card issuance
// out after commit. Rejection requires a reason and resets every member to
// DRAFT with its price snapshot cleared. Either way the member flips commit
// as one unit with the batch status.
func (s *Service) Verify(ctx context.Context, batchID id.BatchID, approved bool, reason string) (*VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "batch.verify", trace.WithAttributes(
		attribute.Bool("batch.approved", approved),
	))
	defer span.End()
	start := time.Now()

	if requestcontext.CallerRole(ctx) != requestcontext.RoleCentral {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the central authority may verify a batch")
	}

	now := requestcontext.Now(ctx)
	verifier := requestcontext.UserID(ctx)
	decision := models.DecisionApproved
	action := audit.EventBatchVerified
	if !approved {
		decision = models.DecisionRejected
		action = audit.EventBatchRejected
	}

	var (
		batch     *models.PaymentBatch
		memberIDs []id.RequestID
	)
	err := s.txRunner.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		batch, err = s.loadBatch(txCtx, batchID)
		if err != nil {
			return err
		}
		if err := batch.CanVerify(approved, reason); err != nil {
			return err
		}

		batch.ApplyVerification(approved, reason, verifier, now)
		if err := s.transitionBatch(txCtx, batch, models.BatchStatusPaid); err != nil {
			return err
		}
		// Lines mirror the batch: their status is derived, never chosen.
		if err := s.lines.SetStatusForBatch(txCtx, batch.ID, models.LineStatusFor(batch.Status), now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "move payment lines")
		}

		members, err := s.requests.FindByBatch(txCtx, batch.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load batch members")
		}
		memberIDs = memberIDs[:0]
		for _, member := range members {
			from := member.Status
			if approved {
				if err := member.CanApprove(); err != nil {
					return err
				}
				member.ApplyApproval(now)
			} else {
				if err := member.CanReject(); err != nil {
					return err
				}
				member.ApplyRejection(now)
			}
			if err := s.transitionRequest(txCtx, member, from); err != nil {
				return err
			}
			memberIDs = append(memberIDs, member.ID)

			record := models.NewApprovalRecord(member.ID, batch.ID, decision, reason, verifier, now)
			if err := s.approvals.Append(txCtx, record); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "append approval record")
			}
		}

		// Fail-closed: the decision only commits together with its
		// compliance record.
		return s.compliance.Emit(txCtx, audit.Event{
			Timestamp:  now,
			ActorID:    verifier,
			Subject:    batch.ID.String(),
			Action:     string(action),
			RegionCode: batch.RegionCode,
			Decision:   string(decision),
			Reason:     reason,
			Amount:     batch.TotalAmount,
			RequestID:  requestcontext.RequestID(ctx),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementVerified(string(decision))
	s.metrics.ObserveVerify(start)
	s.logger.InfoContext(ctx, "payment batch verified",
		"batch_id", batch.ID.String(),
		"decision", string(decision),
		"member_count", len(memberIDs),
	)

	result := &VerifyResult{Batch: batch}
	if approved {
		// Issuance runs after the verify commit: a renderer outage must not
		// roll back an already-made decision, and each failure is retryable
		// per request.
		outcome := s.issuer.IssueBatch(ctx, memberIDs)
		result.Issuance = &outcome
	}
	return result, nil
}

// GetBatch returns one batch with its lines and, once verified, its approval
// records.
func (s *Service) GetBatch(ctx context.Context, batchID id.BatchID) (*BatchDetail, error) {
	batch, err := s.loadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, batch); err != nil {
		return nil, err
	}

	lines, err := s.lines.FindByBatch(ctx, batch.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load payment lines")
	}
	approvals, err := s.approvals.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load approval records")
	}
	return &BatchDetail{Batch: batch, Lines: lines, Approvals: approvals}, nil
}

// ListBatches returns a region's batches, newest first. Regional callers are
// pinned to their own region.
func (s *Service) ListBatches(ctx context.Context, regionCode string) ([]*models.PaymentBatch, error) {
	if requestcontext.CallerRole(ctx) == requestcontext.RoleRegional {
		regionCode = requestcontext.RegionCode(ctx)
	}
	if regionCode == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "region code is required")
	}
	batches, err := s.batches.ListByRegion(ctx, regionCode)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list batches")
	}
	return batches, nil
}

// nextInvoiceNumber draws from the same counter machinery as card serials,
// under the reserved invoice bucket.
func (s *Service) nextInvoiceNumber(ctx context.Context, regionCode string) (string, error) {
	seq, err := s.invoices.Next(ctx, regionCode, serialstore.InvoiceBucket)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "advance invoice counter")
	}
	return fmt.Sprintf("%s.%s.%06d", regionCode, serialstore.InvoiceBucket, seq), nil
}

// renderInvoice asks the renderer for the printable invoice after the batch
// committed. Failures are logged and ignored: the invoice artifact is a
// convenience, regeneration is deterministic, and the batch is already live.
func (s *Service) renderInvoice(ctx context.Context, batch *models.PaymentBatch) {
	if s.renderer == nil {
		return
	}

	members, err := s.requests.FindByBatch(ctx, batch.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "invoice render skipped",
			"batch_id", batch.ID.String(),
			"error", err.Error(),
		)
		return
	}
	lines := make([]artifact.InvoiceLine, len(members))
	for i, member := range members {
		var amount int64
		if member.Price != nil {
			amount = member.Price.FinalPrice
		}
		lines[i] = artifact.InvoiceLine{
			RequestID:  member.ID.String(),
			Name:       member.Name,
			FinalPrice: amount,
		}
	}

	ref, err := s.renderer.RenderInvoice(ctx, artifact.InvoiceSnapshot{
		InvoiceNumber: batch.InvoiceNumber,
		RegionCode:    batch.RegionCode,
		TotalCount:    batch.TotalCount,
		TotalAmount:   batch.TotalAmount,
		Lines:         lines,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "invoice render failed",
			"batch_id", batch.ID.String(),
			"error", err.Error(),
		)
		return
	}

	batch.InvoiceRef = ref
	batch.UpdatedAt = requestcontext.Now(ctx)
	if err := s.batches.Update(ctx, batch); err != nil {
		s.logger.WarnContext(ctx, "invoice ref not persisted",
			"batch_id", batch.ID.String(),
			"error", err.Error(),
		)
	}
}

func (s *Service) loadBatch(ctx context.Context, batchID id.BatchID) (*models.PaymentBatch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "batch not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load batch")
	}
	return batch, nil
}

func (s *Service) loadRegion(ctx context.Context, code string) (*regionModel.Region, error) {
	region, err := s.regions.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("region %s not registered", code))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load region")
	}
	return region, nil
}

// authorizeRegional pins mutations to the submitting region's own callers.
func (s *Service) authorizeRegional(ctx context.Context, batch *models.PaymentBatch) error {
	if requestcontext.CallerRole(ctx) != requestcontext.RoleRegional {
		return dErrors.New(dErrors.CodeForbidden, "only the submitting region may perform this action")
	}
	if requestcontext.RegionCode(ctx) != batch.RegionCode {
		return dErrors.New(dErrors.CodeForbidden, "batch belongs to another region")
	}
	return nil
}

// authorizeRead allows central callers and the owning region's callers.
func (s *Service) authorizeRead(ctx context.Context, batch *models.PaymentBatch) error {
	if requestcontext.CallerRole(ctx) == requestcontext.RoleCentral {
		return nil
	}
	if requestcontext.RegionCode(ctx) != batch.RegionCode {
		return dErrors.New(dErrors.CodeForbidden, "batch belongs to another region")
	}
	return nil
}

func (s *Service) transitionBatch(ctx context.Context, batch *models.PaymentBatch, from models.BatchStatus) error {
	if err := s.batches.Transition(ctx, batch, from); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeInvalidTransition, "batch was modified concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist batch transition")
	}
	return nil
}

func (s *Service) transitionRequest(ctx context.Context, request *requestModel.Request, from requestModel.Status) error {
	if err := s.requests.Transition(ctx, request, from); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeInvalidTransition,
				fmt.Sprintf("request %s was modified concurrently", request.ID))
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist request transition")
	}
	return nil
}

func hasDuplicates(ids []id.RequestID) bool {
	seen := make(map[id.RequestID]bool, len(ids))
	for _, requestID := range ids {
		if seen[requestID] {
			return true
		}
		seen[requestID] = true
	}
	return false
}
