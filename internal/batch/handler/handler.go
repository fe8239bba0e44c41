// Package handler exposes the payment batch lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kta/internal/batch/models"
	"kta/internal/batch/service"
	"kta/internal/platform/middleware"
	"kta/internal/transport/http/shared"
	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
	"kta/pkg/requestcontext"
)

// Service defines the batch operations the handler needs.
type Service interface {
	CreateBatch(ctx context.Context, requestIDs []id.RequestID) (*models.PaymentBatch, error)
	MarkPaid(ctx context.Context, batchID id.BatchID, proofRef string) (*models.PaymentBatch, error)
	Verify(ctx context.Context, batchID id.BatchID, approved bool, reason string) (*service.VerifyResult, error)
	GetBatch(ctx context.Context, batchID id.BatchID) (*service.BatchDetail, error)
	ListBatches(ctx context.Context, regionCode string) ([]*models.PaymentBatch, error)
}

// Handler handles payment batch endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the batch routes. The caller applies authentication; the
// verify route additionally requires the central role, region affiliation for
// the rest is enforced in the service.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/batches", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/paid", h.handleMarkPaid)

		r.With(middleware.RequireCentral(h.logger)).Post("/{id}/verify", h.handleVerify)
	})
}

type createBatchBody struct {
	RequestIDs []string `json:"request_ids"`
}

type markPaidBody struct {
	ProofRef string `json:"proof_ref"`
}

type verifyBody struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body createBatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	requestIDs := make([]id.RequestID, 0, len(body.RequestIDs))
	for _, raw := range body.RequestIDs {
		requestID, err := id.ParseRequestID(raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id: "+raw))
			return
		}
		requestIDs = append(requestIDs, requestID)
	}

	batch, err := h.service.CreateBatch(ctx, requestIDs)
	if err != nil {
		h.logger.WarnContext(ctx, "create batch failed",
			"request_id", requestcontext.RequestID(ctx),
			"member_count", len(requestIDs),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, batch)
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := id.ParseBatchID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid batch id"))
		return
	}

	var body markPaidBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	batch, err := h.service.MarkPaid(ctx, batchID, body.ProofRef)
	if err != nil {
		h.logger.WarnContext(ctx, "mark batch paid failed",
			"request_id", requestcontext.RequestID(ctx),
			"batch_id", batchID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, batch)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := id.ParseBatchID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid batch id"))
		return
	}

	var body verifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.service.Verify(ctx, batchID, body.Approved, body.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "verify batch failed",
			"request_id", requestcontext.RequestID(ctx),
			"batch_id", batchID.String(),
			"approved", body.Approved,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	batchID, err := id.ParseBatchID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid batch id"))
		return
	}

	detail, err := h.service.GetBatch(r.Context(), batchID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.ListBatches(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, batches)
}
