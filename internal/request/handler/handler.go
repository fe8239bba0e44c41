// Package handler exposes the single-request lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kta/internal/platform/middleware"
	requestModel "kta/internal/request/models"
	"kta/internal/transport/http/shared"
	id "kta/pkg/domain"
	dErrors "kta/pkg/domain-errors"
	"kta/pkg/requestcontext"
)

// Service defines the request operations the handler needs.
type Service interface {
	CreateRequest(ctx context.Context, nationalID string) (*requestModel.Request, error)
	FetchApplicant(ctx context.Context, requestID id.RequestID) (*requestModel.Request, error)
	EditRequest(ctx context.Context, requestID id.RequestID, edit requestModel.Edit) (*requestModel.Request, error)
	GetRequest(ctx context.Context, requestID id.RequestID) (*requestModel.Request, error)
	ListRequests(ctx context.Context, regionCode string) ([]*requestModel.Request, error)
	ConfirmPrinted(ctx context.Context, requestID id.RequestID) (*requestModel.Request, error)
}

// Issuer turns one approved request into a printable card.
type Issuer interface {
	IssueCard(ctx context.Context, requestID id.RequestID) (*requestModel.Request, error)
}

// Handler handles card request endpoints.
type Handler struct {
	service Service
	issuer  Issuer
	logger  *slog.Logger
}

func New(service Service, issuer Issuer, logger *slog.Logger) *Handler {
	return &Handler{service: service, issuer: issuer, logger: logger}
}

// Register mounts the request routes. The caller applies authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/requests", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/fetch", h.handleFetch)
		r.Put("/{id}", h.handleEdit)

		r.With(middleware.RequireCentral(h.logger)).Post("/{id}/issue", h.handleIssue)
		r.With(middleware.RequireCentral(h.logger)).Post("/{id}/printed", h.handleConfirmPrinted)
	})
}

type createRequestBody struct {
	NationalID string `json:"national_id"`
}

type editRequestBody struct {
	Name              string `json:"name"`
	JobTitle          string `json:"job_title"`
	SubClassification string `json:"sub_classification"`
	Tier              int    `json:"tier"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	request, err := h.service.CreateRequest(ctx, body.NationalID)
	if err != nil {
		h.logger.WarnContext(ctx, "create card request failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	request, err := h.service.FetchApplicant(ctx, requestID)
	if err != nil {
		h.logger.WarnContext(ctx, "registry fetch failed",
			"request_id", requestcontext.RequestID(ctx),
			"card_request_id", requestID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	var body editRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	request, err := h.service.EditRequest(ctx, requestID, requestModel.Edit{
		Name:              body.Name,
		JobTitle:          body.JobTitle,
		SubClassification: body.SubClassification,
		Tier:              body.Tier,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	request, err := h.service.GetRequest(r.Context(), requestID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListRequests(r.Context(), r.URL.Query().Get("region"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	request, err := h.issuer.IssueCard(ctx, requestID)
	if err != nil {
		h.logger.WarnContext(ctx, "card issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"card_request_id", requestID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleConfirmPrinted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request id"))
		return
	}

	request, err := h.service.ConfirmPrinted(ctx, requestID)
	if err != nil {
		h.logger.WarnContext(ctx, "print confirmation failed",
			"request_id", requestcontext.RequestID(ctx),
			"card_request_id", requestID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, request)
}
