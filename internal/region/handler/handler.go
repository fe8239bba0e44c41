// Package handler exposes region management over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kta/internal/platform/middleware"
	regionModel "kta/internal/region/models"
	"kta/internal/transport/http/shared"
	dErrors "kta/pkg/domain-errors"
	"kta/pkg/requestcontext"
)

// Service defines the region operations the handler needs.
type Service interface {
	CreateRegion(ctx context.Context, code, name string, discountPercent int) (*regionModel.Region, error)
	UpdateDiscount(ctx context.Context, code string, percent int) (*regionModel.Region, error)
	GetRegion(ctx context.Context, code string) (*regionModel.Region, error)
	ListRegions(ctx context.Context) ([]*regionModel.Region, error)
}

// Handler handles region endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the region routes. The caller applies authentication; the
// mutating routes additionally require the central role.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/regions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{code}", h.handleGet)

		r.With(middleware.RequireCentral(h.logger)).Post("/", h.handleCreate)
		r.With(middleware.RequireCentral(h.logger)).Put("/{code}/discount", h.handleUpdateDiscount)
	})
}

type createRegionRequest struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	DiscountPercent int    `json:"discount_percent"`
}

type updateDiscountRequest struct {
	DiscountPercent int `json:"discount_percent"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRegionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	region, err := h.service.CreateRegion(ctx, req.Code, req.Name, req.DiscountPercent)
	if err != nil {
		h.logger.WarnContext(ctx, "create region failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, region)
}

func (h *Handler) handleUpdateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	var req updateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	region, err := h.service.UpdateDiscount(ctx, code, req.DiscountPercent)
	if err != nil {
		h.logger.WarnContext(ctx, "update discount failed",
			"request_id", requestcontext.RequestID(ctx),
			"region_code", code,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, region)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	region, err := h.service.GetRegion(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, region)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	regions, err := h.service.ListRegions(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, regions)
}
