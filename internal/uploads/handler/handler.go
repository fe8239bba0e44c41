// Package handler accepts proof-of-payment uploads and hands back the object
// key a region then attaches to its batch via the paid endpoint.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kta/internal/objectstore"
	"kta/internal/transport/http/shared"
	dErrors "kta/pkg/domain-errors"
	"kta/pkg/requestcontext"
)

// maxProofSize bounds one uploaded proof document.
const maxProofSize = 10 << 20

// proofLinkExpiry bounds how long a generated download link stays valid.
const proofLinkExpiry = time.Hour

// Handler handles upload endpoints.
type Handler struct {
	store  objectstore.Store
	logger *slog.Logger
}

func New(store objectstore.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts the upload routes. The caller applies authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/uploads", func(r chi.Router) {
		r.Post("/proof", h.handleUploadProof)
		r.Get("/proof/*", h.handleProofLink)
	})
}

type uploadResponse struct {
	ProofRef string `json:"proof_ref"`
}

type linkResponse struct {
	URL string `json:"url"`
}

func (h *Handler) handleUploadProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if requestcontext.CallerRole(ctx) != requestcontext.RoleRegional {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only a regional submitter may upload payment proof"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProofSize)
	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "multipart form with a file field is required"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file field is required"))
		return
	}
	defer file.Close()

	prefix := "proof/" + requestcontext.RegionCode(ctx)
	key, err := h.store.Put(ctx, prefix, header.Filename,
		header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		h.logger.ErrorContext(ctx, "proof upload failed",
			"request_id", requestcontext.RequestID(ctx),
			"filename", header.Filename,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "proof uploaded",
		"request_id", requestcontext.RequestID(ctx),
		"proof_ref", key,
	)
	shared.WriteJSON(w, http.StatusCreated, uploadResponse{ProofRef: key})
}

func (h *Handler) handleProofLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "*")
	if key == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "object key is required"))
		return
	}

	url, err := h.store.URL(ctx, key, proofLinkExpiry)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "proof not found"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, linkResponse{URL: url})
}
