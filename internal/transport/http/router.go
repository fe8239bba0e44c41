// Package httptransport assembles the HTTP surface: middleware chain, health
// and metrics endpoints, and the authenticated API routes contributed by each
// domain handler.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kta/internal/platform/middleware"
)

// Registrar is implemented by every domain handler: it mounts its routes on
// the authenticated subtree.
type Registrar interface {
	Register(r chi.Router)
}

// RouterConfig carries everything the router needs from main.
type RouterConfig struct {
	Logger         *slog.Logger
	JWTValidator   middleware.JWTValidator
	RequestTimeout time.Duration
	Handlers       []Registrar
}

// NewRouter builds the chi router. Health and metrics stay outside
// authentication; everything under /api requires a valid token.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(cfg.JWTValidator, cfg.Logger))
		for _, handler := range cfg.Handlers {
			handler.Register(r)
		}
	})

	return r
}
