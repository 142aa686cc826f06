package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"dynaquery/internal/middleware"
)

// RouterConfig holds the cross-cutting settings for NewRouter.
type RouterConfig struct {
	Auth           middleware.AuthConfig
	RateLimit      middleware.RateLimitConfig
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter mounts the handler under /v1 behind authentication and rate
// limiting. /healthz is public. ctx bounds the rate limiter's sweeper.
func NewRouter(ctx context.Context, h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(cfg.Logger))
	r.Use(chimw.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.Auth))
		r.Use(middleware.RateLimiter(ctx, cfg.RateLimit))

		r.Route("/queries", func(r chi.Router) {
			r.Post("/", h.RunQuery)
			r.Post("/validate", h.ValidateQuery)
			r.Get("/history", h.QueryHistory)
		})
		r.Route("/schema", func(r chi.Router) {
			r.Get("/", h.GetSchema)
			r.Delete("/cache", h.ClearSchemaCache)
			r.Post("/changes", h.NotifySchemaChange)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
