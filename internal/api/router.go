// Package api provides the HTTP surface of the deployment orchestrator.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api/handlers"
)

// RouterConfig holds optional handlers for the router.
type RouterConfig struct {
	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
}

// NewRouter creates a Chi router with all routes and middleware configured.
func NewRouter(h *handlers.Handler) chi.Router {
	return NewRouterWithConfig(h, RouterConfig{})
}

// NewRouterWithConfig creates a Chi router with optional handlers.
func NewRouterWithConfig(h *handlers.Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.Health)

	// Deployment and queue routes
	r.Post("/deployments", h.CreateDeployment)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Post("/cancel", h.CancelAllJobs)
		r.Post("/retry-failed", h.RetryFailedJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Post("/cancel", h.CancelJob)
		})
	})

	r.Get("/telemetry", h.GetTelemetry)
	r.Post("/builds", h.RecordBuild)

	// Fleet routes
	r.Route("/hosts", func(r chi.Router) {
		r.Get("/", h.ListHosts)
		r.Post("/", h.UpsertHost)
		r.Post("/import", h.ImportHosts)
		r.Get("/export", h.ExportHosts)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetHost)
			r.Delete("/", h.DeleteHost)
			r.Put("/enabled", h.SetHostEnabled)
			r.Get("/history", h.ListHostHistory)
		})
	})

	r.Route("/groups", func(r chi.Router) {
		r.Post("/", h.UpsertGroup)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetGroup)
			r.Delete("/", h.DeleteGroup)
			r.Put("/hosts/{hostID}", h.AssignToGroup)
			r.Delete("/hosts/{hostID}", h.UnassignFromGroup)
		})
	})

	r.Get("/history", h.ListHistory)

	// Metrics (optional)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}
