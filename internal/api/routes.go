package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Timeout(15 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/metrics", h.Metrics)

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		// Approval surface
		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", h.ListApprovals)
			r.Post("/{ref}", h.DecideApproval)
		})

		// Paired sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.PutSession)
			r.Get("/{topic}", h.GetSession)
			r.Delete("/{topic}", h.DeleteSession)
		})

		// Supported networks
		r.Get("/networks", h.ListNetworks)
	})

	return r
}
