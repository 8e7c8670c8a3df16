package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allumi/attribution-service/internal/application"
	"github.com/allumi/attribution-service/internal/ports"
)

// Handler is the HTTP adapter entrypoint for attribution use-cases.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service  *application.Service
	verifier ports.TokenVerifier
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service, verifier ports.TokenVerifier) *Handler {
	return &Handler{service: service, verifier: verifier}
}

// NewRouter registers attribution HTTP routes and middleware stack.
// The touchpoint ingest route stays public for tracking-script traffic;
// everything that reads or mutates revenue data requires a service token.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/attribution/v1", func(r chi.Router) {
		r.Post("/touchpoints", handler.recordTouchpoint)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/conversions", handler.recordConversion)
			r.Get("/conversions/{conversion_id}", handler.getConversion)
			r.Post("/conversions/{conversion_id}/reconcile", handler.reconcileConversion)
			r.Get("/identities/{identity_id}/touchpoints", handler.listIdentityTouchpoints)
			r.Post("/identities/import", handler.importIdentities)
			r.Get("/reports/channels", handler.channelReport)
		})
	})

	return r
}
