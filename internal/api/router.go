package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/calendar-nexus/internal/logging"
)

// NewRouter wires the public HTTP surface.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.Middleware)

	// Handshake entry points; no principal resolution required.
	r.Get("/authorize", h.Authorize)
	r.Get("/oauth/callback", h.OAuthCallback)

	// Credential-protected surface.
	r.Group(func(r chi.Router) {
		r.Use(h.RequirePrincipal)

		r.Get("/availability", h.Availability)
		r.Post("/disconnect", h.Disconnect)

		r.Route("/calendar/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
		})
	})

	return r
}
