package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. Router-wide
// middleware (request ID, otel, logging, CORS, idempotency) is applied by
// the caller so tests can mount the routes bare.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/ws", h.WS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Tickets
		r.Post("/tickets", h.CreateTicket)
		r.Get("/tickets", h.ListTickets)
		r.Get("/tickets/{id}", h.GetTicket)
		r.Get("/tickets/{id}/history", h.TicketHistory)
		r.Post("/tickets/{id}/process", h.ProcessTicket)

		// Autonomous actions
		r.Get("/tickets/{id}/actions", h.TicketActions)
		r.Post("/actions/{id}/rollback", h.RollbackAction)

		// Resolution feedback
		r.Post("/tickets/{id}/feedback", h.SubmitFeedback)
		r.Get("/analytics/resolutions", h.ResolutionAnalytics)
	})
}
