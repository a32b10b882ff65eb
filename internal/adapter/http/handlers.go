package http

import (
	"context"
	"net/http"

	"github.com/resolveq/helpdesk/internal/adapter/ws"
	"github.com/resolveq/helpdesk/internal/service"
)

// defaultBodyLimit caps JSON request bodies.
const defaultBodyLimit = 1 << 20 // 1 MiB

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers bundles the HTTP handlers and the services they delegate to.
type Handlers struct {
	tickets  *service.TicketService
	rollback *service.RollbackManager
	feedback *service.FeedbackTracker
	hub      *ws.Hub
	checks   []HealthCheck
}

// NewHandlers creates the handler set.
func NewHandlers(tickets *service.TicketService, rollback *service.RollbackManager, feedback *service.FeedbackTracker, hub *ws.Hub, checks ...HealthCheck) *Handlers {
	return &Handlers{
		tickets:  tickets,
		rollback: rollback,
		feedback: feedback,
		hub:      hub,
		checks:   checks,
	}
}

// Health reports dependency status. Any failing probe turns the response
// into a 503 so load balancers stop routing here.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(r.Context()); err != nil {
			deps[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":       state,
		"dependencies": deps,
	})
}

// WS upgrades the connection and attaches it to the admin event feed.
func (h *Handlers) WS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}
