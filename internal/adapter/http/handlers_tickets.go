package http

import (
	"net/http"
	"strconv"

	"github.com/resolveq/helpdesk/internal/domain/ticket"
)

// CreateTicket handles POST /tickets.
func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[ticket.CreateRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}

	t, err := h.tickets.Create(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListTickets handles GET /tickets?status=&limit=.
func (h *Handlers) ListTickets(w http.ResponseWriter, r *http.Request) {
	status := ticket.Status(r.URL.Query().Get("status"))
	if status != "" && !ticket.ValidStatus(status) {
		writeError(w, http.StatusBadRequest, "unknown status: "+string(status))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	tickets, err := h.tickets.List(r.Context(), status, limit)
	if err != nil {
		writeDomainError(w, err, "tickets not found")
		return
	}
	if tickets == nil {
		tickets = []ticket.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets, "count": len(tickets)})
}

// GetTicket handles GET /tickets/{id}.
func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.tickets.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// TicketHistory handles GET /tickets/{id}/history, the conversation log.
func (h *Handlers) TicketHistory(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.tickets.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, "ticket not found")
		return
	}

	interactions, err := h.tickets.Interactions(r.Context(), id, 0)
	if err != nil {
		writeDomainError(w, err, "ticket not found")
		return
	}
	if interactions == nil {
		interactions = []ticket.Interaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket_id": id, "interactions": interactions})
}

// ProcessTicket handles POST /tickets/{id}/process, queuing a reprocess.
func (h *Handlers) ProcessTicket(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestedBy string `json:"requested_by"`
	}
	if r.ContentLength > 0 {
		var ok bool
		body, ok = readJSON[struct {
			RequestedBy string `json:"requested_by"`
		}](w, r, defaultBodyLimit)
		if !ok {
			return
		}
	}

	id := urlParam(r, "id")
	if err := h.tickets.Reprocess(r.Context(), id, body.RequestedBy); err != nil {
		writeDomainError(w, err, "ticket not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"ticket_id": id, "status": "queued"})
}
