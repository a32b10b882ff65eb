package http

import (
	"net/http"

	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/service"
)

// TicketActions handles GET /tickets/{id}/actions: the action ledger,
// newest first, including rollback status per entry.
func (h *Handlers) TicketActions(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.tickets.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, "ticket not found")
		return
	}

	entries, err := h.tickets.ActionHistory(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "ticket not found")
		return
	}
	if entries == nil {
		entries = []action.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket_id": id, "actions": entries})
}

// RollbackAction handles POST /actions/{id}/rollback.
func (h *Handlers) RollbackAction(w http.ResponseWriter, r *http.Request) {
	var req service.RollbackRequest
	if r.ContentLength > 0 {
		var ok bool
		req, ok = readJSON[service.RollbackRequest](w, r, defaultBodyLimit)
		if !ok {
			return
		}
	}

	result, err := h.rollback.ExecuteRollback(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "action entry not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
