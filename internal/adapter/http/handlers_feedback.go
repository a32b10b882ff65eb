package http

import (
	"net/http"

	"github.com/resolveq/helpdesk/internal/domain/resolution"
)

// SubmitFeedback handles POST /tickets/{id}/feedback.
func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[resolution.FeedbackRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}

	id := urlParam(r, "id")
	tr, err := h.feedback.SubmitFeedback(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket_id":       id,
		"tracking":        tr,
		"ticket_reopened": tr.Reopened,
	})
}

// ResolutionAnalytics handles GET /analytics/resolutions.
func (h *Handlers) ResolutionAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.feedback.Analytics(r.Context())
	if err != nil {
		writeDomainError(w, err, "analytics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
