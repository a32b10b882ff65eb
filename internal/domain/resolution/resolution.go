// Package resolution provides the domain model for resolution tracking:
// the record of whether an autonomous resolution actually worked, driving
// re-escalation when it did not.
package resolution

import (
	"errors"
	"time"
)

// ActionManual is recorded when feedback arrives for a ticket that was
// never autonomously resolved.
const ActionManual = "MANUAL"

// Tracking is the one-to-one feedback record for a ticket that underwent
// autonomous resolution. Repeated feedback submissions overwrite the latest
// snapshot; no edit history is kept.
type Tracking struct {
	TicketID            string     `json:"ticket_id"`
	AutonomousAction    string     `json:"autonomous_action"`
	ResolutionConfirmed *bool      `json:"resolution_confirmed,omitempty"`
	FeedbackText        string     `json:"feedback_text,omitempty"`
	SatisfactionScore   *int       `json:"satisfaction_score,omitempty"`
	FollowupSentAt      *time.Time `json:"followup_sent_at,omitempty"`
	ResponseReceivedAt  *time.Time `json:"response_received_at,omitempty"`
	Reopened            bool       `json:"reopened"`
	ReopenedAt          *time.Time `json:"reopened_at,omitempty"`
	ReopenedReason      string     `json:"reopened_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// WasSuccessful reports whether the resolution held: false if the ticket was
// reopened, true if the user confirmed it or rated it 4+, nil when unknown.
// Unknown is never coerced to false.
func (t *Tracking) WasSuccessful() *bool {
	if t.Reopened {
		return boolPtr(false)
	}
	if t.ResolutionConfirmed != nil && *t.ResolutionConfirmed {
		return boolPtr(true)
	}
	if t.SatisfactionScore != nil && *t.SatisfactionScore >= 4 {
		return boolPtr(true)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// FeedbackRequest holds a user's feedback on a resolution outcome.
type FeedbackRequest struct {
	Confirmed    *bool  `json:"resolution_confirmed"`
	Satisfaction *int   `json:"satisfaction_score"`
	Text         string `json:"feedback_text"`
}

// Validate checks score bounds and timestamp ordering constraints.
func (r *FeedbackRequest) Validate() error {
	if r.Satisfaction != nil && (*r.Satisfaction < 1 || *r.Satisfaction > 5) {
		return errors.New("satisfaction_score must be between 1 and 5")
	}
	return nil
}

// Analytics aggregates resolution outcomes across all tracked tickets.
type Analytics struct {
	TotalResolutions    int               `json:"total_resolutions"`
	ConfirmedSuccessful int               `json:"confirmed_successful"`
	ConfirmedFailed     int               `json:"confirmed_failed"`
	ReopenedTickets     int               `json:"reopened_tickets"`
	AvgSatisfaction     *float64          `json:"average_satisfaction_score,omitempty"`
	SuccessRate         float64           `json:"success_rate"`
	ByAction            []ActionBreakdown `json:"action_type_breakdown"`
}

// ActionBreakdown is the per-action-type slice of the analytics.
type ActionBreakdown struct {
	AutonomousAction string `json:"autonomous_action"`
	Total            int    `json:"total"`
	Confirmed        int    `json:"confirmed"`
	Failed           int    `json:"failed"`
}
