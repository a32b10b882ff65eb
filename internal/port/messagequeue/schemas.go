package messagequeue

// TicketCreatedPayload is the schema for tickets.created messages.
type TicketCreatedPayload struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
	Category string `json:"category"`
}

// TicketReprocessPayload is the schema for tickets.reprocess messages.
type TicketReprocessPayload struct {
	TicketID    string `json:"ticket_id"`
	RequestedBy string `json:"requested_by"`
}

// ActionExecutedPayload is the schema for tickets.action.executed messages.
type ActionExecutedPayload struct {
	EntryID    string   `json:"entry_id"`
	TicketID   string   `json:"ticket_id"`
	ActionType string   `json:"action_type"`
	Confidence *float64 `json:"confidence,omitempty"`
	Success    bool     `json:"success"`
}
