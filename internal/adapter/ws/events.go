package ws

import (
	"context"
	"encoding/json"
)

// Event type constants for WebSocket messages.
const (
	EventActionExecuted   = "action.executed"
	EventActionRolledBack = "action.rolled_back"
	EventTicketReopened   = "ticket.reopened"
)

// ActionExecutedEvent is broadcast when the engine completes an autonomous
// action on a ticket.
type ActionExecutedEvent struct {
	TicketID   string   `json:"ticket_id"`
	EntryID    string   `json:"entry_id"`
	ActionType string   `json:"action_type"`
	Confidence *float64 `json:"confidence,omitempty"`
	Status     string   `json:"status"`
}

// ActionRolledBackEvent is broadcast when a ledger entry is rolled back.
type ActionRolledBackEvent struct {
	TicketID   string `json:"ticket_id"`
	EntryID    string `json:"entry_id"`
	ActionType string `json:"action_type"`
	Actor      string `json:"actor"`
	Reason     string `json:"reason,omitempty"`
}

// TicketReopenedEvent is broadcast when user feedback reopens a ticket.
type TicketReopenedEvent struct {
	TicketID string `json:"ticket_id"`
	Reason   string `json:"reason,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
