// Package ticket provides the domain model for helpdesk tickets, the
// entity the autonomous action engine reads and mutates.
package ticket

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusNew                  Status = "new"
	StatusInProgress           Status = "in_progress"
	StatusPendingClarification Status = "pending_clarification"
	StatusAssigned             Status = "assigned"
	StatusEscalated            Status = "escalated"
	StatusResolved             Status = "resolved"
	StatusClosed               Status = "closed"
)

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusNew, StatusInProgress, StatusPendingClarification,
		StatusAssigned, StatusEscalated, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether s is a final state. A scheduled follow-up
// firing against a terminal ticket is a no-op.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Category classifies the kind of IT issue a ticket describes.
type Category string

const (
	CategoryWiFi     Category = "wifi"
	CategoryLaptop   Category = "laptop"
	CategoryVPN      Category = "vpn"
	CategoryPrinter  Category = "printer"
	CategoryEmail    Category = "email"
	CategorySoftware Category = "software"
	CategoryHardware Category = "hardware"
	CategoryNetwork  Category = "network"
	CategoryAccount  Category = "account"
	CategoryAccess   Category = "access"
	CategoryPhone    Category = "phone"
	CategoryServer   Category = "server"
	CategorySecurity Category = "security"
	CategoryCloud    Category = "cloud"
	CategoryStorage  Category = "storage"
	CategoryOther    Category = "other"
)

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryWiFi, CategoryLaptop, CategoryVPN, CategoryPrinter,
		CategoryEmail, CategorySoftware, CategoryHardware, CategoryNetwork,
		CategoryAccount, CategoryAccess, CategoryPhone, CategoryServer,
		CategorySecurity, CategoryCloud, CategoryStorage, CategoryOther:
		return true
	}
	return false
}

// Signal is the AI scoring service's analysis of a ticket, stored verbatim
// as the ticket's agent_response.
type Signal struct {
	Confidence        float64        `json:"confidence"`
	RecommendedAction string         `json:"recommended_action"`
	Explanation       string         `json:"explanation,omitempty"`
	ResolutionSteps   []string       `json:"resolution_steps,omitempty"`
	Analysis          map[string]any `json:"analysis,omitempty"`
}

// HasSteps reports whether the signal carries candidate resolution steps.
func (s *Signal) HasSteps() bool {
	return s != nil && len(s.ResolutionSteps) > 0
}

// Ticket is a helpdesk ticket. The action engine only mutates Status and
// AssignedTo; everything else is owned by the intake layer.
type Ticket struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	Department     string    `json:"department,omitempty"`
	IssueType      string    `json:"issue_type"`
	Status         Status    `json:"status"`
	Description    string    `json:"description"`
	Category       Category  `json:"category"`
	Tags           []string  `json:"tags"`
	AssignedTo     *string   `json:"assigned_to,omitempty"`
	AgentResponse  *Signal   `json:"agent_response,omitempty"`
	AgentProcessed bool      `json:"agent_processed"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InteractionType classifies an interaction record on a ticket.
type InteractionType string

const (
	InteractionClarification        InteractionType = "clarification"
	InteractionFeedback             InteractionType = "feedback"
	InteractionAgentResponse        InteractionType = "agent_response"
	InteractionClarificationRequest InteractionType = "agent_clarification_request"
	InteractionUserMessage          InteractionType = "user_message"
)

// Interaction is one entry in a ticket's human-readable conversation log.
// The engine appends these when executing and when rolling back actions.
type Interaction struct {
	ID        int64           `json:"id"`
	TicketID  string          `json:"ticket_id"`
	ActorID   string          `json:"actor_id"`
	Type      InteractionType `json:"type"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateRequest holds the input for creating a ticket.
type CreateRequest struct {
	UserID      string   `json:"user_id"`
	UserName    string   `json:"user_name"`
	Department  string   `json:"department"`
	IssueType   string   `json:"issue_type"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Tags        []string `json:"tags"`
}

// Validate checks that a CreateRequest is well-formed.
func (r *CreateRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.IssueType == "" {
		return errors.New("issue_type is required")
	}
	if r.Category == "" {
		r.Category = CategoryOther
	}
	if !ValidCategory(r.Category) {
		return errors.New("invalid category: " + string(r.Category))
	}
	return nil
}

// Field names accepted by the partial-update store operation. Keeping the
// mutable surface explicit stops the engine from ever touching intake-owned
// columns.
const (
	FieldStatus         = "status"
	FieldAssignedTo     = "assigned_to"
	FieldAgentResponse  = "agent_response"
	FieldAgentProcessed = "agent_processed"
)
