package action

import (
	"encoding/json"
	"time"
)

// ExecutedByAgent is the actor recorded for engine-initiated actions.
const ExecutedByAgent = "autonomous_agent"

// Decision is the output of the decision policy: exactly one action type
// with its typed parameters, plus the AI context that justified it.
type Decision struct {
	Type       Type
	Params     Params
	Confidence *float64
	Reasoning  string
}

// Snapshot captures the subset of ticket fields an action mutates. It is
// the sole source of truth for rollback: restoration copies these values
// verbatim, never re-derives them.
type Snapshot struct {
	Status       string  `json:"status"`
	AssignedToID *string `json:"assigned_to_id"`
}

// HistoryEntry is the immutable audit record of one executed autonomous
// action. Only the rolled_back* fields are ever written after creation,
// and at most once.
type HistoryEntry struct {
	ID               string          `json:"id"`
	TicketID         string          `json:"ticket_id"`
	Type             Type            `json:"action_type"`
	Params           json.RawMessage `json:"action_params"`
	ConfidenceScore  *float64        `json:"confidence_score,omitempty"`
	AgentReasoning   string          `json:"agent_reasoning,omitempty"`
	ExecutedAt       time.Time       `json:"executed_at"`
	ExecutedBy       string          `json:"executed_by"`
	RollbackPossible bool            `json:"rollback_possible"`
	RolledBack       bool            `json:"rolled_back"`
	RolledBackAt     *time.Time      `json:"rolled_back_at,omitempty"`
	RolledBackBy     *string         `json:"rolled_back_by,omitempty"`
	RollbackReason   string          `json:"rollback_reason,omitempty"`
	BeforeState      *Snapshot       `json:"before_state,omitempty"`
	AfterState       *Snapshot       `json:"after_state,omitempty"`
}

// TouchesStatus reports whether an action of type t mutates ticket status.
func TouchesStatus(t Type) bool {
	switch t {
	case TypeAutoResolve, TypeEscalate, TypeRequestClarification, TypeAssignToTeam:
		return true
	}
	return false
}

// TouchesAssignee reports whether an action of type t mutates the assignee.
func TouchesAssignee(t Type) bool {
	return t == TypeAssignToTeam
}

// ConflictsWith reports whether a later entry of type later overwrote fields
// that rolling back an entry of type earlier would restore. Used to refuse
// a rollback that would silently clobber a newer action's effect.
func ConflictsWith(earlier, later Type) bool {
	if TouchesStatus(earlier) && TouchesStatus(later) {
		return true
	}
	if TouchesAssignee(earlier) && TouchesAssignee(later) {
		return true
	}
	return false
}
