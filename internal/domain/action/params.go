package action

import (
	"encoding/json"
	"fmt"
	"time"
)

// Params is the tagged union of per-action parameters. Each variant carries
// only the fields its action uses, so the dispatch boundary never reaches
// into an untyped map.
type Params interface {
	ActionType() Type
}

// AutoResolveParams carries the resolution the agent applied.
type AutoResolveParams struct {
	Steps     []string `json:"resolution_steps"`
	Reasoning string   `json:"reasoning,omitempty"`
}

func (AutoResolveParams) ActionType() Type { return TypeAutoResolve }

// EscalateParams carries the reason a ticket was handed to a human queue.
type EscalateParams struct {
	Reason   string `json:"escalation_reason"`
	Priority string `json:"priority,omitempty"`
}

func (EscalateParams) ActionType() Type { return TypeEscalate }

// ClarificationParams lists what the requester needs to supply.
type ClarificationParams struct {
	MissingFields []string `json:"missing_fields"`
	Reason        string   `json:"reason,omitempty"`
}

func (ClarificationParams) ActionType() Type { return TypeRequestClarification }

// AssignParams names the team a ticket was routed to.
type AssignParams struct {
	Team string `json:"assigned_team"`
}

func (AssignParams) ActionType() Type { return TypeAssignToTeam }

// FollowupParams carries the tentative fix sent to the user and when to
// verify it held.
type FollowupParams struct {
	At    time.Time `json:"followup_time"`
	Steps []string  `json:"resolution_steps,omitempty"`
}

func (FollowupParams) ActionType() Type { return TypeScheduleFollowup }

// KBArticleParams names the derived article and its content source.
type KBArticleParams struct {
	Title string   `json:"title"`
	Steps []string `json:"resolution_steps,omitempty"`
}

func (KBArticleParams) ActionType() Type { return TypeCreateKBArticle }

// MarshalParams serializes a params variant for storage in the history ledger.
func MarshalParams(p Params) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", p.ActionType(), err)
	}
	return data, nil
}

// UnmarshalParams decodes stored params back into the variant for t.
func UnmarshalParams(t Type, data json.RawMessage) (Params, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	var (
		p   Params
		err error
	)
	switch t {
	case TypeAutoResolve:
		var v AutoResolveParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypeEscalate:
		var v EscalateParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypeRequestClarification:
		var v ClarificationParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypeAssignToTeam:
		var v AssignParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypeScheduleFollowup:
		var v FollowupParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypeCreateKBArticle:
		var v KBArticleParams
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, InvalidTypeError(t)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s params: %w", t, err)
	}
	return p, nil
}
