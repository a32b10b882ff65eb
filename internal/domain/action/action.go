// Package action provides the domain model for autonomous actions: the
// decision produced by the policy, the typed parameters each action carries,
// and the append-only history entries that make actions reversible.
package action

import (
	"errors"
	"fmt"
)

// Type identifies an autonomous action.
type Type string

const (
	TypeAutoResolve          Type = "AUTO_RESOLVE"
	TypeEscalate             Type = "ESCALATE"
	TypeRequestClarification Type = "REQUEST_CLARIFICATION"
	TypeAssignToTeam         Type = "ASSIGN_TO_TEAM"
	TypeScheduleFollowup     Type = "SCHEDULE_FOLLOWUP"
	TypeCreateKBArticle      Type = "CREATE_KB_ARTICLE"
)

// Valid reports whether t is one of the six defined action types.
func Valid(t Type) bool {
	switch t {
	case TypeAutoResolve, TypeEscalate, TypeRequestClarification,
		TypeAssignToTeam, TypeScheduleFollowup, TypeCreateKBArticle:
		return true
	}
	return false
}

// Rollbackable reports whether an action of type t can be reversed.
// REQUEST_CLARIFICATION and CREATE_KB_ARTICLE never are: the former only
// flips a status flag, the latter never mutates the ticket.
func Rollbackable(t Type) bool {
	switch t {
	case TypeAutoResolve, TypeAssignToTeam, TypeEscalate, TypeScheduleFollowup:
		return true
	}
	return false
}

// ErrInvalidAction indicates an unknown action type or a rollback attempt
// against an entry whose action type is not rollback-eligible.
var ErrInvalidAction = errors.New("invalid action")

// ErrRollbackConflict indicates the entry was already rolled back, or a
// newer action has since touched the same ticket fields.
var ErrRollbackConflict = errors.New("rollback conflict")

// InvalidTypeError returns an ErrInvalidAction wrapped with the offending type.
func InvalidTypeError(t Type) error {
	return fmt.Errorf("unknown action type %q: %w", t, ErrInvalidAction)
}
