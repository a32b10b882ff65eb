package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resolveq/helpdesk/internal/adapter/otel"
	"github.com/resolveq/helpdesk/internal/adapter/ws"
	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/database"
	"github.com/resolveq/helpdesk/internal/port/scheduler"
)

// RollbackManager reverses previously executed autonomous actions by
// restoring the ticket to the entry's before snapshot. Each ledger entry
// can be rolled back at most once; the conditional flip of rolled_back
// inside the ticket transaction makes concurrent attempts lose cleanly.
type RollbackManager struct {
	store   database.Store
	sched   scheduler.Scheduler
	metrics *otel.Metrics
	hub     *ws.Hub
}

// NewRollbackManager creates a RollbackManager.
func NewRollbackManager(store database.Store, sched scheduler.Scheduler) *RollbackManager {
	return &RollbackManager{store: store, sched: sched}
}

// SetMetrics attaches the otel instruments. Optional.
func (m *RollbackManager) SetMetrics(mt *otel.Metrics) { m.metrics = mt }

// SetHub attaches the websocket hub for the admin live feed. Optional.
func (m *RollbackManager) SetHub(h *ws.Hub) { m.hub = h }

// RollbackRequest carries who is rolling back and why.
type RollbackRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
	// Force skips the newer-conflicting-action check.
	Force bool `json:"force"`
}

// RollbackResult reports a completed rollback.
type RollbackResult struct {
	TicketID       string      `json:"ticket_id"`
	EntryID        string      `json:"entry_id"`
	ActionType     action.Type `json:"action_type"`
	RollbackReason string      `json:"rollback_reason"`
}

// CanRollback reports whether entries of the given action type are
// rollback-eligible.
func (m *RollbackManager) CanRollback(t action.Type) bool {
	return action.Rollbackable(t)
}

// ExecuteRollback reverses the ledger entry. Returns
// action.ErrRollbackConflict when the entry was already rolled back or a
// newer action has touched the same fields (unless forced), and
// action.ErrInvalidAction when the entry's type is not rollback-eligible.
func (m *RollbackManager) ExecuteRollback(ctx context.Context, entryID string, req RollbackRequest) (*RollbackResult, error) {
	ctx, span := otel.StartRollbackSpan(ctx, entryID)
	defer span.End()

	entry, err := m.store.GetActionHistory(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("rollback %s: %w", entryID, err)
	}
	if !action.Rollbackable(entry.Type) {
		return nil, fmt.Errorf("rollback %s: %s is not rollback-eligible: %w", entryID, entry.Type, action.ErrInvalidAction)
	}

	actor := req.Actor
	if actor == "" {
		actor = "system"
	}
	now := time.Now().UTC()

	err = m.store.WithTicketLock(ctx, entry.TicketID, func(ctx context.Context) error {
		// Re-read under the lock so an action executing or a competing
		// rollback landing after the first read cannot slip past the checks.
		entry, err = m.store.GetActionHistory(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.RolledBack {
			return fmt.Errorf("already rolled back: %w", action.ErrRollbackConflict)
		}

		if !req.Force {
			newer, err := m.store.ListActionHistoryAfter(ctx, entry.TicketID, entry.ExecutedAt)
			if err != nil {
				return err
			}
			for _, later := range newer {
				if action.ConflictsWith(entry.Type, later.Type) {
					return fmt.Errorf("newer action %s (%s) touches the same fields: %w",
						later.ID, later.Type, action.ErrRollbackConflict)
				}
			}
		}

		if err := m.restore(ctx, entry); err != nil {
			return err
		}

		content := fmt.Sprintf("Action %s rolled back by %s", entry.Type, actor)
		if req.Reason != "" {
			content += ": " + req.Reason
		}
		if err := m.store.AppendInteraction(ctx, entry.TicketID, actor, ticket.InteractionAgentResponse, content); err != nil {
			return err
		}

		// Losing a race here aborts the whole transaction, so the ticket
		// restore above never lands twice.
		return m.store.MarkRolledBack(ctx, entry.ID, actor, req.Reason, now)
	})
	if err != nil {
		return nil, fmt.Errorf("rollback %s on ticket %s: %w", entryID, entry.TicketID, err)
	}

	if m.metrics != nil {
		m.metrics.ActionsRolledBack.Add(ctx, 1)
	}
	if m.hub != nil {
		m.hub.BroadcastEvent(ctx, ws.EventActionRolledBack, ws.ActionRolledBackEvent{
			TicketID:   entry.TicketID,
			EntryID:    entry.ID,
			ActionType: string(entry.Type),
			Actor:      actor,
			Reason:     req.Reason,
		})
	}
	slog.Info("action rolled back",
		"entry_id", entry.ID,
		"ticket_id", entry.TicketID,
		"action", entry.Type,
		"actor", actor,
	)

	return &RollbackResult{
		TicketID:       entry.TicketID,
		EntryID:        entry.ID,
		ActionType:     entry.Type,
		RollbackReason: req.Reason,
	}, nil
}

// restore undoes the entry's ticket mutation. The before snapshot is
// restored verbatim; type-specific fallbacks cover entries recorded
// without one.
func (m *RollbackManager) restore(ctx context.Context, entry *action.HistoryEntry) error {
	if entry.Type == action.TypeScheduleFollowup {
		// The action never mutated the ticket; undo means canceling the
		// pending verification job.
		return m.sched.Cancel(ctx, scheduler.KindFollowupCheck, entry.TicketID)
	}

	t, err := m.store.GetTicket(ctx, entry.TicketID)
	if err != nil {
		return err
	}

	fields := []string{ticket.FieldStatus}
	switch {
	case entry.BeforeState != nil && entry.BeforeState.Status != "":
		t.Status = ticket.Status(entry.BeforeState.Status)
	case entry.Type == action.TypeAutoResolve:
		t.Status = ticket.StatusInProgress
	case entry.Type == action.TypeEscalate:
		t.Status = ticket.StatusNew
	}

	if action.TouchesAssignee(entry.Type) {
		if entry.BeforeState != nil {
			t.AssignedTo = entry.BeforeState.AssignedToID
		} else {
			t.AssignedTo = nil
		}
		fields = append(fields, ticket.FieldAssignedTo)
	}

	return m.store.SaveTicketFields(ctx, t, fields...)
}
