package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/resolveq/helpdesk/internal/domain"
	"github.com/resolveq/helpdesk/internal/domain/action"
)

const historyColumns = `id, ticket_id, action_type, action_params, confidence_score,
	agent_reasoning, executed_at, executed_by, rollback_possible,
	rolled_back, rolled_back_at, rolled_back_by, rollback_reason,
	before_state, after_state`

func scanHistoryEntry(row scannable) (action.HistoryEntry, error) {
	var (
		e        action.HistoryEntry
		params   []byte
		before   []byte
		after    []byte
		rbReason *string
	)
	err := row.Scan(
		&e.ID, &e.TicketID, &e.Type, &params, &e.ConfidenceScore,
		&e.AgentReasoning, &e.ExecutedAt, &e.ExecutedBy, &e.RollbackPossible,
		&e.RolledBack, &e.RolledBackAt, &e.RolledBackBy, &rbReason,
		&before, &after,
	)
	if err != nil {
		return e, err
	}
	e.Params = json.RawMessage(params)
	if rbReason != nil {
		e.RollbackReason = *rbReason
	}
	if len(before) > 0 {
		e.BeforeState = &action.Snapshot{}
		if err := json.Unmarshal(before, e.BeforeState); err != nil {
			return e, fmt.Errorf("decode before_state for entry %s: %w", e.ID, err)
		}
	}
	if len(after) > 0 {
		e.AfterState = &action.Snapshot{}
		if err := json.Unmarshal(after, e.AfterState); err != nil {
			return e, fmt.Errorf("decode after_state for entry %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// AppendActionHistory inserts an entry into the append-only action ledger.
// The entry's ID and ExecutedAt are assigned here when unset.
func (s *Store) AppendActionHistory(ctx context.Context, entry *action.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	if entry.ExecutedBy == "" {
		entry.ExecutedBy = action.ExecutedByAgent
	}

	params := entry.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var before, after any
	if entry.BeforeState != nil {
		data, err := json.Marshal(entry.BeforeState)
		if err != nil {
			return fmt.Errorf("encode before_state: %w", err)
		}
		before = data
	}
	if entry.AfterState != nil {
		data, err := json.Marshal(entry.AfterState)
		if err != nil {
			return fmt.Errorf("encode after_state: %w", err)
		}
		after = data
	}

	_, err := s.db(ctx).Exec(ctx,
		`INSERT INTO action_history (id, ticket_id, action_type, action_params,
		     confidence_score, agent_reasoning, executed_at, executed_by,
		     rollback_possible, before_state, after_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.TicketID, string(entry.Type), []byte(params),
		entry.ConfidenceScore, nullIfEmpty(entry.AgentReasoning),
		entry.ExecutedAt, entry.ExecutedBy, entry.RollbackPossible,
		before, after)
	if err != nil {
		return fmt.Errorf("append action history for ticket %s: %w", entry.TicketID, err)
	}
	return nil
}

// GetActionHistory returns a single ledger entry by ID.
func (s *Store) GetActionHistory(ctx context.Context, id string) (*action.HistoryEntry, error) {
	row := s.db(ctx).QueryRow(ctx,
		`SELECT `+historyColumns+` FROM action_history WHERE id = $1`, id)

	e, err := scanHistoryEntry(row)
	if err != nil {
		return nil, notFoundWrap(err, "get action history %s", id)
	}
	return &e, nil
}

// ListActionHistory returns a ticket's ledger entries, newest first.
func (s *Store) ListActionHistory(ctx context.Context, ticketID string) ([]action.HistoryEntry, error) {
	return s.listHistory(ctx,
		`SELECT `+historyColumns+` FROM action_history
		 WHERE ticket_id = $1 ORDER BY executed_at DESC`, ticketID)
}

// ListActionHistoryAfter returns a ticket's non-rolled-back entries executed
// strictly after the given time, oldest first. Rollback conflict detection
// compares a candidate against these.
func (s *Store) ListActionHistoryAfter(ctx context.Context, ticketID string, after time.Time) ([]action.HistoryEntry, error) {
	return s.listHistory(ctx,
		`SELECT `+historyColumns+` FROM action_history
		 WHERE ticket_id = $1 AND executed_at > $2 AND rolled_back = FALSE
		 ORDER BY executed_at ASC`, ticketID, after)
}

func (s *Store) listHistory(ctx context.Context, query string, args ...any) ([]action.HistoryEntry, error) {
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list action history: %w", err)
	}
	defer rows.Close()

	var entries []action.HistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkRolledBack flips an entry's rolled_back flag exactly once. The
// conditional update makes concurrent rollbacks of the same entry lose
// with action.ErrRollbackConflict.
func (s *Store) MarkRolledBack(ctx context.Context, entryID, actor, reason string, at time.Time) error {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE action_history
		 SET rolled_back = TRUE, rolled_back_at = $2, rolled_back_by = $3, rollback_reason = $4
		 WHERE id = $1 AND rolled_back = FALSE`,
		entryID, at, actor, nullIfEmpty(reason))
	if err != nil {
		return fmt.Errorf("mark rolled back %s: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM action_history WHERE id = $1)`, entryID).Scan(&exists); err != nil {
			return fmt.Errorf("mark rolled back %s: %w", entryID, err)
		}
		if exists {
			return fmt.Errorf("mark rolled back %s: %w", entryID, action.ErrRollbackConflict)
		}
		return fmt.Errorf("mark rolled back %s: %w", entryID, domain.ErrNotFound)
	}
	return nil
}
