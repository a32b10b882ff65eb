package postgres

import (
	"context"
	"fmt"

	"github.com/resolveq/helpdesk/internal/domain/resolution"
)

const resolutionColumns = `ticket_id, autonomous_action, resolution_confirmed, feedback_text,
	satisfaction_score, followup_sent_at, response_received_at,
	reopened, reopened_at, reopened_reason, created_at, updated_at`

func scanResolution(row scannable) (resolution.Tracking, error) {
	var (
		tr       resolution.Tracking
		feedback *string
		reason   *string
	)
	err := row.Scan(
		&tr.TicketID, &tr.AutonomousAction, &tr.ResolutionConfirmed, &feedback,
		&tr.SatisfactionScore, &tr.FollowupSentAt, &tr.ResponseReceivedAt,
		&tr.Reopened, &tr.ReopenedAt, &reason, &tr.CreatedAt, &tr.UpdatedAt,
	)
	if err != nil {
		return tr, err
	}
	if feedback != nil {
		tr.FeedbackText = *feedback
	}
	if reason != nil {
		tr.ReopenedReason = *reason
	}
	return tr, nil
}

// GetOrCreateResolution returns the ticket's tracking record, creating an
// empty one bound to the given action when none exists. An existing record
// keeps its original action; creation races resolve to the first writer.
func (s *Store) GetOrCreateResolution(ctx context.Context, ticketID, autonomousAction string) (*resolution.Tracking, error) {
	row := s.db(ctx).QueryRow(ctx,
		`INSERT INTO ticket_resolutions (ticket_id, autonomous_action)
		 VALUES ($1, $2)
		 ON CONFLICT (ticket_id) DO UPDATE SET ticket_id = EXCLUDED.ticket_id
		 RETURNING `+resolutionColumns,
		ticketID, autonomousAction)

	tr, err := scanResolution(row)
	if err != nil {
		return nil, fmt.Errorf("get or create resolution for ticket %s: %w", ticketID, err)
	}
	return &tr, nil
}

// SaveResolution overwrites the mutable fields of a tracking record.
func (s *Store) SaveResolution(ctx context.Context, tr *resolution.Tracking) error {
	tag, err := s.db(ctx).Exec(ctx,
		`UPDATE ticket_resolutions
		 SET resolution_confirmed = $2, feedback_text = $3, satisfaction_score = $4,
		     followup_sent_at = $5, response_received_at = $6,
		     reopened = $7, reopened_at = $8, reopened_reason = $9,
		     updated_at = now()
		 WHERE ticket_id = $1`,
		tr.TicketID, tr.ResolutionConfirmed, nullIfEmpty(tr.FeedbackText),
		tr.SatisfactionScore, tr.FollowupSentAt, tr.ResponseReceivedAt,
		tr.Reopened, tr.ReopenedAt, nullIfEmpty(tr.ReopenedReason))
	return execExpectOne(tag, err, "save resolution for ticket %s", tr.TicketID)
}

// ResolutionAnalytics aggregates outcomes over every tracked ticket. Records
// with unknown outcome count toward the total but neither bucket; the success
// rate divides confirmed successes by records with a known outcome.
func (s *Store) ResolutionAnalytics(ctx context.Context) (*resolution.Analytics, error) {
	var a resolution.Analytics
	err := s.db(ctx).QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE NOT reopened AND (resolution_confirmed IS TRUE OR satisfaction_score >= 4)),
		        count(*) FILTER (WHERE reopened OR resolution_confirmed IS FALSE),
		        count(*) FILTER (WHERE reopened),
		        avg(satisfaction_score)
		 FROM ticket_resolutions`).Scan(
		&a.TotalResolutions, &a.ConfirmedSuccessful, &a.ConfirmedFailed,
		&a.ReopenedTickets, &a.AvgSatisfaction)
	if err != nil {
		return nil, fmt.Errorf("resolution analytics: %w", err)
	}
	if known := a.ConfirmedSuccessful + a.ConfirmedFailed; known > 0 {
		a.SuccessRate = float64(a.ConfirmedSuccessful) / float64(known)
	}

	rows, err := s.db(ctx).Query(ctx,
		`SELECT autonomous_action,
		        count(*),
		        count(*) FILTER (WHERE NOT reopened AND (resolution_confirmed IS TRUE OR satisfaction_score >= 4)),
		        count(*) FILTER (WHERE reopened OR resolution_confirmed IS FALSE)
		 FROM ticket_resolutions
		 GROUP BY autonomous_action
		 ORDER BY autonomous_action`)
	if err != nil {
		return nil, fmt.Errorf("resolution analytics breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b resolution.ActionBreakdown
		if err := rows.Scan(&b.AutonomousAction, &b.Total, &b.Confirmed, &b.Failed); err != nil {
			return nil, fmt.Errorf("scan analytics breakdown: %w", err)
		}
		a.ByAction = append(a.ByAction, b)
	}
	return &a, rows.Err()
}
