// Package scheduler defines the delayed-job port (interface) for follow-up
// verification checks and other deferred callbacks.
package scheduler

import (
	"context"
	"encoding/json"
	"time"
)

// JobKind names a category of scheduled work.
type JobKind string

const (
	// KindFollowupCheck re-verifies that a resolution held. Fired at least
	// once at or after the scheduled time; handlers must be idempotent.
	KindFollowupCheck JobKind = "followup_check"
)

// Job is one unit of deferred work.
type Job struct {
	ID          string          `json:"id"`
	Kind        JobKind         `json:"kind"`
	TicketID    string          `json:"ticket_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RunAt       time.Time       `json:"run_at"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CanceledAt  *time.Time      `json:"canceled_at,omitempty"`
}

// Scheduler is the port interface for durable delayed callbacks.
type Scheduler interface {
	// Schedule registers a job to run at or after runAt. Returns the job id.
	Schedule(ctx context.Context, kind JobKind, ticketID string, payload any, runAt time.Time) (string, error)

	// Cancel marks all pending jobs of the given kind for the ticket as
	// canceled. Canceling a job that already ran is a no-op.
	Cancel(ctx context.Context, kind JobKind, ticketID string) error

	// Due claims up to limit jobs whose run_at has passed. Claimed jobs
	// are invisible to concurrent pollers until released by MarkDone or
	// transaction rollback.
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// MarkDone records that a claimed job finished.
	MarkDone(ctx context.Context, jobID string) error
}
