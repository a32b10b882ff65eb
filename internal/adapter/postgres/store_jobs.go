package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolveq/helpdesk/internal/port/scheduler"
)

// jobLease is how long a claimed job stays invisible to other pollers
// before it becomes eligible for redelivery.
const jobLease = 5 * time.Minute

// JobStore implements scheduler.Scheduler on the scheduled_jobs table.
// Jobs are claimed with FOR UPDATE SKIP LOCKED plus a lease, so multiple
// engine instances can poll concurrently and a crashed worker's jobs are
// redelivered once the lease expires.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore creates a JobStore backed by the given connection pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Schedule registers a job to run at or after runAt.
func (j *JobStore) Schedule(ctx context.Context, kind scheduler.JobKind, ticketID string, payload any, runAt time.Time) (string, error) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode job payload: %w", err)
		}
	}

	id := uuid.NewString()
	_, err := j.pool.Exec(ctx,
		`INSERT INTO scheduled_jobs (id, kind, ticket_id, payload, run_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, string(kind), ticketID, data, runAt)
	if err != nil {
		return "", fmt.Errorf("schedule %s job for ticket %s: %w", kind, ticketID, err)
	}
	return id, nil
}

// Cancel marks all pending jobs of the given kind for the ticket as canceled.
func (j *JobStore) Cancel(ctx context.Context, kind scheduler.JobKind, ticketID string) error {
	_, err := j.pool.Exec(ctx,
		`UPDATE scheduled_jobs SET canceled_at = now()
		 WHERE kind = $1 AND ticket_id = $2
		   AND completed_at IS NULL AND canceled_at IS NULL`,
		string(kind), ticketID)
	if err != nil {
		return fmt.Errorf("cancel %s jobs for ticket %s: %w", kind, ticketID, err)
	}
	return nil
}

// Due claims up to limit runnable jobs, extending their lease so other
// pollers skip them. Completed and canceled jobs are never returned.
func (j *JobStore) Due(ctx context.Context, now time.Time, limit int) ([]scheduler.Job, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := j.pool.Query(ctx,
		`UPDATE scheduled_jobs SET claimed_until = $1
		 WHERE id IN (
		     SELECT id FROM scheduled_jobs
		     WHERE run_at <= $2
		       AND completed_at IS NULL AND canceled_at IS NULL
		       AND (claimed_until IS NULL OR claimed_until <= $2)
		     ORDER BY run_at
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, kind, ticket_id, payload, run_at, created_at, completed_at, canceled_at`,
		now.Add(jobLease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []scheduler.Job
	for rows.Next() {
		var (
			job     scheduler.Job
			payload []byte
		)
		if err := rows.Scan(&job.ID, &job.Kind, &job.TicketID, &payload,
			&job.RunAt, &job.CreatedAt, &job.CompletedAt, &job.CanceledAt); err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		job.Payload = json.RawMessage(payload)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkDone records that a claimed job finished.
func (j *JobStore) MarkDone(ctx context.Context, jobID string) error {
	tag, err := j.pool.Exec(ctx,
		`UPDATE scheduled_jobs SET completed_at = now()
		 WHERE id = $1 AND completed_at IS NULL`,
		jobID)
	return execExpectOne(tag, err, "mark job %s done", jobID)
}
