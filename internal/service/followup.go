package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/resolveq/helpdesk/internal/config"
	"github.com/resolveq/helpdesk/internal/port/scheduler"
)

// FollowupRunner polls the durable job store and dispatches due follow-up
// checks. Delivery is at-least-once: a job whose handler fails keeps its
// claim until the lease expires and is then redelivered, so handlers must
// be idempotent.
type FollowupRunner struct {
	sched    scheduler.Scheduler
	tracker  *FeedbackTracker
	interval time.Duration
	batch    int
}

// NewFollowupRunner creates a FollowupRunner.
func NewFollowupRunner(sched scheduler.Scheduler, tracker *FeedbackTracker, cfg config.Scheduler) *FollowupRunner {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &FollowupRunner{
		sched:    sched,
		tracker:  tracker,
		interval: interval,
		batch:    batch,
	}
}

// Run polls until the context is canceled. It returns the context error,
// which lets an errgroup treat shutdown as clean.
func (r *FollowupRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick claims and dispatches one batch of due jobs.
func (r *FollowupRunner) tick(ctx context.Context) {
	jobs, err := r.sched.Due(ctx, time.Now().UTC(), r.batch)
	if err != nil {
		slog.Error("claim due jobs failed", "error", err)
		return
	}

	for _, job := range jobs {
		if err := r.dispatch(ctx, job); err != nil {
			slog.Error("followup job failed",
				"job_id", job.ID,
				"kind", job.Kind,
				"ticket_id", job.TicketID,
				"error", err,
			)
			continue
		}
		if err := r.sched.MarkDone(ctx, job.ID); err != nil {
			slog.Error("mark job done failed", "job_id", job.ID, "error", err)
		}
	}
}

func (r *FollowupRunner) dispatch(ctx context.Context, job scheduler.Job) error {
	switch job.Kind {
	case scheduler.KindFollowupCheck:
		return r.tracker.RunFollowupCheck(ctx, job.TicketID)
	default:
		slog.Warn("unknown job kind, dropping", "job_id", job.ID, "kind", job.Kind)
		return nil
	}
}
