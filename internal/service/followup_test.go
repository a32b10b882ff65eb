package service

import (
	"context"
	"testing"
	"time"

	"github.com/resolveq/helpdesk/internal/config"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/scheduler"
)

func newRunnerEnv() (*feedbackEnv, *FollowupRunner) {
	env := newFeedbackEnv()
	runner := NewFollowupRunner(env.sched, env.tracker, config.Scheduler{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
	})
	return env, runner
}

func TestFollowupRunnerDispatchesDueJobs(t *testing.T) {
	env, runner := newRunnerEnv()
	tk := env.store.addTicket(newTicket(ticket.StatusResolved))
	_, _ = env.sched.Schedule(context.Background(), scheduler.KindFollowupCheck, tk.ID, nil, time.Now().UTC().Add(-time.Minute))

	runner.tick(context.Background())

	if env.rec.count() != 1 {
		t.Fatalf("notifications = %d, want 1 confirmation prompt", env.rec.count())
	}
	if n := env.sched.pending(scheduler.KindFollowupCheck, tk.ID); n != 0 {
		t.Fatalf("pending jobs = %d, want 0 after MarkDone", n)
	}
}

func TestFollowupRunnerSkipsFutureJobs(t *testing.T) {
	env, runner := newRunnerEnv()
	tk := env.store.addTicket(newTicket(ticket.StatusResolved))
	_, _ = env.sched.Schedule(context.Background(), scheduler.KindFollowupCheck, tk.ID, nil, time.Now().UTC().Add(time.Hour))

	runner.tick(context.Background())

	if env.rec.count() != 0 {
		t.Fatal("future job was dispatched early")
	}
	if n := env.sched.pending(scheduler.KindFollowupCheck, tk.ID); n != 1 {
		t.Fatalf("pending jobs = %d, want 1", n)
	}
}

func TestFollowupRunnerKeepsFailedJobs(t *testing.T) {
	env, runner := newRunnerEnv()
	// Job for a ticket that does not exist; the handler fails and the job
	// must stay pending for redelivery.
	_, _ = env.sched.Schedule(context.Background(), scheduler.KindFollowupCheck, "missing", nil, time.Now().UTC().Add(-time.Minute))

	runner.tick(context.Background())

	if n := env.sched.pending(scheduler.KindFollowupCheck, "missing"); n != 1 {
		t.Fatalf("pending jobs = %d, want 1 for redelivery", n)
	}
}

func TestFollowupRunnerDropsUnknownKind(t *testing.T) {
	env, runner := newRunnerEnv()
	_, _ = env.sched.Schedule(context.Background(), scheduler.JobKind("mystery"), "t-1", nil, time.Now().UTC().Add(-time.Minute))

	runner.tick(context.Background())

	if n := env.sched.pending(scheduler.JobKind("mystery"), "t-1"); n != 0 {
		t.Fatalf("pending jobs = %d, want 0, unknown kinds are acked", n)
	}
}

func TestFollowupRunnerStopsOnContextCancel(t *testing.T) {
	_, runner := newRunnerEnv()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
