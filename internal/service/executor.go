package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/resolveq/helpdesk/internal/adapter/otel"
	"github.com/resolveq/helpdesk/internal/domain"
	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/kb"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/database"
	"github.com/resolveq/helpdesk/internal/port/notifier"
	"github.com/resolveq/helpdesk/internal/port/scheduler"
)

// ActionExecutor applies a decision to a ticket. Each execution runs under
// the per-ticket lock so the before snapshot, the mutation, and the history
// entry commit or roll back as one unit. Notifications and job scheduling
// happen after commit and never undo a committed action.
type ActionExecutor struct {
	store         database.Store
	sched         scheduler.Scheduler
	notify        *NotificationService
	kb            *KnowledgeBaseService
	followupDelay time.Duration
	metrics       *otel.Metrics
}

// NewActionExecutor creates an ActionExecutor.
func NewActionExecutor(store database.Store, sched scheduler.Scheduler, notify *NotificationService, kbSvc *KnowledgeBaseService, followupDelay time.Duration) *ActionExecutor {
	return &ActionExecutor{
		store:         store,
		sched:         sched,
		notify:        notify,
		kb:            kbSvc,
		followupDelay: followupDelay,
	}
}

// SetMetrics attaches the otel instruments. Optional.
func (e *ActionExecutor) SetMetrics(m *otel.Metrics) { e.metrics = m }

// Execute applies the decision to the ticket and returns the recorded
// history entry. A nil entry with a nil error means the action was an
// idempotent no-op (e.g. AUTO_RESOLVE on an already-resolved ticket).
func (e *ActionExecutor) Execute(ctx context.Context, ticketID string, decision action.Decision, now time.Time) (*action.HistoryEntry, error) {
	if !action.Valid(decision.Type) {
		return nil, action.InvalidTypeError(decision.Type)
	}

	ctx, span := otel.StartExecuteSpan(ctx, ticketID, string(decision.Type))
	defer span.End()

	var (
		entry      *action.HistoryEntry
		postCommit []func(context.Context)
	)

	run := func() error {
		entry = nil
		postCommit = postCommit[:0]
		return e.store.WithTicketLock(ctx, ticketID, func(ctx context.Context) error {
			var err error
			entry, postCommit, err = e.apply(ctx, ticketID, decision, now)
			return err
		})
	}

	err := run()
	if errors.Is(err, domain.ErrConflict) {
		// The version moved between read and write inside the lock; one
		// retry picks up the fresh row.
		err = run()
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordActionFailure(ctx, string(decision.Type))
		}
		return nil, fmt.Errorf("execute %s on ticket %s: %w", decision.Type, ticketID, err)
	}
	if entry == nil {
		slog.Info("action skipped, already applied", "ticket_id", ticketID, "action", decision.Type)
		return nil, nil
	}

	if e.metrics != nil {
		e.metrics.RecordAction(ctx, string(decision.Type))
		if decision.Confidence != nil {
			e.metrics.Confidence.Record(ctx, *decision.Confidence)
		}
	}
	slog.Info("action executed",
		"ticket_id", ticketID,
		"action", decision.Type,
		"entry_id", entry.ID,
	)

	for _, fn := range postCommit {
		fn(ctx)
	}
	return entry, nil
}

// apply runs inside the per-ticket transaction. It returns the history
// entry (nil for idempotent no-ops) and the hooks to run after commit.
func (e *ActionExecutor) apply(ctx context.Context, ticketID string, decision action.Decision, now time.Time) (*action.HistoryEntry, []func(context.Context), error) {
	t, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}

	params, err := action.MarshalParams(decision.Params)
	if err != nil {
		return nil, nil, err
	}

	before := snapshot(t)
	entry := &action.HistoryEntry{
		TicketID:         t.ID,
		Type:             decision.Type,
		Params:           params,
		ConfidenceScore:  decision.Confidence,
		AgentReasoning:   decision.Reasoning,
		ExecutedAt:       now,
		ExecutedBy:       action.ExecutedByAgent,
		RollbackPossible: action.Rollbackable(decision.Type),
		BeforeState:      &before,
	}

	var hooks []func(context.Context)

	switch p := decision.Params.(type) {
	case action.AutoResolveParams:
		if t.Status.IsTerminal() {
			// Already resolved or closed; a redelivered resolve must not
			// reopen the ticket or grow the ledger.
			return nil, nil, nil
		}
		t.Status = ticket.StatusResolved
		if err := e.store.SaveTicketFields(ctx, t, ticket.FieldStatus); err != nil {
			return nil, nil, err
		}
		content := "Auto-resolved by agent based on analysis.\n" + RenderSteps(p.Steps)
		if err := e.store.AppendInteraction(ctx, t.ID, action.ExecutedByAgent, ticket.InteractionAgentResponse, content); err != nil {
			return nil, nil, err
		}
		if _, err := e.store.GetOrCreateResolution(ctx, t.ID, string(action.TypeAutoResolve)); err != nil {
			return nil, nil, err
		}
		hooks = append(hooks,
			e.notifyHook(t, notifier.Notification{
				Recipient: t.UserID,
				Title:     "Your ticket has been resolved",
				Message:   "We applied the following fix:\n" + RenderSteps(p.Steps) + "\nReply if the problem persists.",
				Level:     "success",
				Source:    "action.auto_resolve",
			}),
			e.scheduleHook(t.ID, now.Add(e.followupDelay)),
			e.kbSyncHook(t, p.Steps),
		)

	case action.EscalateParams:
		if t.Status == ticket.StatusEscalated {
			return nil, nil, nil
		}
		t.Status = ticket.StatusEscalated
		if err := e.store.SaveTicketFields(ctx, t, ticket.FieldStatus); err != nil {
			return nil, nil, err
		}
		content := "Escalated to human review: " + p.Reason
		if err := e.store.AppendInteraction(ctx, t.ID, action.ExecutedByAgent, ticket.InteractionAgentResponse, content); err != nil {
			return nil, nil, err
		}
		hooks = append(hooks, e.notifyHook(t, notifier.Notification{
			Recipient: t.UserID,
			Title:     "Ticket escalated",
			Message:   fmt.Sprintf("Ticket %s (%s) was escalated: %s", t.ID, t.IssueType, p.Reason),
			Level:     "warning",
			Source:    "action.escalate",
		}))

	case action.ClarificationParams:
		t.Status = ticket.StatusPendingClarification
		if err := e.store.SaveTicketFields(ctx, t, ticket.FieldStatus); err != nil {
			return nil, nil, err
		}
		content := "More information needed: " + joinFields(p.MissingFields)
		if p.Reason != "" {
			content += " (" + p.Reason + ")"
		}
		if err := e.store.AppendInteraction(ctx, t.ID, action.ExecutedByAgent, ticket.InteractionClarificationRequest, content); err != nil {
			return nil, nil, err
		}
		hooks = append(hooks, e.notifyHook(t, notifier.Notification{
			Recipient: t.UserID,
			Title:     "We need more information",
			Message:   "To resolve your ticket, please provide: " + joinFields(p.MissingFields),
			Level:     "info",
			Source:    "action.request_clarification",
		}))

	case action.AssignParams:
		team := p.Team
		t.Status = ticket.StatusAssigned
		t.AssignedTo = &team
		if err := e.store.SaveTicketFields(ctx, t, ticket.FieldStatus, ticket.FieldAssignedTo); err != nil {
			return nil, nil, err
		}
		content := "Assigned to team: " + team
		if err := e.store.AppendInteraction(ctx, t.ID, action.ExecutedByAgent, ticket.InteractionAgentResponse, content); err != nil {
			return nil, nil, err
		}

	case action.FollowupParams:
		content := "Tentative solution sent, follow-up scheduled for " + p.At.UTC().Format(time.RFC3339) + ".\n" + RenderSteps(p.Steps)
		if err := e.store.AppendInteraction(ctx, t.ID, action.ExecutedByAgent, ticket.InteractionAgentResponse, content); err != nil {
			return nil, nil, err
		}
		hooks = append(hooks,
			e.notifyHook(t, notifier.Notification{
				Recipient: t.UserID,
				Title:     "Suggested fix for your ticket",
				Message:   "Please try the following:\n" + RenderSteps(p.Steps) + "\nWe will check back with you.",
				Level:     "info",
				Source:    "action.schedule_followup",
			}),
			e.scheduleHook(t.ID, p.At),
		)

	case action.KBArticleParams:
		if _, err := e.kb.Upsert(ctx, kb.UpsertRequest{
			Title:          p.Title,
			Content:        renderArticle(t, p.Steps),
			Tags:           []string{string(t.Category)},
			SourceTicketID: t.ID,
		}); err != nil {
			return nil, nil, err
		}

	default:
		return nil, nil, action.InvalidTypeError(decision.Type)
	}

	after := snapshot(t)
	entry.AfterState = &after
	if err := e.store.AppendActionHistory(ctx, entry); err != nil {
		return nil, nil, err
	}
	return entry, hooks, nil
}

func (e *ActionExecutor) notifyHook(t *ticket.Ticket, n notifier.Notification) func(context.Context) {
	return func(ctx context.Context) {
		e.notify.Notify(ctx, n)
	}
}

func (e *ActionExecutor) scheduleHook(ticketID string, at time.Time) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := e.sched.Schedule(ctx, scheduler.KindFollowupCheck, ticketID, nil, at); err != nil {
			slog.Error("schedule followup check failed", "ticket_id", ticketID, "error", err)
		}
	}
}

func (e *ActionExecutor) kbSyncHook(t *ticket.Ticket, steps []string) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := e.kb.SyncFromTicket(ctx, t, steps); err != nil {
			slog.Error("kb sync failed", "ticket_id", t.ID, "error", err)
		}
	}
}

func snapshot(t *ticket.Ticket) action.Snapshot {
	return action.Snapshot{
		Status:       string(t.Status),
		AssignedToID: t.AssignedTo,
	}
}

func joinFields(fields []string) string {
	return strings.Join(fields, ", ")
}
