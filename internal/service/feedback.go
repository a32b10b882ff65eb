package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/resolveq/helpdesk/internal/adapter/otel"
	"github.com/resolveq/helpdesk/internal/adapter/ws"
	"github.com/resolveq/helpdesk/internal/domain"
	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/resolution"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/cache"
	"github.com/resolveq/helpdesk/internal/port/database"
	"github.com/resolveq/helpdesk/internal/port/notifier"
)

// followupEscalationReason is recorded when a follow-up check finds the
// ticket still unresolved.
const followupEscalationReason = "Solution did not resolve issue within expected timeframe"

// FeedbackTracker records whether autonomous resolutions actually held.
// Negative feedback reopens the ticket; follow-up checks ask the user for
// confirmation or re-escalate tickets that never reached resolution.
type FeedbackTracker struct {
	store    database.Store
	notify   *NotificationService
	executor *ActionExecutor
	metrics  *otel.Metrics
	hub      *ws.Hub

	cache    cache.Cache
	cacheTTL time.Duration
}

// NewFeedbackTracker creates a FeedbackTracker.
func NewFeedbackTracker(store database.Store, notify *NotificationService, executor *ActionExecutor) *FeedbackTracker {
	return &FeedbackTracker{store: store, notify: notify, executor: executor}
}

// SetMetrics attaches the otel instruments. Optional.
func (f *FeedbackTracker) SetMetrics(m *otel.Metrics) { f.metrics = m }

// SetCache attaches an in-process cache for the analytics snapshot. Optional.
func (f *FeedbackTracker) SetCache(c cache.Cache, ttl time.Duration) {
	f.cache = c
	f.cacheTTL = ttl
}

// SetHub attaches the websocket hub for the admin live feed. Optional.
func (f *FeedbackTracker) SetHub(h *ws.Hub) { f.hub = h }

// SubmitFeedback stores the user's verdict on a resolution. Repeated
// submissions overwrite the previous snapshot. An explicit "not resolved"
// reopens the ticket and escalates it to a human.
func (f *FeedbackTracker) SubmitFeedback(ctx context.Context, ticketID string, req resolution.FeedbackRequest) (*resolution.Tracking, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("feedback for ticket %s: %w: %s", ticketID, domain.ErrValidation, err)
	}

	now := time.Now().UTC()
	var tr *resolution.Tracking
	reopened := false

	err := f.store.WithTicketLock(ctx, ticketID, func(ctx context.Context) error {
		t, err := f.store.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}

		tr, err = f.store.GetOrCreateResolution(ctx, ticketID, resolution.ActionManual)
		if err != nil {
			return err
		}

		tr.ResolutionConfirmed = req.Confirmed
		tr.SatisfactionScore = req.Satisfaction
		tr.FeedbackText = req.Text
		tr.ResponseReceivedAt = &now

		if req.Confirmed != nil && !*req.Confirmed && !tr.Reopened {
			tr.Reopened = true
			tr.ReopenedAt = &now
			tr.ReopenedReason = req.Text
			if tr.ReopenedReason == "" {
				tr.ReopenedReason = "user reported the issue is not resolved"
			}
			reopened = true

			t.Status = ticket.StatusEscalated
			if err := f.store.SaveTicketFields(ctx, t, ticket.FieldStatus); err != nil {
				return err
			}
		}

		if err := f.store.SaveResolution(ctx, tr); err != nil {
			return err
		}

		content := "User feedback received"
		if req.Satisfaction != nil {
			content += fmt.Sprintf(" (satisfaction %d/5)", *req.Satisfaction)
		}
		if req.Text != "" {
			content += ": " + req.Text
		}
		return f.store.AppendInteraction(ctx, ticketID, t.UserID, ticket.InteractionFeedback, content)
	})
	if err != nil {
		return nil, fmt.Errorf("feedback for ticket %s: %w", ticketID, err)
	}

	if reopened {
		if f.metrics != nil {
			f.metrics.TicketsReopened.Add(ctx, 1)
		}
		if f.hub != nil {
			f.hub.BroadcastEvent(ctx, ws.EventTicketReopened, ws.TicketReopenedEvent{
				TicketID: ticketID,
				Reason:   tr.ReopenedReason,
			})
		}
		slog.Info("ticket reopened on negative feedback", "ticket_id", ticketID)
	}
	return tr, nil
}

// RunFollowupCheck verifies that a resolution held. Resolved and closed
// tickets get a one-time confirmation prompt; anything else re-escalates.
// Safe to fire more than once for the same ticket.
func (f *FeedbackTracker) RunFollowupCheck(ctx context.Context, ticketID string) error {
	t, err := f.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("followup check for ticket %s: %w", ticketID, err)
	}

	if !t.Status.IsTerminal() {
		decision := action.Decision{
			Type:   action.TypeEscalate,
			Params: action.EscalateParams{Reason: followupEscalationReason},
		}
		if _, err := f.executor.Execute(ctx, ticketID, decision, time.Now().UTC()); err != nil {
			return fmt.Errorf("followup escalation for ticket %s: %w", ticketID, err)
		}
		return nil
	}

	var prompt bool
	err = f.store.WithTicketLock(ctx, ticketID, func(ctx context.Context) error {
		tr, err := f.store.GetOrCreateResolution(ctx, ticketID, resolution.ActionManual)
		if err != nil {
			return err
		}
		if tr.FollowupSentAt != nil {
			// Duplicate firing; the prompt already went out.
			return nil
		}
		if tr.ResponseReceivedAt != nil {
			// The user answered before the follow-up fired. Prompting now
			// would ask a question that was already resolved, and stamping
			// followup_sent_at would put it after response_received_at.
			return nil
		}
		now := time.Now().UTC()
		tr.FollowupSentAt = &now
		prompt = true
		return f.store.SaveResolution(ctx, tr)
	})
	if err != nil {
		return fmt.Errorf("followup check for ticket %s: %w", ticketID, err)
	}

	if prompt {
		f.notify.Notify(ctx, notifier.Notification{
			Recipient: t.UserID,
			Title:     "Is your issue resolved?",
			Message:   fmt.Sprintf("We resolved your ticket %q. Please confirm the fix held, or let us know if the problem came back.", t.IssueType),
			Level:     "info",
			Source:    "followup.check",
		})
	}
	return nil
}

const analyticsCacheKey = "analytics:resolutions"

// Analytics aggregates resolution outcomes, served from the in-process
// cache when one is attached. The snapshot may lag writes by up to the
// cache TTL.
func (f *FeedbackTracker) Analytics(ctx context.Context) (*resolution.Analytics, error) {
	if f.cache != nil {
		if data, ok, err := f.cache.Get(ctx, analyticsCacheKey); err == nil && ok {
			var a resolution.Analytics
			if err := json.Unmarshal(data, &a); err == nil {
				return &a, nil
			}
		}
	}

	a, err := f.store.ResolutionAnalytics(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolution analytics: %w", err)
	}

	if f.cache != nil {
		if data, err := json.Marshal(a); err == nil {
			if err := f.cache.Set(ctx, analyticsCacheKey, data, f.cacheTTL); err != nil {
				slog.Debug("cache analytics failed", "error", err)
			}
		}
	}
	return a, nil
}
