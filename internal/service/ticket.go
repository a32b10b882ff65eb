package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resolveq/helpdesk/internal/adapter/otel"
	"github.com/resolveq/helpdesk/internal/adapter/ws"
	"github.com/resolveq/helpdesk/internal/config"
	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/database"
	"github.com/resolveq/helpdesk/internal/port/messagequeue"
	"github.com/resolveq/helpdesk/internal/port/scoring"
	"github.com/resolveq/helpdesk/internal/resilience"
)

// TicketService owns ticket intake and the scoring pipeline: persist,
// publish, score, decide, execute. Scoring runs off the created-ticket
// queue subject so intake latency never depends on the scoring service.
type TicketService struct {
	store    database.Store
	queue    messagequeue.Queue
	scorer   scoring.Client
	policy   *DecisionPolicy
	executor *ActionExecutor
	agentCfg config.Agent
	hub      *ws.Hub
	metrics  *otel.Metrics
}

// NewTicketService creates a TicketService.
func NewTicketService(store database.Store, queue messagequeue.Queue, scorer scoring.Client, policy *DecisionPolicy, executor *ActionExecutor, agentCfg config.Agent) *TicketService {
	return &TicketService{
		store:    store,
		queue:    queue,
		scorer:   scorer,
		policy:   policy,
		executor: executor,
		agentCfg: agentCfg,
	}
}

// SetHub attaches the websocket hub for the admin live feed. Optional.
func (s *TicketService) SetHub(h *ws.Hub) { s.hub = h }

// SetMetrics attaches the otel instruments. Optional.
func (s *TicketService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// Create persists a new ticket and queues it for scoring.
func (s *TicketService) Create(ctx context.Context, req ticket.CreateRequest) (*ticket.Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate ticket: %w", err)
	}

	t, err := s.store.CreateTicket(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Description != "" {
		if err := s.store.AppendInteraction(ctx, t.ID, t.UserID, ticket.InteractionUserMessage, req.Description); err != nil {
			slog.Error("append intake interaction failed", "ticket_id", t.ID, "error", err)
		}
	}

	payload, _ := json.Marshal(messagequeue.TicketCreatedPayload{
		TicketID: t.ID,
		UserID:   t.UserID,
		Category: string(t.Category),
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectTicketCreated, payload); err != nil {
		// The ticket exists; a manual reprocess can recover scoring.
		slog.Error("publish ticket created failed", "ticket_id", t.ID, "error", err)
	}

	return t, nil
}

// Get returns a ticket by ID.
func (s *TicketService) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	return s.store.GetTicket(ctx, id)
}

// List returns tickets, optionally filtered by status.
func (s *TicketService) List(ctx context.Context, status ticket.Status, limit int) ([]ticket.Ticket, error) {
	return s.store.ListTickets(ctx, status, limit)
}

// Interactions returns a ticket's conversation log.
func (s *TicketService) Interactions(ctx context.Context, ticketID string, limit int) ([]ticket.Interaction, error) {
	return s.store.ListInteractions(ctx, ticketID, limit)
}

// ActionHistory returns a ticket's action ledger, newest first.
func (s *TicketService) ActionHistory(ctx context.Context, ticketID string) ([]action.HistoryEntry, error) {
	return s.store.ListActionHistory(ctx, ticketID)
}

// Reprocess re-queues a ticket whose scoring previously failed.
func (s *TicketService) Reprocess(ctx context.Context, ticketID, requestedBy string) error {
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		return err
	}
	payload, _ := json.Marshal(messagequeue.TicketReprocessPayload{
		TicketID:    ticketID,
		RequestedBy: requestedBy,
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectTicketReprocess, payload); err != nil {
		return fmt.Errorf("publish reprocess for ticket %s: %w", ticketID, err)
	}
	return nil
}

// ProcessWithAgent runs one score-decide-execute cycle for the ticket.
// Already-processed tickets are skipped, which makes at-least-once queue
// delivery safe. Scoring failures leave the ticket unprocessed so the
// message nak/redelivery or a manual reprocess can pick it up again.
func (s *TicketService) ProcessWithAgent(ctx context.Context, ticketID string) error {
	ctx, span := otel.StartProcessSpan(ctx, ticketID)
	defer span.End()

	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("process ticket %s: %w", ticketID, err)
	}
	if t.AgentProcessed {
		slog.Debug("ticket already processed, skipping", "ticket_id", ticketID)
		return nil
	}

	sig, err := s.analyze(ctx, t)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ScoringFailures.Add(ctx, 1)
		}
		return fmt.Errorf("score ticket %s: %w", ticketID, err)
	}

	t.AgentResponse = sig
	t.AgentProcessed = true
	if err := s.store.SaveTicketFields(ctx, t, ticket.FieldAgentResponse, ticket.FieldAgentProcessed); err != nil {
		return fmt.Errorf("store signal for ticket %s: %w", ticketID, err)
	}

	now := time.Now().UTC()
	decision := s.policy.Decide(t, now)
	entry, err := s.executor.Execute(ctx, ticketID, decision, now)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	s.announce(ctx, entry)
	return nil
}

// analyze calls the scoring service with exponential backoff. Only
// transient failures retry; 4xx responses and open-breaker rejections
// surface immediately through the wrapped error.
func (s *TicketService) analyze(ctx context.Context, t *ticket.Ticket) (*ticket.Signal, error) {
	req := scoring.Request{
		TicketID:    t.ID,
		IssueType:   t.IssueType,
		Description: t.Description,
		Category:    string(t.Category),
		Tags:        t.Tags,
		User: scoring.User{
			ID:         t.UserID,
			Name:       t.UserName,
			Department: t.Department,
		},
	}

	var (
		sig      *ticket.Signal
		terminal error
	)
	err := resilience.Retry(ctx, s.agentCfg.MaxRetries, s.agentCfg.RetryBase, func(ctx context.Context) error {
		result, callErr := s.scorer.Analyze(ctx, req)
		if callErr == nil {
			sig = result
			return nil
		}
		if errors.Is(callErr, scoring.ErrUnavailable) {
			return callErr
		}
		// Terminal; burning retries on it would not help. Stop the loop
		// and surface it below.
		terminal = callErr
		return nil
	})
	if err != nil {
		return nil, err
	}
	if terminal != nil {
		return nil, terminal
	}
	return sig, nil
}

// announce publishes the executed action to the queue and the admin feed.
func (s *TicketService) announce(ctx context.Context, entry *action.HistoryEntry) {
	payload, _ := json.Marshal(messagequeue.ActionExecutedPayload{
		EntryID:    entry.ID,
		TicketID:   entry.TicketID,
		ActionType: string(entry.Type),
		Confidence: entry.ConfidenceScore,
		Success:    true,
	})
	if err := s.queue.Publish(ctx, messagequeue.SubjectActionExecuted, payload); err != nil {
		slog.Error("publish action executed failed", "entry_id", entry.ID, "error", err)
	}

	if s.hub != nil {
		status := ""
		if entry.AfterState != nil {
			status = entry.AfterState.Status
		}
		s.hub.BroadcastEvent(ctx, ws.EventActionExecuted, ws.ActionExecutedEvent{
			TicketID:   entry.TicketID,
			EntryID:    entry.ID,
			ActionType: string(entry.Type),
			Confidence: entry.ConfidenceScore,
			Status:     status,
		})
	}
}

// SubscribeCreated wires the scoring pipeline to the created and reprocess
// subjects. The returned cancel funcs stop the consumers.
func (s *TicketService) SubscribeCreated(ctx context.Context) ([]func(), error) {
	var cancels []func()

	handler := func(ctx context.Context, subject string, data []byte) error {
		var ticketID string
		switch subject {
		case messagequeue.SubjectTicketCreated:
			var p messagequeue.TicketCreatedPayload
			if err := json.Unmarshal(data, &p); err != nil {
				slog.Error("drop malformed message", "subject", subject, "error", err)
				return nil
			}
			ticketID = p.TicketID
		case messagequeue.SubjectTicketReprocess:
			var p messagequeue.TicketReprocessPayload
			if err := json.Unmarshal(data, &p); err != nil {
				slog.Error("drop malformed message", "subject", subject, "error", err)
				return nil
			}
			ticketID = p.TicketID
		default:
			return nil
		}
		return s.ProcessWithAgent(ctx, ticketID)
	}

	for _, subject := range []string{messagequeue.SubjectTicketCreated, messagequeue.SubjectTicketReprocess} {
		cancel, err := s.queue.Subscribe(ctx, subject, handler)
		if err != nil {
			for _, c := range cancels {
				c()
			}
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, cancel)
	}
	return cancels, nil
}
