// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/kb"
	"github.com/resolveq/helpdesk/internal/domain/resolution"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
)

// Store is the port interface for database operations.
type Store interface {
	// Tickets. SaveTicketFields is a partial update restricted to the
	// named fields; it enforces the optimistic version check and returns
	// domain.ErrConflict when the row moved underneath the caller.
	CreateTicket(ctx context.Context, req ticket.CreateRequest) (*ticket.Ticket, error)
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, error)
	ListTickets(ctx context.Context, status ticket.Status, limit int) ([]ticket.Ticket, error)
	SaveTicketFields(ctx context.Context, t *ticket.Ticket, fields ...string) error
	AppendInteraction(ctx context.Context, ticketID, actorID string, typ ticket.InteractionType, content string) error
	ListInteractions(ctx context.Context, ticketID string, limit int) ([]ticket.Interaction, error)

	// Action history (append-only ledger).
	AppendActionHistory(ctx context.Context, entry *action.HistoryEntry) error
	GetActionHistory(ctx context.Context, id string) (*action.HistoryEntry, error)
	ListActionHistory(ctx context.Context, ticketID string) ([]action.HistoryEntry, error)
	ListActionHistoryAfter(ctx context.Context, ticketID string, after time.Time) ([]action.HistoryEntry, error)
	// MarkRolledBack flips rolled_back false -> true; it returns
	// action.ErrRollbackConflict when the entry was already rolled back.
	MarkRolledBack(ctx context.Context, entryID, actor, reason string, at time.Time) error

	// Resolution tracking.
	GetOrCreateResolution(ctx context.Context, ticketID, autonomousAction string) (*resolution.Tracking, error)
	SaveResolution(ctx context.Context, tr *resolution.Tracking) error
	ResolutionAnalytics(ctx context.Context) (*resolution.Analytics, error)

	// Knowledge base.
	UpsertArticleByTitle(ctx context.Context, req kb.UpsertRequest) (*kb.Article, error)
	GetArticleByTitle(ctx context.Context, title string) (*kb.Article, error)

	// WithTicketLock runs fn while holding the per-ticket advisory lock,
	// serializing concurrent read-decide-mutate-write sequences against
	// the same ticket. Store calls made with the context passed to fn
	// join the same transaction.
	WithTicketLock(ctx context.Context, ticketID string, fn func(ctx context.Context) error) error
}
