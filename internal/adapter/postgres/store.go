package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resolveq/helpdesk/internal/domain"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTicketLock runs fn inside a transaction holding the per-ticket
// advisory lock. Store calls made with the context passed to fn join the
// same transaction, so a read-decide-mutate-write sequence commits or
// rolls back as one unit.
func (s *Store) WithTicketLock(ctx context.Context, ticketID string, fn func(ctx context.Context) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, ticketID); err != nil {
			return fmt.Errorf("acquire ticket lock %s: %w", ticketID, err)
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// --- Tickets ---

const ticketColumns = `id, user_id, user_name, department, issue_type, status, description,
	category, tags, assigned_to, agent_response, agent_processed, version, created_at, updated_at`

func scanTicket(row scannable) (ticket.Ticket, error) {
	var (
		t         ticket.Ticket
		agentJSON []byte
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.UserName, &t.Department, &t.IssueType, &t.Status,
		&t.Description, &t.Category, &t.Tags, &t.AssignedTo, &agentJSON,
		&t.AgentProcessed, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	if len(agentJSON) > 0 {
		var sig ticket.Signal
		if err := json.Unmarshal(agentJSON, &sig); err != nil {
			return t, fmt.Errorf("decode agent_response for ticket %s: %w", t.ID, err)
		}
		t.AgentResponse = &sig
	}
	return t, nil
}

// CreateTicket inserts a new ticket in status "new".
func (s *Store) CreateTicket(ctx context.Context, req ticket.CreateRequest) (*ticket.Ticket, error) {
	row := s.db(ctx).QueryRow(ctx,
		`INSERT INTO tickets (user_id, user_name, department, issue_type, description, category, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+ticketColumns,
		req.UserID, req.UserName, req.Department, req.IssueType,
		req.Description, string(req.Category), pgTextArray(req.Tags))

	t, err := scanTicket(row)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	return &t, nil
}

// GetTicket returns a ticket by ID.
func (s *Store) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	row := s.db(ctx).QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)

	t, err := scanTicket(row)
	if err != nil {
		return nil, notFoundWrap(err, "get ticket %s", id)
	}
	return &t, nil
}

// ListTickets returns tickets, newest first, optionally filtered by status.
func (s *Store) ListTickets(ctx context.Context, status ticket.Status, limit int) ([]ticket.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT ` + ticketColumns + ` FROM tickets`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(status))
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// ticketColumnExprs maps the mutable field names to their SQL assignments.
// Only these columns may be touched through SaveTicketFields.
var ticketColumnExprs = map[string]string{
	ticket.FieldStatus:         "status",
	ticket.FieldAssignedTo:     "assigned_to",
	ticket.FieldAgentResponse:  "agent_response",
	ticket.FieldAgentProcessed: "agent_processed",
}

// SaveTicketFields applies a partial update restricted to the named fields,
// bumping the version and enforcing the optimistic version check. Returns
// domain.ErrConflict when the row was modified concurrently.
func (s *Store) SaveTicketFields(ctx context.Context, t *ticket.Ticket, fields ...string) error {
	if len(fields) == 0 {
		return fmt.Errorf("save ticket %s: no fields: %w", t.ID, domain.ErrValidation)
	}

	sets := make([]string, 0, len(fields)+2)
	args := []any{t.ID, t.Version}
	for _, f := range fields {
		col, ok := ticketColumnExprs[f]
		if !ok {
			return fmt.Errorf("save ticket %s: field %q not mutable: %w", t.ID, f, domain.ErrValidation)
		}

		var val any
		switch f {
		case ticket.FieldStatus:
			val = string(t.Status)
		case ticket.FieldAssignedTo:
			val = t.AssignedTo
		case ticket.FieldAgentProcessed:
			val = t.AgentProcessed
		case ticket.FieldAgentResponse:
			if t.AgentResponse == nil {
				val = nil
			} else {
				data, err := json.Marshal(t.AgentResponse)
				if err != nil {
					return fmt.Errorf("encode agent_response for ticket %s: %w", t.ID, err)
				}
				val = data
			}
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")

	tag, err := s.db(ctx).Exec(ctx,
		fmt.Sprintf(`UPDATE tickets SET %s WHERE id = $1 AND version = $2`, strings.Join(sets, ", ")),
		args...)
	if err != nil {
		return fmt.Errorf("save ticket %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Row exists with a different version, or not at all.
		var exists bool
		if err := s.db(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("save ticket %s: %w", t.ID, err)
		}
		if exists {
			return fmt.Errorf("save ticket %s: %w", t.ID, domain.ErrConflict)
		}
		return fmt.Errorf("save ticket %s: %w", t.ID, domain.ErrNotFound)
	}

	t.Version++
	return nil
}

// AppendInteraction adds an entry to the ticket's conversation log.
func (s *Store) AppendInteraction(ctx context.Context, ticketID, actorID string, typ ticket.InteractionType, content string) error {
	_, err := s.db(ctx).Exec(ctx,
		`INSERT INTO ticket_interactions (ticket_id, actor_id, interaction_type, content)
		 VALUES ($1, $2, $3, $4)`,
		ticketID, actorID, string(typ), content)
	if err != nil {
		return fmt.Errorf("append interaction for ticket %s: %w", ticketID, err)
	}
	return nil
}

// ListInteractions returns the newest interactions for a ticket.
func (s *Store) ListInteractions(ctx context.Context, ticketID string, limit int) ([]ticket.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db(ctx).Query(ctx,
		`SELECT id, ticket_id, actor_id, interaction_type, content, created_at
		 FROM ticket_interactions WHERE ticket_id = $1
		 ORDER BY created_at DESC LIMIT $2`, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions for ticket %s: %w", ticketID, err)
	}
	defer rows.Close()

	var interactions []ticket.Interaction
	for rows.Next() {
		var in ticket.Interaction
		if err := rows.Scan(&in.ID, &in.TicketID, &in.ActorID, &in.Type, &in.Content, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}
