// Package scoring defines the port for the external AI scoring service
// that analyzes tickets and proposes resolutions.
package scoring

import (
	"context"
	"errors"

	"github.com/resolveq/helpdesk/internal/domain/ticket"
)

// ErrUnavailable wraps transient transport failures (timeouts, non-2xx).
// Callers retry these with backoff; terminal failure leaves the ticket
// unprocessed for later reprocessing.
var ErrUnavailable = errors.New("scoring service unavailable")

// Request is the analysis request sent per ticket.
type Request struct {
	TicketID    string   `json:"ticket_id"`
	IssueType   string   `json:"issue_type"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	User        User     `json:"user"`
}

// User identifies the requester for the scoring service.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
}

// Client is the port interface for the AI scoring service.
type Client interface {
	// Analyze submits a ticket and returns the confidence signal.
	// The returned signal is stored verbatim as the ticket's agent response.
	Analyze(ctx context.Context, req Request) (*ticket.Signal, error)
}
