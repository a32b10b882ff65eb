// Package kb provides the domain model for knowledge-base articles
// auto-generated from resolved tickets.
package kb

import (
	"errors"
	"time"
)

// Article is a knowledge-base entry keyed by its derived title. Repeated
// resolutions of the same issue type update the existing article rather
// than creating duplicates.
type Article struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Tags           []string  `json:"tags"`
	SourceTicketID string    `json:"source_ticket_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpsertRequest holds the input for create-or-update by title.
type UpsertRequest struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags"`
	SourceTicketID string   `json:"source_ticket_id"`
}

// Validate checks that an UpsertRequest is well-formed.
func (r *UpsertRequest) Validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// DerivedTitle builds the canonical article title for a resolved issue type.
func DerivedTitle(issueType string) string {
	return "Resolved: " + issueType
}
