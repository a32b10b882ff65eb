package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/resolveq/helpdesk/internal/domain/kb"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/database"
)

// KnowledgeBaseService turns resolved tickets into knowledge-base articles.
// Articles are keyed by their derived title, so repeated resolutions of the
// same issue type update one article instead of accumulating duplicates.
type KnowledgeBaseService struct {
	store database.Store
}

// NewKnowledgeBaseService creates a KnowledgeBaseService.
func NewKnowledgeBaseService(store database.Store) *KnowledgeBaseService {
	return &KnowledgeBaseService{store: store}
}

// SyncFromTicket creates or updates the article derived from a resolved
// ticket. Steps become the article body; the ticket's category and tags
// become article tags.
func (s *KnowledgeBaseService) SyncFromTicket(ctx context.Context, t *ticket.Ticket, steps []string) (*kb.Article, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("sync article for ticket %s: no resolution steps", t.ID)
	}

	tags := make([]string, 0, len(t.Tags)+1)
	if t.Category != "" {
		tags = append(tags, string(t.Category))
	}
	for _, tag := range t.Tags {
		if tag != string(t.Category) {
			tags = append(tags, tag)
		}
	}

	article, err := s.store.UpsertArticleByTitle(ctx, kb.UpsertRequest{
		Title:          kb.DerivedTitle(t.IssueType),
		Content:        renderArticle(t, steps),
		Tags:           tags,
		SourceTicketID: t.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("sync article for ticket %s: %w", t.ID, err)
	}
	return article, nil
}

// Upsert creates or updates an article directly, for the CREATE_KB_ARTICLE
// action on already-resolved tickets.
func (s *KnowledgeBaseService) Upsert(ctx context.Context, req kb.UpsertRequest) (*kb.Article, error) {
	article, err := s.store.UpsertArticleByTitle(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("upsert article %q: %w", req.Title, err)
	}
	return article, nil
}

// GetByTitle returns an article by its exact title.
func (s *KnowledgeBaseService) GetByTitle(ctx context.Context, title string) (*kb.Article, error) {
	return s.store.GetArticleByTitle(ctx, title)
}

// renderArticle formats the resolution steps into a readable article body.
func renderArticle(t *ticket.Ticket, steps []string) string {
	var b strings.Builder
	b.WriteString("Issue: ")
	b.WriteString(t.IssueType)
	b.WriteString("\n\n")
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("Resolution steps:\n")
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return b.String()
}

// RenderSteps formats steps as a numbered list for interactions and
// notifications.
func RenderSteps(steps []string) string {
	var b strings.Builder
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return strings.TrimRight(b.String(), "\n")
}
