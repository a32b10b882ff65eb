package postgres

import (
	"context"
	"fmt"

	"github.com/resolveq/helpdesk/internal/domain/kb"
)

const articleColumns = `id, title, content, tags, source_ticket_id, created_at, updated_at`

func scanArticle(row scannable) (kb.Article, error) {
	var (
		a      kb.Article
		source *string
	)
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Tags, &source, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if source != nil {
		a.SourceTicketID = *source
	}
	return a, nil
}

// UpsertArticleByTitle creates an article or, when the title already exists,
// replaces its content and tags in place. The source ticket is recorded on
// creation and updated to the latest contributing ticket.
func (s *Store) UpsertArticleByTitle(ctx context.Context, req kb.UpsertRequest) (*kb.Article, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("upsert article: %w", err)
	}

	row := s.db(ctx).QueryRow(ctx,
		`INSERT INTO kb_articles (title, content, tags, source_ticket_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (title) DO UPDATE
		 SET content = EXCLUDED.content,
		     tags = EXCLUDED.tags,
		     source_ticket_id = EXCLUDED.source_ticket_id,
		     updated_at = now()
		 RETURNING `+articleColumns,
		req.Title, req.Content, pgTextArray(req.Tags), nullIfEmpty(req.SourceTicketID))

	a, err := scanArticle(row)
	if err != nil {
		return nil, fmt.Errorf("upsert article %q: %w", req.Title, err)
	}
	return &a, nil
}

// GetArticleByTitle returns an article by its exact title.
func (s *Store) GetArticleByTitle(ctx context.Context, title string) (*kb.Article, error) {
	row := s.db(ctx).QueryRow(ctx,
		`SELECT `+articleColumns+` FROM kb_articles WHERE title = $1`, title)

	a, err := scanArticle(row)
	if err != nil {
		return nil, notFoundWrap(err, "get article %q", title)
	}
	return &a, nil
}
