package store

import (
	"context"
	"database/sql"
	"fmt"
)

// An Article is a page that has at least one snippet.
type Article struct {
	PageID string `json:"page_id" yaml:"page_id"`
	URL    string `json:"url" yaml:"url"`
	Title  string `json:"title" yaml:"title"`
}

// A Snippet is a paragraph lacking a citation. Section is the anchor of
// the section it was found in.
type Snippet struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"snippet" yaml:"snippet"`
	Section   string `json:"section" yaml:"section"`
	ArticleID string `json:"article_id" yaml:"article_id"`
}

// WriteArticle stores an article and its snippets as one unit of work,
// retrying on transient errors. Writing the same rows again is harmless.
func (s *Store) WriteArticle(ctx context.Context, a Article, snippets []Snippet) error {
	return s.ExecuteWithRetry(ctx, func(tx *sql.Tx) error {
		return InsertArticle(ctx, tx, a, snippets)
	}, nil)
}

// InsertArticle writes the rows within tx. Snippets whose id is already
// present are skipped.
func InsertArticle(ctx context.Context, tx *sql.Tx, a Article, snippets []Snippet) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO articles (page_id, url, title) VALUES (?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET url = excluded.url, title = excluded.title`,
		a.PageID, a.URL, a.Title)
	if err != nil {
		return fmt.Errorf("inserting article %v: %w", a.PageID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO snippets (id, snippet, section, article_id)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sn := range snippets {
		if _, err := stmt.ExecContext(ctx, sn.ID, sn.Text, sn.Section, sn.ArticleID); err != nil {
			return fmt.Errorf("inserting snippet %v: %w", sn.ID, err)
		}
	}
	return nil
}

// Articles lists every stored article ordered by page id.
func (s *Store) Articles(ctx context.Context) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_id, url, title FROM articles ORDER BY page_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rv []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.PageID, &a.URL, &a.Title); err != nil {
			return nil, err
		}
		rv = append(rv, a)
	}
	return rv, rows.Err()
}

// Snippets lists the snippets of one article, or of all articles when
// pageID is empty.
func (s *Store) Snippets(ctx context.Context, pageID string) ([]Snippet, error) {
	q := `SELECT id, snippet, section, article_id FROM snippets`
	var args []any
	if pageID != "" {
		q += ` WHERE article_id = ?`
		args = append(args, pageID)
	}
	q += ` ORDER BY article_id, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rv []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.ID, &sn.Text, &sn.Section, &sn.ArticleID); err != nil {
			return nil, err
		}
		rv = append(rv, sn)
	}
	return rv, rows.Err()
}

// Counts reports how many articles and snippets are stored.
func (s *Store) Counts(ctx context.Context) (articles, snippets int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM articles), (SELECT COUNT(*) FROM snippets)`).
		Scan(&articles, &snippets)
	return
}
