package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/citationhunt/chparse/mirror"
	"github.com/citationhunt/chparse/store"
)

// ErrDuplicateArticle means the same page reached the writer twice in one
// run, which the dispatcher should make impossible.
var ErrDuplicateArticle = errors.New("duplicate article")

// DatabaseWriter is the single receiver of the pipeline. It owns the
// database and the mirrors.
type DatabaseWriter struct {
	Store   store.Config
	Mirrors []mirror.Config
	RunID   string
	Logger  *slog.Logger

	// Filled in as results arrive; read them after the pool is done.
	Articles     int64
	Snippets     int64
	NoSnippetIDs []string

	log     *slog.Logger
	db      *store.Store
	mirrors mirror.Multi
	seen    map[string]struct{}
}

// Setup opens the database, resetting it if configured to, and the
// mirrors.
func (w *DatabaseWriter) Setup(ctx context.Context) error {
	w.log = w.Logger
	if w.log == nil {
		w.log = slog.Default()
	}
	w.seen = map[string]struct{}{}

	cfg := w.Store
	cfg.Logger = w.log
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	mirrors, err := mirror.OpenAll(w.Mirrors)
	if err != nil {
		db.Close()
		return err
	}
	w.db, w.mirrors = db, mirrors
	return nil
}

// Receive writes one article and its snippets.
func (w *DatabaseWriter) Receive(ctx context.Context, r ResultTask) error {
	if r.Article == nil {
		w.NoSnippetIDs = append(w.NoSnippetIDs, r.PageID)
		return nil
	}
	if _, ok := w.seen[r.Article.PageID]; ok {
		return fmt.Errorf("%w: page %v", ErrDuplicateArticle, r.Article.PageID)
	}
	w.seen[r.Article.PageID] = struct{}{}

	if err := w.db.WriteArticle(ctx, *r.Article, r.Snippets); err != nil {
		return fmt.Errorf("writing page %v: %w", r.Article.PageID, err)
	}
	w.Articles++
	w.Snippets += int64(len(r.Snippets))

	if len(w.mirrors) > 0 {
		doc := &mirror.Document{
			PageID:   r.Article.PageID,
			Title:    r.Article.Title,
			URL:      r.Article.URL,
			RunID:    w.RunID,
			Snippets: r.Snippets,
		}
		if err := w.mirrors.Publish(ctx, doc); err != nil {
			w.log.Warn("mirror publish failed", "page", r.Article.PageID, "error", err)
		}
	}
	return nil
}

// Done closes the mirrors and the database.
func (w *DatabaseWriter) Done() error {
	if err := w.mirrors.Close(); err != nil {
		w.log.Warn("closing mirrors", "error", err)
	}
	return w.db.Close()
}
