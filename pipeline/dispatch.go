package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/citationhunt/chparse"
	"github.com/citationhunt/chparse/workerpool"
)

// NamespaceArticle is the namespace of encyclopedia articles.
const NamespaceArticle = "0"

// TaskPool is the part of a worker pool the dispatcher drives.
type TaskPool interface {
	Post(ArticleTask) error
	Done() error
	Cancel() error
	// Err is the error that aborted the pool, or nil.
	Err() error
}

// A ProgressReport is passed to the progress callback.
type ProgressReport struct {
	Pages int64
	// Total is the number of pages in the dump, or 0 when unknown.
	Total   int64
	Elapsed time.Duration
}

// Dispatcher walks a dump and posts the requested article pages.
type Dispatcher struct {
	Pool TaskPool
	// ProgressEvery is the callback cadence in pages, 10 when unset.
	ProgressEvery int64
	Progress      func(ProgressReport)
	Total         int64
	Logger        *slog.Logger
}

// Run reads the dump to the end, or until ctx is canceled, and then
// finishes the pool. pageIDs is consumed: ids are removed as their pages
// are found.
//
// Cancellation is not an error; the returned stats have Cancelled set.
// The error is the pool's fatal error or a dump read error.
func (d *Dispatcher) Run(ctx context.Context, p chparse.Parser,
	pageIDs map[string]struct{}) (*RunStats, error) {

	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	every := d.ProgressEvery
	if every < 1 {
		every = 10
	}

	stats := &RunStats{Started: time.Now()}
	finish := func(err error) (*RunStats, error) {
		stats.NotFoundIDs = sortedIDs(pageIDs)
		stats.Finished = time.Now()
		if err != nil {
			stats.Fatal = err.Error()
		}
		return stats, err
	}
	cancel := func() (*RunStats, error) {
		log.Info("interrupted, waiting for workers")
		stats.Cancelled = true
		return finish(d.Pool.Cancel())
	}

	for {
		if ctx.Err() != nil {
			return cancel()
		}
		// A failed writer stops the run without waiting for the next post.
		if err := d.Pool.Err(); err != nil {
			d.Pool.Cancel()
			return finish(err)
		}

		page, err := p.Next()
		if err == io.EOF {
			return finish(d.Pool.Done())
		}
		if err != nil {
			d.Pool.Cancel()
			return finish(fmt.Errorf("reading dump after %d pages: %w", stats.Pages, err))
		}

		stats.Pages++
		if stats.Pages%every == 0 && d.Progress != nil {
			d.Progress(ProgressReport{
				Pages:   stats.Pages,
				Total:   d.Total,
				Elapsed: time.Since(stats.Started),
			})
		}

		if page.NS != NamespaceArticle {
			continue
		}
		if _, ok := pageIDs[page.ID]; !ok {
			continue
		}
		delete(pageIDs, page.ID)

		if page.Redirect != nil {
			stats.RedirectIDs = append(stats.RedirectIDs, page.ID)
			continue
		}
		text := page.Text()
		if text == "" {
			stats.EmptyIDs = append(stats.EmptyIDs, page.ID)
			continue
		}

		err = d.Pool.Post(ArticleTask{PageID: page.ID, Title: page.Title, Text: text})
		switch {
		case err == nil:
			stats.Posted++
		case errors.Is(err, workerpool.ErrCanceled):
			pageIDs[page.ID] = struct{}{}
			return cancel()
		default:
			pageIDs[page.ID] = struct{}{}
			d.Pool.Cancel()
			return finish(err)
		}
	}
}

func sortedIDs(ids map[string]struct{}) []string {
	rv := make([]string, 0, len(ids))
	for id := range ids {
		rv = append(rv, id)
	}
	sort.Strings(rv)
	return rv
}
