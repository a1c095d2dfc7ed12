// Package pipeline walks a dump, extracts snippets from the requested
// pages on a pool of workers and writes them to the store.
package pipeline

import (
	"bufio"
	"io"
	"strings"

	"github.com/citationhunt/chparse/store"
)

// An ArticleTask carries one page from the dispatcher to a worker.
type ArticleTask struct {
	PageID string
	Title  string
	Text   string
}

// A ResultTask carries a worker's rows to the writer. Article is nil when
// the page had no snippets.
type ResultTask struct {
	PageID   string
	Article  *store.Article
	Snippets []store.Snippet
}

// ReadPageIDs reads one page id per line. Surrounding whitespace is
// trimmed and blank lines are ignored.
func ReadPageIDs(r io.Reader) (map[string]struct{}, error) {
	rv := map[string]struct{}{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		id := strings.TrimSpace(s.Text())
		if id != "" {
			rv[id] = struct{}{}
		}
	}
	return rv, s.Err()
}
