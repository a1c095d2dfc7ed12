package pipeline

import (
	"context"
	"strings"

	"github.com/citationhunt/chparse/snippet"
	"github.com/citationhunt/chparse/store"
)

// RowParser is the worker side of the pipeline: it turns a page into
// article and snippet rows.
type RowParser struct {
	// WikiURL prefixes article titles, e.g. https://en.wikipedia.org/wiki/
	WikiURL string
	MinLen  int
	MaxLen  int
	Options snippet.Options

	extractor *snippet.Extractor
}

func (p *RowParser) Setup(ctx context.Context) error {
	p.extractor = snippet.NewExtractor(p.Options)
	return nil
}

func (p *RowParser) Work(ctx context.Context, t ArticleTask) (ResultTask, error) {
	rv := ResultTask{PageID: t.PageID}
	for _, sec := range p.extractor.Extract(t.Text, p.MinLen, p.MaxLen) {
		anchor := snippet.Anchor(sec.Title)
		for _, s := range sec.Snippets {
			rv.Snippets = append(rv.Snippets, store.Snippet{
				ID:        snippet.ID(t.Title, s),
				Text:      s,
				Section:   anchor,
				ArticleID: t.PageID,
			})
		}
	}
	if len(rv.Snippets) > 0 {
		rv.Article = &store.Article{
			PageID: t.PageID,
			URL:    p.WikiURL + strings.ReplaceAll(t.Title, " ", "_"),
			Title:  t.Title,
		}
	}
	return rv, nil
}

func (p *RowParser) Done() error {
	return nil
}
