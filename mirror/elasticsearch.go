package mirror

import (
	"context"

	"github.com/dustin/go-elasticsearch"
)

type esMirror struct {
	index     string
	batchSize int
	pending   int

	update func(*elasticsearch.UpdateInstruction)
	send   func()
	quit   func()
}

func openElasticSearch(cfg Config) (Mirror, error) {
	m := &esMirror{index: cfg.Index, batchSize: cfg.BatchSize}
	if m.index == "" {
		m.index = "citationhunt"
	}
	if m.batchSize < 1 {
		m.batchSize = 1000
	}
	es := elasticsearch.ElasticSearch{URL: cfg.URL}
	bulk := es.Bulk()
	m.update = func(ui *elasticsearch.UpdateInstruction) { bulk.Update(ui) }
	m.send = func() { bulk.SendBatch() }
	m.quit = func() { bulk.Quit() }
	return m, nil
}

// Publish queues an update in the current bulk batch and sends the batch
// once it is full.
func (m *esMirror) Publish(ctx context.Context, doc *Document) error {
	m.pending++
	if m.pending > m.batchSize {
		m.send()
		m.pending = 0
	}
	m.update(&elasticsearch.UpdateInstruction{
		Id:    doc.PageID,
		Index: m.index,
		Type:  "article",
		Body: map[string]interface{}{
			"title":    doc.Title,
			"url":      doc.URL,
			"run_id":   doc.RunID,
			"snippets": doc.Snippets,
		},
	})
	return nil
}

// Close flushes the last batch.
func (m *esMirror) Close() error {
	m.quit()
	return nil
}
