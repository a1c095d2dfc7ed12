package mirror

import (
	"context"

	"github.com/couchbase/go-couchbase"
)

type couchbaseMirror struct {
	b *couchbase.Bucket
}

func openCouchbase(cfg Config) (Mirror, error) {
	pool, bucket := cfg.Pool, cfg.Bucket
	if pool == "" {
		pool = "default"
	}
	if bucket == "" {
		bucket = "default"
	}
	b, err := couchbase.GetBucket(cfg.URL, pool, bucket)
	if err != nil {
		return nil, err
	}
	return &couchbaseMirror{b}, nil
}

// Publish stores the document under its page id.
func (m *couchbaseMirror) Publish(ctx context.Context, doc *Document) error {
	return m.b.Set(doc.PageID, 0, doc)
}

func (m *couchbaseMirror) Close() error {
	m.b.Close()
	return nil
}
