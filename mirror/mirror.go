// Package mirror copies written articles to external document stores.
//
// Mirrors are best effort: the SQLite store is authoritative and a failed
// publish is logged, never fatal.
package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/citationhunt/chparse/store"
)

// A Document is an article with its snippets, as published to mirrors.
type Document struct {
	PageID   string          `json:"page_id" bson:"_id"`
	Title    string          `json:"title" bson:"title"`
	URL      string          `json:"url" bson:"url"`
	RunID    string          `json:"run_id" bson:"run_id"`
	Snippets []store.Snippet `json:"snippets" bson:"snippets"`
}

// A Mirror receives every article after it was committed. Mirrors are
// owned by the single writer and need not be safe for concurrent use.
type Mirror interface {
	Publish(ctx context.Context, doc *Document) error
	Close() error
}

// Config selects and addresses one mirror.
type Config struct {
	// Kind is one of couchbase, couchdb, elasticsearch or mongodb.
	Kind       string `mapstructure:"kind" yaml:"kind"`
	URL        string `mapstructure:"url" yaml:"url"`
	Pool       string `mapstructure:"pool" yaml:"pool,omitempty"`
	Bucket     string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Database   string `mapstructure:"database" yaml:"database,omitempty"`
	Collection string `mapstructure:"collection" yaml:"collection,omitempty"`
	Index      string `mapstructure:"index" yaml:"index,omitempty"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size,omitempty"`
}

var openers = map[string]func(Config) (Mirror, error){
	"couchbase":     openCouchbase,
	"couchdb":       openCouchDB,
	"elasticsearch": openElasticSearch,
	"mongodb":       openMongo,
}

// KnownKind reports whether kind names a mirror implementation.
func KnownKind(kind string) bool {
	_, ok := openers[kind]
	return ok
}

// Open connects to one mirror.
func Open(cfg Config) (Mirror, error) {
	open, ok := openers[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown mirror kind %q", cfg.Kind)
	}
	m, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %v mirror at %v: %w", cfg.Kind, cfg.URL, err)
	}
	return m, nil
}

// OpenAll connects to every configured mirror. On error the mirrors
// already opened are closed.
func OpenAll(cfgs []Config) (Multi, error) {
	var rv Multi
	for _, cfg := range cfgs {
		m, err := Open(cfg)
		if err != nil {
			rv.Close()
			return nil, err
		}
		rv = append(rv, m)
	}
	return rv, nil
}

// Multi publishes to several mirrors.
type Multi []Mirror

// Publish sends doc to every mirror, even when some of them fail.
func (m Multi) Publish(ctx context.Context, doc *Document) error {
	var errs []error
	for _, mi := range m {
		if err := mi.Publish(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every mirror.
func (m Multi) Close() error {
	var errs []error
	for _, mi := range m {
		if err := mi.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
