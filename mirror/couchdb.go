package mirror

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dustin/go-couch"
	"github.com/dustin/httputil"
)

type couchDoc struct {
	ID  string `json:"_id"`
	Rev string `json:"_rev,omitempty"`
	*Document
}

// couchDB is the part of couch.Database the mirror uses.
type couchDB interface {
	Insert(d interface{}) (string, string, error)
	Retrieve(id string, d interface{}) error
	EditWith(d interface{}, id, rev string) (string, error)
}

type couchMirror struct {
	db couchDB
}

func openCouchDB(cfg Config) (Mirror, error) {
	db, err := couch.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &couchMirror{db}, nil
}

// Publish inserts the document, replacing the stored revision when a
// previous run already wrote it.
func (m *couchMirror) Publish(ctx context.Context, doc *Document) error {
	cd := couchDoc{ID: doc.PageID, Document: doc}
	_, _, err := m.db.Insert(&cd)
	if err != nil && httputil.IsHTTPStatus(err, http.StatusConflict) {
		return m.resolveConflict(&cd)
	}
	return err
}

func (m *couchMirror) resolveConflict(cd *couchDoc) error {
	var prev couchDoc
	if err := m.db.Retrieve(cd.ID, &prev); err != nil {
		return fmt.Errorf("retrieving existing %v: %w", cd.ID, err)
	}
	if prev.Rev == "" {
		return fmt.Errorf("got no rev from %v", cd.ID)
	}
	cd.Rev = ""
	if _, err := m.db.EditWith(cd, cd.ID, prev.Rev); err != nil {
		return fmt.Errorf("updating %v: %w", cd.ID, err)
	}
	return nil
}

func (m *couchMirror) Close() error {
	return nil
}
