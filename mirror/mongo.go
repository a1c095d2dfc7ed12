package mirror

import (
	"context"

	"gopkg.in/mgo.v2"
)

// Titles are unique since the title is the URL path of the article.
var titleIndex = mgo.Index{
	Key:        []string{"title"},
	Unique:     true,
	Background: true,
	Sparse:     true,
}

type mongoMirror struct {
	session *mgo.Session
	c       *mgo.Collection
}

func openMongo(cfg Config) (Mirror, error) {
	session, err := mgo.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}
	db, coll := cfg.Database, cfg.Collection
	if db == "" {
		db = "citationhunt"
	}
	if coll == "" {
		coll = "articles"
	}
	c := session.DB(db).C(coll)
	if err := c.EnsureIndex(titleIndex); err != nil {
		session.Close()
		return nil, err
	}
	return &mongoMirror{session, c}, nil
}

// Publish inserts the document, replacing the one a previous run stored
// under the same page id.
func (m *mongoMirror) Publish(ctx context.Context, doc *Document) error {
	err := m.c.Insert(doc)
	if mgo.IsDup(err) {
		_, err = m.c.UpsertId(doc.PageID, doc)
	}
	return err
}

func (m *mongoMirror) Close() error {
	m.session.Close()
	return nil
}
