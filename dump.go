package chparse

import (
	"compress/bzip2"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strings"
)

// The toplevel site info describing basic dump properties.
type SiteInfo struct {
	SiteName   string `xml:"sitename"`
	DBName     string `xml:"dbname"`
	Base       string `xml:"base"`
	Generator  string `xml:"generator"`
	Case       string `xml:"case"`
	Namespaces []struct {
		Key   string `xml:"key,attr"`
		Case  string `xml:"case,attr"`
		Value string `xml:",chardata"`
	} `xml:"namespaces>namespace"`
}

// A user who contributed a revision.
type Contributor struct {
	ID       uint64 `xml:"id"`
	Username string `xml:"username"`
}

// A revision to a page.
type Revision struct {
	ID          uint64      `xml:"id"`
	Timestamp   string      `xml:"timestamp"`
	Contributor Contributor `xml:"contributor"`
	Comment     string      `xml:"comment"`
	Text        string      `xml:"text"`
}

// Redirect is present on pages that only point elsewhere.
type Redirect struct {
	Title string `xml:"title,attr"`
}

// A wiki page.
//
// ID and NS are kept as the strings found in the dump; page id files
// are matched against them textually.
type Page struct {
	Title     string     `xml:"title"`
	NS        string     `xml:"ns"`
	ID        string     `xml:"id"`
	Redirect  *Redirect  `xml:"redirect"`
	Revisions []Revision `xml:"revision"`
}

// Text is the wikitext of the page's latest revision, or "" when the page
// carries no revision text.
func (p *Page) Text() string {
	if len(p.Revisions) == 0 {
		return ""
	}
	return p.Revisions[len(p.Revisions)-1].Text
}

// That which emits wiki pages.
type Parser interface {
	// Get the next page from the parser.  io.EOF marks the end of the
	// dump; any other error means the stream is unusable.
	Next() (*Page, error)
	// Get the site info from the parser.
	SiteInfo() SiteInfo
}

type singleStream struct {
	siteInfo SiteInfo
	x        *xml.Decoder
	pending  *xml.StartElement
}

var errNoRoot = errors.New("no root element in dump")

// Get a wikipedia dump parser reading from the given reader.
//
// Pages are decoded one at a time, in the order they appear in the
// stream.
func NewParser(r io.Reader) (Parser, error) {
	d := xml.NewDecoder(r)
	if _, err := nextStart(d); err != nil {
		if err == io.EOF {
			err = errNoRoot
		}
		return nil, err
	}

	p := &singleStream{x: d}
	se, err := nextStart(d)
	switch {
	case err == io.EOF:
		// An empty dump; Next will report EOF.
	case err != nil:
		return nil, err
	case se.Name.Local == "siteinfo":
		if err := d.DecodeElement(&p.siteInfo, &se); err != nil {
			return nil, err
		}
	case se.Name.Local == "page":
		p.pending = &se
	default:
		if err := d.Skip(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func nextStart(d *xml.Decoder) (xml.StartElement, error) {
	for {
		t, err := d.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := t.(xml.StartElement); ok {
			return se, nil
		}
	}
}

func (p *singleStream) Next() (*Page, error) {
	for {
		var se xml.StartElement
		if p.pending != nil {
			se, p.pending = *p.pending, nil
		} else {
			var err error
			se, err = nextStart(p.x)
			if err != nil {
				return nil, err
			}
		}
		if se.Name.Local != "page" {
			if err := p.x.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		rv := new(Page)
		if err := p.x.DecodeElement(rv, &se); err != nil {
			return nil, err
		}
		return rv, nil
	}
}

func (p *singleStream) SiteInfo() SiteInfo {
	return p.siteInfo
}

type bzipFile struct {
	io.Reader
	f *os.File
}

func (b *bzipFile) Close() error {
	return b.f.Close()
}

// Open opens a dump or index file, decompressing it on the fly when the
// name ends in .bz2.
func Open(filename string) (io.ReadCloser, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(filename, ".bz2") {
		return &bzipFile{bzip2.NewReader(f), f}, nil
	}
	return f, nil
}
