package wikitext

import (
	"html"
	"regexp"
	"strings"
)

var quotesRE = regexp.MustCompile(`''+`)

// Tags whose contents are never visible in rendered text. Other
// extension tags, e.g. references or includeonly, go through DropTags.
var invisibleTags = map[string]bool{
	"categorytree": true, "gallery": true, "graph": true, "imagemap": true,
	"inputbox": true, "math": true, "score": true, "section": true,
	"templatedata": true, "timeline": true,
}

// A StripPolicy decides how each kind of node is rendered when a tree is
// reduced to plain text.
type StripPolicy struct {
	// ElideTemplate reports templates that strip to nothing, overriding
	// KeepTemplates.
	ElideTemplate func(*Template) bool
	// KeepTemplates keeps other templates as their source text instead of
	// dropping them.
	KeepTemplates bool
	// DropTags lists tags that are removed along with their contents.
	DropTags []string
	// FilePrefixes lists link title prefixes (case insensitive) of media
	// links, which are removed along with their captions.
	FilePrefixes []string
	// KeepHeadings renders headings as their title text.
	KeepHeadings bool
}

// DefaultStripPolicy keeps unknown templates as source, drops footnotes,
// media links and headings.
func DefaultStripPolicy() StripPolicy {
	return StripPolicy{
		KeepTemplates: true,
		DropTags:      []string{"ref"},
		FilePrefixes:  []string{"File:", "Image:"},
	}
}

func (p *StripPolicy) dropsTag(name string) bool {
	for _, t := range p.DropTags {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

func (p *StripPolicy) isFile(title string) bool {
	title = strings.TrimSpace(title)
	for _, prefix := range p.FilePrefixes {
		if len(title) >= len(prefix) && strings.EqualFold(title[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

// StripCode renders the tree as plain text. Leading and trailing newlines
// are removed and runs of blank lines collapsed to one.
func (w *Wikicode) StripCode(p *StripPolicy) string {
	if w == nil {
		return ""
	}
	var b strings.Builder
	for _, n := range w.Nodes {
		b.WriteString(stripNode(n, p))
	}
	s := strings.Trim(b.String(), "\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

func stripNode(n Node, p *StripPolicy) string {
	switch n := n.(type) {
	case *Text:
		return quotesRE.ReplaceAllString(n.Value, "")
	case *Template:
		if p.ElideTemplate != nil && p.ElideTemplate(n) {
			return ""
		}
		if p.KeepTemplates {
			return n.String()
		}
	case *Argument:
		return n.Default.StripCode(p)
	case *Wikilink:
		if p.isFile(n.Title.String()) {
			return ""
		}
		if n.Text != nil {
			return n.Text.StripCode(p)
		}
		return n.Title.StripCode(p)
	case *ExternalLink:
		return n.Title.StripCode(p)
	case *Tag:
		if p.dropsTag(n.Name) || invisibleTags[n.Name] {
			return ""
		}
		return n.Contents.StripCode(p)
	case *Heading:
		if p.KeepHeadings {
			return strings.TrimSpace(n.Title.StripCode(p))
		}
	case *Entity:
		return html.UnescapeString(n.Raw)
	}
	return ""
}
