// Package wikitext is a small wikitext parser producing a navigable node
// tree.
//
// It only understands the constructs needed to locate inline templates and
// strip an article down to plain text: templates, template arguments,
// wikilinks, bracketed external links, tags, comments, HTML entities and
// headings. Everything else is kept as text.  Serializing a parsed tree
// with String always reproduces the input exactly.
package wikitext

import (
	"strings"
)

// A Node is a single element of parsed wikitext.
type Node interface {
	String() string
}

// Wikicode is an ordered list of nodes.
type Wikicode struct {
	Nodes []Node
}

func (w *Wikicode) String() string {
	if w == nil {
		return ""
	}
	var b strings.Builder
	for _, n := range w.Nodes {
		b.WriteString(n.String())
	}
	return b.String()
}

// Text is literal text.
type Text struct {
	Value string
}

func (t *Text) String() string { return t.Value }

// Template is a {{name|param|...}} transclusion.
type Template struct {
	Name   *Wikicode
	Params []*Wikicode
}

func (t *Template) String() string {
	var b strings.Builder
	b.WriteString("{{")
	b.WriteString(t.Name.String())
	for _, p := range t.Params {
		b.WriteByte('|')
		b.WriteString(p.String())
	}
	b.WriteString("}}")
	return b.String()
}

// Matches does a loose comparison of the template name against name:
// surrounding whitespace is ignored, the first letter is case
// insensitive and underscores are equivalent to spaces.
func (t *Template) Matches(name string) bool {
	return normalizeName(t.Name.StripCode(&StripPolicy{})) == normalizeName(name)
}

func normalizeName(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}

// Argument is a {{{name|default}}} template parameter reference.
type Argument struct {
	Name    *Wikicode
	Default *Wikicode
}

func (a *Argument) String() string {
	s := "{{{" + a.Name.String()
	if a.Default != nil {
		s += "|" + a.Default.String()
	}
	return s + "}}}"
}

// Wikilink is an internal [[title|text]] link. Text is nil when the link
// has no pipe.
type Wikilink struct {
	Title *Wikicode
	Text  *Wikicode
}

func (l *Wikilink) String() string {
	s := "[[" + l.Title.String()
	if l.Text != nil {
		s += "|" + l.Text.String()
	}
	return s + "]]"
}

// ExternalLink is a bracketed [url title] link.
type ExternalLink struct {
	URL   string
	Sep   string
	Title *Wikicode
}

func (l *ExternalLink) String() string {
	return "[" + l.URL + l.Sep + l.Title.String() + "]"
}

// Tag is an HTML or extension tag. Self-closing tags have no Contents and
// an empty Close.
type Tag struct {
	Name     string
	Open     string
	Contents *Wikicode
	Close    string
}

func (t *Tag) String() string {
	return t.Open + t.Contents.String() + t.Close
}

// Heading is a section heading line such as "== History ==".
type Heading struct {
	Level    int
	Title    *Wikicode
	Trailing string
}

func (h *Heading) String() string {
	eq := strings.Repeat("=", h.Level)
	return eq + h.Title.String() + eq + h.Trailing
}

// Comment is an HTML comment, kept verbatim.
type Comment struct {
	Raw string
}

func (c *Comment) String() string { return c.Raw }

// Entity is an HTML character reference such as &nbsp;.
type Entity struct {
	Raw string
}

func (e *Entity) String() string { return e.Raw }

// children returns the nested node lists of n, in document order.
func children(n Node) []*Wikicode {
	switch n := n.(type) {
	case *Template:
		return append([]*Wikicode{n.Name}, n.Params...)
	case *Argument:
		if n.Default != nil {
			return []*Wikicode{n.Name, n.Default}
		}
		return []*Wikicode{n.Name}
	case *Wikilink:
		if n.Text != nil {
			return []*Wikicode{n.Title, n.Text}
		}
		return []*Wikicode{n.Title}
	case *ExternalLink:
		return []*Wikicode{n.Title}
	case *Tag:
		if n.Contents != nil {
			return []*Wikicode{n.Contents}
		}
	case *Heading:
		return []*Wikicode{n.Title}
	}
	return nil
}

// FilterTemplates returns every template in the tree, including templates
// nested in other nodes, for which match returns true. A nil match
// returns all templates.
func (w *Wikicode) FilterTemplates(match func(*Template) bool) []*Template {
	var rv []*Template
	w.walk(func(n Node) {
		if t, ok := n.(*Template); ok && (match == nil || match(t)) {
			rv = append(rv, t)
		}
	})
	return rv
}

func (w *Wikicode) walk(fn func(Node)) {
	if w == nil {
		return
	}
	for _, n := range w.Nodes {
		fn(n)
		for _, c := range children(n) {
			c.walk(fn)
		}
	}
}

// InsertBefore inserts text immediately before node, wherever node lives
// in the tree. It reports whether node was found.
func (w *Wikicode) InsertBefore(node Node, text string) bool {
	if w == nil {
		return false
	}
	for i, n := range w.Nodes {
		if n == node {
			w.Nodes = append(w.Nodes[:i], append([]Node{&Text{Value: text}}, w.Nodes[i:]...)...)
			return true
		}
		for _, c := range children(n) {
			if c.InsertBefore(node, text) {
				return true
			}
		}
	}
	return false
}
