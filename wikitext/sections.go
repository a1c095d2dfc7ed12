package wikitext

import "strings"

// A Section is a run of top-level nodes introduced by a heading. The lead
// section has a nil Heading.
type Section struct {
	Heading *Heading
	Code    *Wikicode
}

func (s *Section) String() string { return s.Code.String() }

// Title returns the heading's source text with surrounding whitespace
// removed, or "" for the lead section.
func (s *Section) Title() string {
	if s.Heading == nil {
		return ""
	}
	return strings.TrimSpace(s.Heading.Title.String())
}

// Sections splits the tree at every top-level heading, regardless of
// level, so subsections are not nested in their parents. The lead section
// is always first when includeLead is set, even if it is empty.
func (w *Wikicode) Sections(includeLead, includeHeadings bool) []*Section {
	var rv []*Section
	cur := &Section{Code: &Wikicode{}}
	for _, n := range w.Nodes {
		if h, ok := n.(*Heading); ok {
			if cur.Heading != nil || includeLead {
				rv = append(rv, cur)
			}
			cur = &Section{Heading: h, Code: &Wikicode{}}
			if includeHeadings {
				cur.Code.Nodes = append(cur.Code.Nodes, h)
			}
			continue
		}
		cur.Code.Nodes = append(cur.Code.Nodes, n)
	}
	if cur.Heading != nil || includeLead {
		rv = append(rv, cur)
	}
	return rv
}

// Paragraphs splits the section source on blank lines and parses each
// piece separately.
func (s *Section) Paragraphs() []*Wikicode {
	parts := strings.Split(s.String(), "\n\n")
	rv := make([]*Wikicode, 0, len(parts))
	for _, part := range parts {
		rv = append(rv, Parse(part))
	}
	return rv
}
