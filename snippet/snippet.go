// Package snippet finds the paragraphs of an article that carry a
// "citation needed" marker and reduces them to plain-text snippets.
package snippet

import (
	"crypto/sha1"
	"encoding/hex"
	"os/exec"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/citationhunt/chparse/wikitext"
)

// Marker is inserted where the citation-needed template was. It is
// unlikely to appear in any article.
const Marker = "7b94863f3091b449e6ab04d44cb372a0"

var spaceBeforeMarkerRE = regexp.MustCompile(`[ \t\n\r\f\v]+` + Marker)

// DefaultTemplates are the template names treated as citation-needed
// markers.
var DefaultTemplates = []string{"Citation needed", "cn"}

// A Section is the list of snippets found in one section of an article.
type Section struct {
	Title    string   `yaml:"title" json:"title"`
	Snippets []string `yaml:"snippets" json:"snippets"`
}

// An Extractor turns article wikitext into snippets. It is not safe for
// concurrent use; each worker should own one.
type Extractor struct {
	templates   []string
	policy      wikitext.StripPolicy
	postProcess func(string) string
}

// Options configure an Extractor. The zero value uses DefaultTemplates and
// wikitext.DefaultStripPolicy.
type Options struct {
	Templates []string
	Policy    *wikitext.StripPolicy
	// PostProcess is applied to each stripped paragraph before the
	// marker check.
	PostProcess func(string) string
}

// NewExtractor returns an Extractor for the given options.
func NewExtractor(opts Options) *Extractor {
	e := &Extractor{
		templates:   opts.Templates,
		postProcess: opts.PostProcess,
	}
	if len(e.templates) == 0 {
		e.templates = DefaultTemplates
	}
	if opts.Policy != nil {
		e.policy = *opts.Policy
	} else {
		e.policy = wikitext.DefaultStripPolicy()
	}
	e.policy.ElideTemplate = e.IsCitationNeeded
	return e
}

// IsCitationNeeded reports whether t is one of the extractor's
// citation-needed templates.
func (e *Extractor) IsCitationNeeded(t *wikitext.Template) bool {
	for _, name := range e.templates {
		if t.Matches(name) {
			return true
		}
	}
	return false
}

// Extract returns every section of the article in document order, with
// the snippets of paragraphs whose stripped length is within
// [minLen, maxLen]. Sections without snippets are included.
func (e *Extractor) Extract(text string, minLen, maxLen int) []Section {
	sections := wikitext.Parse(text).Sections(true, true)
	rv := make([]Section, 0, len(sections))
	for i, sec := range sections {
		s := Section{Snippets: []string{}}
		if i != 0 {
			s.Title = sec.Title()
		}
		for _, para := range sec.Paragraphs() {
			s.Snippets = append(s.Snippets, e.paragraph(para, minLen, maxLen)...)
		}
		rv = append(rv, s)
	}
	return rv
}

func (e *Extractor) paragraph(para *wikitext.Wikicode, minLen, maxLen int) []string {
	count := len(para.FilterTemplates(e.IsCitationNeeded))
	if count == 0 {
		return nil
	}
	n := utf8.RuneCountInString(para.StripCode(&e.policy))
	if n < minLen || n > maxLen {
		return nil
	}

	src := para.String()
	var rv []string
	for i := 0; i < count; i++ {
		// Each marker is placed in a fresh copy of the paragraph.
		code := wikitext.Parse(src)
		code.InsertBefore(code.FilterTemplates(e.IsCitationNeeded)[i], Marker)
		s := code.StripCode(&e.policy)
		if e.postProcess != nil {
			s = e.postProcess(s)
		}
		s = spaceBeforeMarkerRE.ReplaceAllString(s, Marker)
		// The marker may have landed in markup that was stripped.
		if strings.Contains(s, Marker) {
			rv = append(rv, s)
		}
	}
	return rv
}

// Extract runs a default Extractor over text.
func Extract(text string, minLen, maxLen int) []Section {
	return NewExtractor(Options{}).Extract(text, minLen, maxLen)
}

// ID is the snippet's identity: a hash of the article title and the
// snippet text.
func ID(title, text string) string {
	h := sha1.Sum([]byte(title + text))
	return hex.EncodeToString(h[:])[:8]
}

// CommandFormatter returns a post-processing hook that pipes each snippet
// through an external command, keeping the input when the command fails
// or prints nothing.
func CommandFormatter(name string, args ...string) func(string) string {
	return func(s string) string {
		cmd := exec.Command(name, args...)
		cmd.Stdin = strings.NewReader(s)
		out, err := cmd.Output()
		if err != nil || len(out) == 0 {
			return s
		}
		return string(out)
	}
}
