package wikitext

import (
	"reflect"
	"strings"
	"testing"
)

const article = `{{Infobox animal
| name = Sponge
| image = Sponges.JPG
}}
'''Sponges''' are [[animal]]s of the [[phylum]] '''Porifera'''.<ref name="a">{{Cite book|title=Porifera}}</ref>
They are [[multicellular organism|multicellular]] organisms.{{cn|date=May 2014}}

==Overview==
[[File:Spongia officinalis.jpg| thumb | right | 200px | ''[[Spongia officinalis]]'', "the kitchen sponge"]]
Sponges are like other animals.<ref name="a" /> <!-- hidden note --> See [http://example.org the site].

===Movement===
Some can move at {{convert|1|-|4|mm|in|abbr=on}} per day&nbsp;or so.
`

func TestRoundTrip(t *testing.T) {
	tests := []string{
		article,
		"",
		"plain text",
		"{{unclosed",
		"[[a|b",
		"<ref>no close",
		"x < y and y > x",
		"a {{b|[[c|d]]}} e",
		"== H ==\ntext",
		"<!-- unterminated",
		"[http://x.org title] and [http://y.org]",
		"&nbsp;&bogus;",
		"{{{1|def}}} {{{2}}}",
		"{{a|{{b|{{c}}}}}}",
		"[not a link] [[bad\nlink]]",
		"<br>a<br/>b<hr />",
		"<nowiki>{{not a template}}</nowiki>",
	}

	for _, test := range tests {
		got := Parse(test).String()
		if got != test {
			t.Errorf("Expected %q, got %q", test, got)
		}
	}
}

func TestStripCode(t *testing.T) {
	cn := func(tmpl *Template) bool { return tmpl.Matches("Citation needed") }
	keep := DefaultStripPolicy()
	keep.ElideTemplate = cn
	drop := keep
	drop.KeepTemplates = false

	tests := []struct {
		in     string
		policy StripPolicy
		exp    string
	}{
		{"Fact X is true.{{citation needed}} More context.", keep, "Fact X is true. More context."},
		{"'''Bold''' and ''italic''", keep, "Bold and italic"},
		{"A [[Foo|bar]] and [[Baz]].", keep, "A bar and Baz."},
		{"Text<ref>{{cite web|url=x}}</ref> more.", keep, "Text more."},
		{"Text<ref name=\"x\" /> more.", keep, "Text more."},
		{"[[File:X.jpg|thumb|A [[b]] caption]]Rest", keep, "Rest"},
		{"[[image:X.jpg|thumb]]Rest", keep, "Rest"},
		{"See [http://example.org the site] now", keep, "See the site now"},
		{"a&nbsp;b", keep, "a\u00a0b"},
		{"x<!-- hidden -->y", keep, "xy"},
		{"{{convert|1|m}} long", keep, "{{convert|1|m}} long"},
		{"{{convert|1|m}} long", drop, " long"},
		{"Line\n\n\n\nNext\n", keep, "Line\n\nNext"},
		{"== Title ==\nBody", keep, "Body"},
		{"<br />x", keep, "x"},
		{"<math>x^2</math> y", keep, " y"},
		{"<categorytree>Animals</categorytree>z", keep, "z"},
		{"<timeline>data</timeline>z", keep, "z"},
		{"<includeonly>shown</includeonly>", keep, "shown"},
		{"<small>tiny</small>", keep, "tiny"},
		{"{{{1|fallback}}}", keep, "fallback"},
	}

	for _, test := range tests {
		p := test.policy
		got := Parse(test.in).StripCode(&p)
		if got != test.exp {
			t.Errorf("Expected %q for %q, got %q", test.exp, test.in, got)
		}
	}
}

func TestStripHeadings(t *testing.T) {
	p := DefaultStripPolicy()
	p.KeepHeadings = true
	got := Parse("== Title ==\nBody").StripCode(&p)
	if got != "Title\nBody" {
		t.Fatalf("Expected %q, got %q", "Title\nBody", got)
	}
}

func templateNames(ts []*Template) []string {
	rv := []string{}
	for _, t := range ts {
		rv = append(rv, strings.TrimSpace(t.Name.String()))
	}
	return rv
}

func TestFilterTemplates(t *testing.T) {
	code := Parse("{{a|{{b}}}} <ref>{{c}}</ref> [[x|{{d}}]] {{e}}")

	got := templateNames(code.FilterTemplates(nil))
	exp := []string{"a", "b", "c", "d", "e"}
	if !reflect.DeepEqual(exp, got) {
		t.Fatalf("Expected %#v, got %#v", exp, got)
	}

	got = templateNames(code.FilterTemplates(func(t *Template) bool {
		return t.Matches("C")
	}))
	if !reflect.DeepEqual([]string{"c"}, got) {
		t.Fatalf("Expected only c, got %#v", got)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		src  string
		name string
		exp  bool
	}{
		{"{{citation_needed|date=May 2020}}", "Citation needed", true},
		{"{{ cn }}", "cn", true},
		{"{{Cn}}", "cn", true},
		{"{{CN}}", "cn", false},
		{"{{cn<!-- x -->}}", "cn", true},
		{"{{citation}}", "Citation needed", false},
	}

	for _, test := range tests {
		ts := Parse(test.src).FilterTemplates(nil)
		if len(ts) != 1 {
			t.Fatalf("Expected one template in %q, got %v", test.src, len(ts))
		}
		if got := ts[0].Matches(test.name); got != test.exp {
			t.Errorf("Expected %v matching %q against %q", test.exp, test.src, test.name)
		}
	}
}

func TestInsertBefore(t *testing.T) {
	code := Parse("a <ref>b{{cn}}</ref> c")
	ts := code.FilterTemplates(nil)
	if len(ts) != 1 {
		t.Fatalf("Expected one template, got %v", len(ts))
	}
	if !code.InsertBefore(ts[0], "M") {
		t.Fatalf("Template not found in tree")
	}
	if got := code.String(); got != "a <ref>bM{{cn}}</ref> c" {
		t.Fatalf("Expected marker inside ref, got %q", got)
	}
	if code.InsertBefore(&Text{Value: "x"}, "M") {
		t.Fatalf("Inserted before a node that is not in the tree")
	}
}

func TestSections(t *testing.T) {
	src := "Lead text\n== A ==\nbody a\n=== B ===\nbody b\n"
	sections := Parse(src).Sections(true, true)

	var titles []string
	var joined strings.Builder
	for _, s := range sections {
		titles = append(titles, s.Title())
		joined.WriteString(s.String())
	}
	if !reflect.DeepEqual([]string{"", "A", "B"}, titles) {
		t.Fatalf("Expected flat sections, got %#v", titles)
	}
	if joined.String() != src {
		t.Fatalf("Sections do not cover the source: %q", joined.String())
	}
	if got := sections[1].String(); got != "== A ==\nbody a\n" {
		t.Fatalf("Unexpected section body %q", got)
	}

	sections = Parse("== A ==\nx").Sections(true, false)
	if len(sections) != 2 || sections[0].String() != "" {
		t.Fatalf("Expected an empty lead, got %#v", sections)
	}
	if got := sections[1].String(); got != "\nx" {
		t.Fatalf("Expected heading excluded, got %q", got)
	}

	sections = Parse("== [[Foo]] bar ==\nx").Sections(false, true)
	if len(sections) != 1 || sections[0].Title() != "[[Foo]] bar" {
		t.Fatalf("Unexpected sections %#v", sections)
	}
}

func TestParagraphs(t *testing.T) {
	sections := Parse(article).Sections(true, true)
	if len(sections) != 3 {
		t.Fatalf("Expected 3 sections, got %v", len(sections))
	}

	paras := sections[0].Paragraphs()
	if len(paras) != 2 || paras[1].String() != "" {
		t.Fatalf("Expected one lead paragraph and a trailing blank, got %v", len(paras))
	}
	cn := paras[0].FilterTemplates(func(t *Template) bool { return t.Matches("cn") })
	if len(cn) != 1 {
		t.Fatalf("Expected a cn template in the lead paragraph")
	}

	paras = sections[1].Paragraphs()
	p := DefaultStripPolicy()
	exp := "Sponges are like other animals.  See the site."
	if got := paras[0].StripCode(&p); got != exp {
		t.Fatalf("Expected %q, got %q", exp, got)
	}
}
