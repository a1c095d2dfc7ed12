package wikitext

import (
	"html"
	"regexp"
	"strings"
)

var entityRE = regexp.MustCompile(`^&(#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)

// Tags recognised as markup. Anything else in angle brackets is text.
var knownTags = map[string]bool{
	"abbr": true, "b": true, "bdi": true, "big": true, "blockquote": true,
	"br": true, "caption": true, "categorytree": true, "center": true, "chem": true, "cite": true,
	"code": true, "dd": true, "del": true, "div": true, "dl": true,
	"dt": true, "em": true, "font": true, "gallery": true, "graph": true,
	"hr": true, "i": true, "imagemap": true, "includeonly": true,
	"inputbox": true, "ins": true, "kbd": true, "li": true, "mapframe": true,
	"math": true, "noinclude": true, "nowiki": true, "ol": true,
	"onlyinclude": true, "p": true, "poem": true, "pre": true, "q": true,
	"ref": true, "references": true, "s": true, "samp": true, "score": true,
	"section": true, "small": true, "source": true, "span": true,
	"strike": true, "strong": true, "sub": true, "sup": true,
	"syntaxhighlight": true, "table": true, "td": true, "templatedata": true,
	"th": true, "timeline": true, "tr": true, "tt": true, "u": true,
	"ul": true, "var": true, "wbr": true,
}

// Tags that never have contents or a closing tag.
var voidTags = map[string]bool{"br": true, "hr": true, "wbr": true}

// Tags whose contents are not parsed as wikitext.
var rawTags = map[string]bool{
	"chem": true, "graph": true, "math": true, "nowiki": true, "pre": true,
	"score": true, "source": true, "syntaxhighlight": true,
	"templatedata": true, "timeline": true,
}

var urlSchemes = []string{"http://", "https://", "ftp://", "ftps://",
	"irc://", "ircs://", "news:", "mailto:", "//"}

type result struct {
	node Node
	end  int
	ok   bool
}

type memoKey struct {
	kind byte
	pos  int
}

type parser struct {
	src  string
	memo map[memoKey]result
}

// Parse parses text into a node tree.
func Parse(text string) *Wikicode {
	p := &parser{src: text, memo: map[memoKey]result{}}
	code, _, _ := p.parseNodes(0, nil, true)
	return code
}

func (p *parser) has(i int, s string) bool {
	return strings.HasPrefix(p.src[i:], s)
}

func (p *parser) hasFold(i int, s string) bool {
	return len(p.src)-i >= len(s) && strings.EqualFold(p.src[i:i+len(s)], s)
}

// parseNodes parses from i until stop reports the end of the enclosing
// construct, returning the position of the stop. found is false if the
// input ran out first.
func (p *parser) parseNodes(i int, stop func(int) bool, headings bool) (code *Wikicode, end int, found bool) {
	code = &Wikicode{}
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			code.Nodes = append(code.Nodes, &Text{Value: text.String()})
			text.Reset()
		}
	}
	emit := func(r result) {
		flush()
		code.Nodes = append(code.Nodes, r.node)
		i = r.end
	}

	for i < len(p.src) {
		if stop != nil && stop(i) {
			flush()
			return code, i, true
		}
		switch c := p.src[i]; {
		case c == '{' && p.has(i, "{{{"):
			if r := p.construct('a', i, p.argument); r.ok {
				emit(r)
				continue
			}
			if r := p.construct('t', i, p.template); r.ok {
				emit(r)
				continue
			}
		case c == '{' && p.has(i, "{{"):
			if r := p.construct('t', i, p.template); r.ok {
				emit(r)
				continue
			}
		case c == '[' && p.has(i, "[["):
			if r := p.construct('l', i, p.wikilink); r.ok {
				emit(r)
				continue
			}
		case c == '[':
			if r := p.construct('e', i, p.externalLink); r.ok {
				emit(r)
				continue
			}
		case c == '<' && p.has(i, "<!--"):
			end := strings.Index(p.src[i+4:], "-->")
			if end < 0 {
				end = len(p.src)
			} else {
				end += i + 4 + 3
			}
			emit(result{node: &Comment{Raw: p.src[i:end]}, end: end, ok: true})
			continue
		case c == '<':
			if r := p.construct('g', i, p.tag); r.ok {
				emit(r)
				continue
			}
		case c == '&':
			if m := entityRE.FindString(p.src[i:]); m != "" && html.UnescapeString(m) != m {
				emit(result{node: &Entity{Raw: m}, end: i + len(m), ok: true})
				continue
			}
		case c == '=' && headings && (i == 0 || p.src[i-1] == '\n'):
			if r := p.heading(i); r.ok {
				emit(r)
				continue
			}
		}
		text.WriteByte(p.src[i])
		i++
	}
	flush()
	return code, i, stop == nil
}

// construct memoizes fn at position i. Constructs are parsed with their
// own terminators only, so the outcome at a position never depends on the
// enclosing context.
func (p *parser) construct(kind byte, i int, fn func(int) result) result {
	k := memoKey{kind, i}
	if r, ok := p.memo[k]; ok {
		return r
	}
	r := fn(i)
	p.memo[k] = r
	return r
}

func (p *parser) template(i int) result {
	var parts []*Wikicode
	j := i + 2
	for {
		code, end, found := p.parseNodes(j, func(x int) bool {
			return p.src[x] == '|' || p.has(x, "}}")
		}, false)
		if !found {
			return result{}
		}
		parts = append(parts, code)
		if p.src[end] == '|' {
			j = end + 1
			continue
		}
		if strings.TrimSpace(parts[0].String()) == "" {
			return result{}
		}
		return result{node: &Template{Name: parts[0], Params: parts[1:]}, end: end + 2, ok: true}
	}
}

func (p *parser) argument(i int) result {
	name, end, found := p.parseNodes(i+3, func(x int) bool {
		return p.src[x] == '|' || p.has(x, "}}}")
	}, false)
	if !found {
		return result{}
	}
	a := &Argument{Name: name}
	if p.src[end] == '|' {
		a.Default, end, found = p.parseNodes(end+1, func(x int) bool {
			return p.has(x, "}}}")
		}, false)
		if !found {
			return result{}
		}
	}
	return result{node: a, end: end + 3, ok: true}
}

func (p *parser) wikilink(i int) result {
	title, end, found := p.parseNodes(i+2, func(x int) bool {
		return p.src[x] == '|' || p.has(x, "]]")
	}, false)
	if !found || strings.ContainsAny(title.String(), "\n[]{}") {
		return result{}
	}
	l := &Wikilink{Title: title}
	if p.src[end] == '|' {
		l.Text, end, found = p.parseNodes(end+1, func(x int) bool {
			return p.has(x, "]]")
		}, false)
		if !found {
			return result{}
		}
	}
	return result{node: l, end: end + 2, ok: true}
}

func (p *parser) externalLink(i int) result {
	j := i + 1
	scheme := false
	for _, s := range urlSchemes {
		if p.hasFold(j, s) {
			scheme = true
			break
		}
	}
	if !scheme {
		return result{}
	}
	urlEnd := j
	for urlEnd < len(p.src) && !strings.ContainsRune(" \t\n]<[\"", rune(p.src[urlEnd])) {
		urlEnd++
	}
	if urlEnd == len(p.src) || urlEnd == j {
		return result{}
	}
	l := &ExternalLink{URL: p.src[j:urlEnd]}
	k := urlEnd
	for k < len(p.src) && (p.src[k] == ' ' || p.src[k] == '\t') {
		k++
	}
	l.Sep = p.src[urlEnd:k]
	title, end, found := p.parseNodes(k, func(x int) bool {
		return p.src[x] == ']' || p.src[x] == '\n'
	}, false)
	if !found || p.src[end] != ']' {
		return result{}
	}
	if len(title.Nodes) > 0 {
		l.Title = title
	}
	return result{node: l, end: end + 1, ok: true}
}

func (p *parser) tag(i int) result {
	j := i + 1
	for j < len(p.src) && isTagNameByte(p.src[j]) {
		j++
	}
	name := strings.ToLower(p.src[i+1 : j])
	if !knownTags[name] || j == len(p.src) {
		return result{}
	}
	if c := p.src[j]; c != '>' && c != '/' && c != ' ' && c != '\t' && c != '\n' {
		return result{}
	}
	gt := strings.IndexAny(p.src[j:], "<>")
	if gt < 0 || p.src[j+gt] != '>' {
		return result{}
	}
	openEnd := j + gt + 1
	open := p.src[i:openEnd]
	if strings.HasSuffix(open, "/>") || voidTags[name] {
		return result{node: &Tag{Name: name, Open: open}, end: openEnd, ok: true}
	}

	closing := func(x int) bool {
		if !p.hasFold(x, "</"+name) {
			return false
		}
		k := x + 2 + len(name)
		return k < len(p.src) && (p.src[k] == '>' || p.src[k] == ' ')
	}

	var contents *Wikicode
	var end int
	if rawTags[name] {
		end = openEnd
		for end < len(p.src) && !closing(end) {
			end++
		}
		if end == len(p.src) {
			return result{}
		}
		contents = &Wikicode{}
		if end > openEnd {
			contents.Nodes = []Node{&Text{Value: p.src[openEnd:end]}}
		}
	} else {
		var found bool
		contents, end, found = p.parseNodes(openEnd, closing, false)
		if !found {
			return result{}
		}
	}
	gt = strings.IndexByte(p.src[end:], '>')
	if gt < 0 {
		return result{}
	}
	closeEnd := end + gt + 1
	return result{
		node: &Tag{Name: name, Open: open, Contents: contents, Close: p.src[end:closeEnd]},
		end:  closeEnd,
		ok:   true,
	}
}

func isTagNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func (p *parser) heading(i int) result {
	lineEnd := strings.IndexByte(p.src[i:], '\n')
	if lineEnd < 0 {
		lineEnd = len(p.src)
	} else {
		lineEnd += i
	}
	line := p.src[i:lineEnd]
	core := strings.TrimRight(line, " \t")
	left := len(core) - len(strings.TrimLeft(core, "="))
	right := len(core) - len(strings.TrimRight(core, "="))
	level := min(left, right, 6)
	if level == 0 || len(core) <= 2*level {
		return result{}
	}
	title := (&parser{src: core[level : len(core)-level], memo: map[memoKey]result{}})
	code, _, _ := title.parseNodes(0, nil, false)
	return result{
		node: &Heading{Level: level, Title: code, Trailing: line[len(core):]},
		end:  lineEnd,
		ok:   true,
	}
}
