package snippet

import (
	"strings"
)

const upperhex = "0123456789ABCDEF"

// Anchor converts a section title to the fragment MediaWiki uses to link
// to it: spaces become underscores and every other byte outside
// [A-Za-z0-9_.-] is percent-encoded, except that colons are kept and
// the remaining percent signs are replaced by dots.
func Anchor(title string) string {
	title = strings.ReplaceAll(title, " ", "_")
	var b strings.Builder
	for i := 0; i < len(title); i++ {
		c := title[i]
		switch {
		case c == ':':
			b.WriteByte(':')
		case isUnreserved(c):
			b.WriteByte(c)
		default:
			b.WriteByte('.')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-'
}
