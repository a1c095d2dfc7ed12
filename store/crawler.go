package store

import (
	_ "embed"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

//go:embed crawler-user-agents.json
var crawlerUserAgents []byte

// A CrawlerPattern matches the user agents of one family of crawlers.
type CrawlerPattern struct {
	Pattern   string   `json:"pattern"`
	URL       string   `json:"url,omitempty"`
	Instances []string `json:"instances"`
}

// CrawlerPatterns returns the embedded crawler list.
func CrawlerPatterns() ([]CrawlerPattern, error) {
	var rv []CrawlerPattern
	err := json.Unmarshal(crawlerUserAgents, &rv)
	return rv, err
}

var crawlerRE = sync.OnceValue(func() *regexp.Regexp {
	patterns, err := CrawlerPatterns()
	if err != nil {
		panic("store: bad embedded crawler list: " + err.Error())
	}
	alts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		alts = append(alts, "(?:"+p.Pattern+")")
	}
	return regexp.MustCompile(strings.Join(alts, "|"))
})

// IsCrawler reports whether a user agent belongs to a known crawler. The
// same predicate is available in SQL as IS_CRAWLER(user_agent).
func IsCrawler(userAgent string) bool {
	return crawlerRE().MatchString(userAgent)
}
