package pipeline

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// RunStats summarizes one run. It is written once, at the end.
type RunStats struct {
	RunID    string    `yaml:"run_id" json:"run_id"`
	Started  time.Time `yaml:"started" json:"started"`
	Finished time.Time `yaml:"finished" json:"finished"`
	// Pages counts every page read from the dump, in any namespace.
	Pages    int64 `yaml:"pages" json:"pages"`
	Posted   int64 `yaml:"posted" json:"posted"`
	Articles int64 `yaml:"articles" json:"articles"`
	Snippets int64 `yaml:"snippets" json:"snippets"`

	RedirectIDs  []string `yaml:"redirect_ids" json:"redirect_ids"`
	EmptyIDs     []string `yaml:"empty_ids" json:"empty_ids"`
	NotFoundIDs  []string `yaml:"not_found_ids" json:"not_found_ids"`
	NoSnippetIDs []string `yaml:"no_snippet_ids" json:"no_snippet_ids"`

	Cancelled bool   `yaml:"cancelled" json:"cancelled"`
	Fatal     string `yaml:"fatal,omitempty" json:"fatal,omitempty"`
}

// WriteStats gob-encodes stats to filename.
func WriteStats(filename string, stats *RunStats) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(stats); err != nil {
		f.Close()
		return fmt.Errorf("encoding stats: %w", err)
	}
	return f.Close()
}

// ReadStats reads stats written by WriteStats.
func ReadStats(filename string) (*RunStats, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rv := &RunStats{}
	if err := gob.NewDecoder(f).Decode(rv); err != nil {
		return nil, fmt.Errorf("decoding %v: %w", filename, err)
	}
	return rv, nil
}

// ProgressLogger returns a progress callback that logs at most once per
// interval, with the rate since the previous line.
func ProgressLogger(log *slog.Logger, interval time.Duration) func(ProgressReport) {
	var mu sync.Mutex
	var prevPages int64
	var prevElapsed time.Duration
	return func(r ProgressReport) {
		mu.Lock()
		defer mu.Unlock()
		d := r.Elapsed - prevElapsed
		if d < interval {
			return
		}
		rate := float64(r.Pages-prevPages) / d.Seconds()
		prevPages, prevElapsed = r.Pages, r.Elapsed

		msg := fmt.Sprintf("Processed %s pages total (%.2f/s)", humanize.Comma(r.Pages), rate)
		if r.Total > 0 {
			log.Info(msg, "percent", fmt.Sprintf("%.1f%%", 100*float64(r.Pages)/float64(r.Total)))
			return
		}
		log.Info(msg)
	}
}

func (s *RunStats) logSummary(log *slog.Logger) {
	d := s.Finished.Sub(s.Started)
	log.Info(fmt.Sprintf("Ended after %v: %s pages (%.2f p/s)",
		d.Round(time.Millisecond), humanize.Comma(s.Pages), float64(s.Pages)/d.Seconds()),
		"articles", humanize.Comma(s.Articles),
		"snippets", humanize.Comma(s.Snippets),
		"cancelled", s.Cancelled)
	log.Info("pages not found", "count", len(s.NotFoundIDs))
	log.Info("redirects", "count", len(s.RedirectIDs))
	log.Info("empty pages", "count", len(s.EmptyIDs))
	log.Info("pages without snippets", "count", len(s.NoSnippetIDs))
}
