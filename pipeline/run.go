package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/citationhunt/chparse"
	"github.com/citationhunt/chparse/mirror"
	"github.com/citationhunt/chparse/snippet"
	"github.com/citationhunt/chparse/store"
	"github.com/citationhunt/chparse/workerpool"
)

// Options configure a full run.
type Options struct {
	DumpPath   string
	PageIDPath string
	// IndexPath optionally names the multistream index, used to report
	// progress as a percentage.
	IndexPath string
	// StatsPath receives the gob-encoded RunStats; empty skips it.
	StatsPath string

	WikiURL string
	MinLen  int
	MaxLen  int
	Snippet snippet.Options

	Workers          int
	QueueSize        int
	ProgressEvery    int64
	ProgressInterval time.Duration

	Store   store.Config
	Mirrors []mirror.Config
	Logger  *slog.Logger
}

var entropy = ulid.Monotonic(rand.Reader, 0)

// NewRunID returns a fresh, time ordered run id.
func NewRunID() string {
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// Run extracts snippets for the pages listed in opts.PageIDPath from the
// dump and writes them to the store. The stats are returned, and written
// to opts.StatsPath, even when the run was canceled or failed.
func Run(ctx context.Context, opts Options) (*RunStats, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	runID := NewRunID()
	log = log.With("run", runID)

	f, err := os.Open(opts.PageIDPath)
	if err != nil {
		return nil, err
	}
	pageIDs, err := ReadPageIDs(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("reading page ids: %w", err)
	}
	log.Info("loaded page ids", "count", humanize.Comma(int64(len(pageIDs))))

	var total int64
	if opts.IndexPath != "" {
		size, err := chparse.CountIndexFile(opts.IndexPath)
		if err != nil {
			log.Warn("could not read index, progress will not show a percentage",
				"index", opts.IndexPath, "error", err)
		} else {
			total = size.Pages
			log.Info("read index", "streams", humanize.Comma(int64(size.Streams)),
				"pages", humanize.Comma(size.Pages))
		}
	}

	dump, err := chparse.Open(opts.DumpPath)
	if err != nil {
		return nil, err
	}
	defer dump.Close()

	p, err := chparse.NewParser(dump)
	if err != nil {
		return nil, fmt.Errorf("setting up page parser: %w", err)
	}
	log.Info("got site info", "site", p.SiteInfo().SiteName, "db", p.SiteInfo().DBName)

	writer := &DatabaseWriter{
		Store:   opts.Store,
		Mirrors: opts.Mirrors,
		RunID:   runID,
		Logger:  log,
	}
	pool := workerpool.New[ArticleTask, ResultTask](ctx, workerpool.Config{
		Workers:   opts.Workers,
		QueueSize: opts.QueueSize,
		Logger:    log,
	}, func(int) workerpool.Worker[ArticleTask, ResultTask] {
		return &RowParser{
			WikiURL: opts.WikiURL,
			MinLen:  opts.MinLen,
			MaxLen:  opts.MaxLen,
			Options: opts.Snippet,
		}
	}, writer)

	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	d := &Dispatcher{
		Pool:          pool,
		ProgressEvery: opts.ProgressEvery,
		Progress:      ProgressLogger(log, interval),
		Total:         total,
		Logger:        log,
	}
	stats, err := d.Run(ctx, p, pageIDs)

	// The pool is finished, so the writer's counters are settled.
	stats.RunID = runID
	stats.Articles = writer.Articles
	stats.Snippets = writer.Snippets
	stats.NoSnippetIDs = writer.NoSnippetIDs
	if counts := pool.Counts(); counts.Failed > 0 || counts.Discarded > 0 {
		log.Warn("tasks not written", "failed", counts.Failed, "discarded", counts.Discarded)
	}
	stats.logSummary(log)

	if opts.StatsPath != "" {
		if werr := WriteStats(opts.StatsPath, stats); werr != nil {
			log.Error("could not write stats", "file", opts.StatsPath, "error", werr)
		}
	}
	return stats, err
}
