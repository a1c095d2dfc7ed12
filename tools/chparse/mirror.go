package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/citationhunt/chparse/mirror"
	"github.com/citationhunt/chparse/store"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Publish every stored article to the configured mirrors",
	Long: `Copies the articles and snippets already in the database to the
mirrors listed in the config, e.g. to fill a mirror added after a run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Mirrors) == 0 {
			return errors.New("no mirrors configured")
		}
		ctx := cmd.Context()

		sc := cfg.StoreConfig()
		sc.Reset = false
		db, err := store.Open(ctx, sc)
		if err != nil {
			return err
		}
		defer db.Close()

		mirrors, err := mirror.OpenAll(cfg.MirrorConfigs())
		if err != nil {
			return err
		}
		defer mirrors.Close()

		articles, err := db.Articles(ctx)
		if err != nil {
			return err
		}

		start := time.Now()
		var published, failed int64
		for _, a := range articles {
			if ctx.Err() != nil {
				break
			}
			snippets, err := db.Snippets(ctx, a.PageID)
			if err != nil {
				return err
			}
			err = mirrors.Publish(ctx, &mirror.Document{
				PageID:   a.PageID,
				Title:    a.Title,
				URL:      a.URL,
				Snippets: snippets,
			})
			if err != nil {
				failed++
				slog.Warn("publish failed", "page", a.PageID, "error", err)
				continue
			}
			published++
		}

		slog.Info("mirrored articles",
			"published", humanize.Comma(published),
			"failed", humanize.Comma(failed),
			"elapsed", time.Since(start).Round(time.Millisecond))
		return nil
	},
}
