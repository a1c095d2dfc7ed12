package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/citationhunt/chparse/pipeline"
)

var (
	indexFile string
	statsFile string
	dbPath    string
	workers   int
)

var parseCmd = &cobra.Command{
	Use:   "parse <pages-articles.xml.bz2> <pageid-file>",
	Short: "Extract snippets for the listed pages into the database",
	Long: `Reads the dump sequentially and extracts snippets from every article
whose page id is listed, one per line, in the page id file.

The first interrupt stops reading and lets in-flight pages finish; a
second one kills the process.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := pipeline.Options{
			DumpPath:         args[0],
			PageIDPath:       args[1],
			IndexPath:        indexFile,
			StatsPath:        cfg.StatsFile,
			WikiURL:          cfg.WikiURL(),
			MinLen:           cfg.SnippetMinSize,
			MaxLen:           cfg.SnippetMaxSize,
			Snippet:          cfg.SnippetOptions(),
			Workers:          cfg.Workers,
			QueueSize:        cfg.QueueSize,
			ProgressEvery:    cfg.ProgressEvery,
			ProgressInterval: cfg.ProgressInterval,
			Store:            cfg.StoreConfig(),
			Mirrors:          cfg.MirrorConfigs(),
			Logger:           slog.Default(),
		}
		if cmd.Flags().Changed("stats") {
			opts.StatsPath = statsFile
		}
		if cmd.Flags().Changed("db") {
			opts.Store.Path = dbPath
		}
		if cmd.Flags().Changed("workers") {
			opts.Workers = workers
		}

		_, err := pipeline.Run(cmd.Context(), opts)
		return err
	},
}

func init() {
	parseCmd.Flags().StringVar(&indexFile, "index", "",
		"multistream index, used to show progress as a percentage")
	parseCmd.Flags().StringVar(&statsFile, "stats", "", "run stats file (overrides stats_file)")
	parseCmd.Flags().StringVar(&dbPath, "db", "", "database path (overrides db.path)")
	parseCmd.Flags().IntVar(&workers, "workers", 0, "number of extraction workers (overrides workers)")
}
