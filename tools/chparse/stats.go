package main

import (
	"github.com/spf13/cobra"

	"github.com/citationhunt/chparse/pipeline"
)

var statsCmd = &cobra.Command{
	Use:   "stats [stats-file]",
	Short: "Print the stats of a previous parse run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn := cfg.StatsFile
		if len(args) == 1 {
			fn = args[0]
		}
		stats, err := pipeline.ReadStats(fn)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), stats)
	},
}
