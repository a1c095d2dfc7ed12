package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/citationhunt/chparse"
)

var indexSummary bool

var indexCmd = &cobra.Command{
	Use:   "index <multistream-index.txt.bz2>",
	Short: "Print the entries of a multistream index",
	Long: `Prints every index entry with its stream offset corrected for the
32 bit wraparound in the published indexes. With --summary only the
number of streams and pages is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := chparse.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		if indexSummary {
			size, err := chparse.CountIndex(r)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), map[string]int64{
				"streams": int64(size.Streams),
				"pages":   size.Pages,
			})
		}

		ir := chparse.NewIndexReader(r)
		for {
			e, err := ir.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading index: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.String())
		}
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexSummary, "summary", false, "only count streams and pages")
}
