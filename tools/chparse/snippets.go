package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/citationhunt/chparse/snippet"
)

var (
	snippetTitle string
	minSize      int
	maxSize      int
)

type sectionOutput struct {
	Title    string          `yaml:"title" json:"title"`
	Anchor   string          `yaml:"anchor" json:"anchor"`
	Snippets []snippetOutput `yaml:"snippets" json:"snippets"`
}

type snippetOutput struct {
	ID   string `yaml:"id" json:"id"`
	Text string `yaml:"text" json:"text"`
}

var snippetsCmd = &cobra.Command{
	Use:   "snippets <wikitext-file|->",
	Short: "Show the snippets extracted from one page of wikitext",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		text, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("reading wikitext: %w", err)
		}

		lo, hi := cfg.SnippetMinSize, cfg.SnippetMaxSize
		if cmd.Flags().Changed("min") {
			lo = minSize
		}
		if cmd.Flags().Changed("max") {
			hi = maxSize
		}

		e := snippet.NewExtractor(cfg.SnippetOptions())
		var out []sectionOutput
		for _, sec := range e.Extract(string(text), lo, hi) {
			so := sectionOutput{
				Title:    sec.Title,
				Anchor:   snippet.Anchor(sec.Title),
				Snippets: []snippetOutput{},
			}
			for _, s := range sec.Snippets {
				so.Snippets = append(so.Snippets, snippetOutput{
					ID:   snippet.ID(snippetTitle, s),
					Text: s,
				})
			}
			out = append(out, so)
		}
		return printOutput(cmd.OutOrStdout(), out)
	},
}

func init() {
	snippetsCmd.Flags().StringVar(&snippetTitle, "title", "", "article title, used for snippet ids")
	snippetsCmd.Flags().IntVar(&minSize, "min", 0, "minimum paragraph length (overrides snippet_min_size)")
	snippetsCmd.Flags().IntVar(&maxSize, "max", 0, "maximum paragraph length (overrides snippet_max_size)")
}
