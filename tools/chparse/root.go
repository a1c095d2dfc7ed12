package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/citationhunt/chparse/config"
)

var (
	cfgFile      string
	logLevel     string
	outputFormat string

	cfg  *config.Config
	vcfg *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "chparse",
	Short: "Find citation-needed snippets in Wikipedia dumps",
	Long: `chparse streams a pages-articles XML dump, finds the paragraphs of the
requested articles that carry a "citation needed" template, and stores
them as snippets in a SQLite database.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.chparse/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(parseCmd, snippetsCmd, statsCmd, indexCmd, mirrorCmd,
		configCmd, versionCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		v.Set("log_level", logLevel)
	}
	c, err := config.Unmarshal(v)
	if err != nil {
		return err
	}
	cfg, vcfg = c, v

	l, _ := cfg.Level()
	level.Set(l)

	// Log level edits take effect without a restart.
	config.Watch(vcfg, slog.Default(), func(c *config.Config) {
		if logLevel != "" {
			return
		}
		if l, err := c.Level(); err == nil && l != level.Level() {
			slog.Info("log level changed", "level", l)
			level.Set(l)
		}
	})
	return nil
}

// printOutput writes v in the format chosen with --output.
func printOutput(w io.Writer, v any) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", outputFormat)
}
