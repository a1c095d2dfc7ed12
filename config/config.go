// Package config loads chparse settings from defaults, an optional YAML
// file and CHPARSE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/citationhunt/chparse/mirror"
	"github.com/citationhunt/chparse/snippet"
	"github.com/citationhunt/chparse/store"
	"github.com/citationhunt/chparse/wikitext"
)

// Config is the full set of settings.
type Config struct {
	WikipediaDomain   string        `mapstructure:"wikipedia_domain" yaml:"wikipedia_domain"`
	SnippetMinSize    int           `mapstructure:"snippet_min_size" yaml:"snippet_min_size"`
	SnippetMaxSize    int           `mapstructure:"snippet_max_size" yaml:"snippet_max_size"`
	Workers           int           `mapstructure:"workers" yaml:"workers"`
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	ProgressEvery     int64         `mapstructure:"progress_every" yaml:"progress_every"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	StatsFile         string        `mapstructure:"stats_file" yaml:"stats_file"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	CitationTemplates []string      `mapstructure:"citation_templates" yaml:"citation_templates"`

	Strip     StripConfig     `mapstructure:"strip" yaml:"strip"`
	Formatter FormatterConfig `mapstructure:"formatter" yaml:"formatter"`
	DB        store.Config    `mapstructure:"db" yaml:"db"`
	Retry     RetryConfig     `mapstructure:"retry" yaml:"retry"`
	Mirrors   []mirror.Config `mapstructure:"mirrors" yaml:"mirrors"`
}

// StripConfig controls how wikitext is reduced to plain text.
type StripConfig struct {
	KeepTemplates bool     `mapstructure:"keep_templates" yaml:"keep_templates"`
	FilePrefixes  []string `mapstructure:"file_prefixes" yaml:"file_prefixes"`
	DropTags      []string `mapstructure:"drop_tags" yaml:"drop_tags"`
}

// FormatterConfig names an external command every snippet is piped
// through. Empty means snippets are kept as extracted.
type FormatterConfig struct {
	Command []string `mapstructure:"command" yaml:"command"`
}

// RetryConfig bounds the retries of a database write.
type RetryConfig struct {
	Attempts uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	policy := wikitext.DefaultStripPolicy()
	return &Config{
		WikipediaDomain:   "en.wikipedia.org",
		SnippetMinSize:    140,
		SnippetMaxSize:    420,
		Workers:           runtime.NumCPU(),
		QueueSize:         1000,
		ProgressEvery:     10,
		ProgressInterval:  10 * time.Second,
		StatsFile:         "stats.gob",
		LogLevel:          "info",
		CitationTemplates: snippet.DefaultTemplates,
		Strip: StripConfig{
			KeepTemplates: policy.KeepTemplates,
			FilePrefixes:  policy.FilePrefixes,
			DropTags:      policy.DropTags,
		},
		DB: store.Config{
			Driver: store.DriverSQLite,
			Path:   "chdb.sqlite",
			Reset:  true,
		},
		Retry: RetryConfig{
			Attempts: 5,
			Delay:    100 * time.Millisecond,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("wikipedia_domain", d.WikipediaDomain)
	v.SetDefault("snippet_min_size", d.SnippetMinSize)
	v.SetDefault("snippet_max_size", d.SnippetMaxSize)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("progress_every", d.ProgressEvery)
	v.SetDefault("progress_interval", d.ProgressInterval)
	v.SetDefault("stats_file", d.StatsFile)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("citation_templates", d.CitationTemplates)
	v.SetDefault("strip.keep_templates", d.Strip.KeepTemplates)
	v.SetDefault("strip.file_prefixes", d.Strip.FilePrefixes)
	v.SetDefault("strip.drop_tags", d.Strip.DropTags)
	v.SetDefault("formatter.command", []string{})
	v.SetDefault("db.driver", d.DB.Driver)
	v.SetDefault("db.path", d.DB.Path)
	v.SetDefault("db.reset", d.DB.Reset)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.delay", d.Retry.Delay)
	v.SetDefault("mirrors", []mirror.Config{})
}

// New returns a viper instance with defaults and environment bindings,
// reading cfgFile or, when empty, config.yaml from . or ~/.chparse if
// present.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variables with CHPARSE_ prefix; db.path is CHPARSE_DB_PATH.
	v.SetEnvPrefix("CHPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.chparse")
	}

	// The config file is optional.
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// Unmarshal decodes and validates the current settings of v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New followed by Unmarshal.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v, err := New(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Watch calls fn with the new settings whenever the config file changes.
// Invalid edits are logged and ignored.
func Watch(v *viper.Viper, log *slog.Logger, fn func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Unmarshal(v)
		if err != nil {
			log.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.WikipediaDomain == "" {
		errs = append(errs, errors.New("wikipedia_domain is empty"))
	}
	if c.SnippetMinSize < 0 || c.SnippetMinSize > c.SnippetMaxSize {
		errs = append(errs, fmt.Errorf("snippet sizes [%d, %d] are not a valid range",
			c.SnippetMinSize, c.SnippetMaxSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize))
	}
	switch c.DB.Driver {
	case store.DriverSQLite, store.DriverSQLite3:
	default:
		errs = append(errs, fmt.Errorf("unknown db.driver %q", c.DB.Driver))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	for _, m := range c.Mirrors {
		if !mirror.KnownKind(m.Kind) {
			errs = append(errs, fmt.Errorf("unknown mirror kind %q", m.Kind))
		}
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// WikiURL is the prefix of article URLs.
func (c *Config) WikiURL() string {
	return "https://" + c.WikipediaDomain + "/wiki/"
}

// StoreConfig is the database configuration with the retry settings
// folded in.
func (c *Config) StoreConfig() store.Config {
	rv := c.DB
	rv.Attempts = c.Retry.Attempts
	rv.Delay = c.Retry.Delay
	return rv
}

// MirrorConfigs returns the mirror settings with ${ENV_VAR} references in
// URLs resolved.
func (c *Config) MirrorConfigs() []mirror.Config {
	rv := make([]mirror.Config, len(c.Mirrors))
	for i, m := range c.Mirrors {
		m.URL = ResolveEnvVars(m.URL)
		rv[i] = m
	}
	return rv
}

// SnippetOptions builds the extractor options.
func (c *Config) SnippetOptions() snippet.Options {
	policy := wikitext.DefaultStripPolicy()
	policy.KeepTemplates = c.Strip.KeepTemplates
	policy.FilePrefixes = c.Strip.FilePrefixes
	policy.DropTags = c.Strip.DropTags

	opts := snippet.Options{
		Templates: c.CitationTemplates,
		Policy:    &policy,
	}
	if len(c.Formatter.Command) > 0 {
		opts.PostProcess = snippet.CommandFormatter(c.Formatter.Command[0], c.Formatter.Command[1:]...)
	}
	return opts
}

var envRE = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	return envRE.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// WriteDefault writes the default configuration as YAML.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte("# chparse configuration\n# Mirror URLs may use ${ENV_VAR} references.\n\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
