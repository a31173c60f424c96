package config

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// Target site
	BaseURL    string
	CatalogURL string
	ItemPath   string
	Item       string

	// Scheduling
	Workers       int
	MaxItems      int
	MinDelay      time.Duration
	MaxDelay      time.Duration
	SubmitStagger time.Duration

	// Browser
	NavigationTimeout time.Duration
	ChromePath        string
	Headless          bool
	Proxy             string
	UserAgents        []string

	// Images
	HTTPTimeout   time.Duration
	ImageMinDelay time.Duration
	ImageMaxDelay time.Duration
	ImageQuality  int
	PosterWidth   int
	ImageRPS      float64
	ImageBurst    int
	ImageRetries  int
	ListingImages bool

	// Output
	OutputDir string
	Markdown  bool
	Database  Database

	// Selectors overrides the extractor's selector chains per field
	Selectors map[string][]string

	// Sources lists the layers that contributed, for diagnostics
	Sources []string
}

// Database configures the optional SQL sink
type Database struct {
	Driver string
	DSN    string
}

// Enabled reports whether a database sink is configured
func (d Database) Enabled() bool {
	return d.DSN != ""
}

// Load builds a Config by layering defaults, the TOML file, .env and process
// environment, and finally command-line flags that were set explicitly.
// Caller should pass the executing *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := Default()

	path := flagString(cmd, "config")
	if err := cfg.loadFile(path, path != ""); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(flagString(cmd, "env-file")); err != nil {
		return nil, err
	}
	if cmd != nil {
		if err := cfg.loadFlags(cmd); err != nil {
			return nil, err
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func flagString(cmd *cobra.Command, name string) string {
	if cmd == nil {
		return ""
	}
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}
