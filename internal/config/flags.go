package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	pf := cmd.PersistentFlags()
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.BoolP("quiet", "q", false, "Suppress all output except errors")
	pf.Bool("json", false, "Log in JSON format")
	pf.String("config", "", "Path to TOML configuration file (default ./"+DefaultConfigFile+" if present)")
	pf.String("env-file", "", "Path to a .env file (default ./.env if present)")
	pf.StringP("output", "o", "", "Output root directory")
	pf.String("base-url", "", "Site base URL")
	pf.String("proxy", "", "Browser proxy (e.g., http://localhost:8080)")
	pf.String("chrome-path", "", "Path to Chrome/Chromium executable")
	pf.Bool("headless", DefaultHeadless, "Run the browser headless")
	pf.Duration("nav-timeout", DefaultNavigationTimeout, "Page readiness timeout")
	pf.StringArray("user-agent", nil, "User agent for the identity pool (repeatable)")
	pf.String("db-driver", "", "Database driver: sqlite, mysql or pgx")
	pf.String("db-dsn", "", "Database DSN; enables the database sink")
}

// RegisterScrapeFlags registers the batch flags on a scraping command
func RegisterScrapeFlags(cmd *cobra.Command) {
	RegisterListingFlags(cmd)
	RegisterDetailFlags(cmd)
	f := cmd.Flags()
	f.IntP("workers", "t", DefaultWorkers, "Number of concurrent workers")
	f.Duration("stagger", DefaultSubmitStagger, "Pause between task submissions")
}

// RegisterListingFlags registers the catalog flags
func RegisterListingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("max", "m", 0, "Maximum number of items to process (0 = all)")
	f.String("catalog-url", "", "Catalog page URL")
	f.Bool("listing-images", false, "Also download listing thumbnails")
}

// RegisterDetailFlags registers the flags that shape detail records
func RegisterDetailFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("min-delay", DefaultMinDelay, "Minimum delay before each page load")
	f.Duration("max-delay", DefaultMaxDelay, "Maximum delay before each page load")
	f.Bool("markdown", false, "Write a Markdown sidecar next to each record")
	f.Int("image-quality", DefaultImageQuality, "JPEG quality for stored posters (1-100)")
	f.Int("poster-width", DefaultPosterWidth, "Requested poster width when the URL carries one")
}
