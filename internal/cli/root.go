// internal/cli/root.go
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/law-makers/cartelera/internal/app"
	"github.com/law-makers/cartelera/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cartelera",
	Short: "Collect film listings, details, showtimes and posters from a cinema site",
	Long: `Cartelera reads a cinema chain's catalog page, visits every film's detail page
in a shared headless browser and stores one JSON record per film together with
its poster and showtimes.

Records go under <output>/detail-records, posters under <output>/images and a
timestamped index under <output>. A database sink is enabled with --db-dsn.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command with ctx, which is cancelled on interrupt.
// The application is closed whether or not the command failed.
func Execute(ctx context.Context) error {
	cmd, err := rootCmd.ExecuteContextC(ctx)
	if a := GetApp(cmd); a != nil {
		SetApp(cmd, nil)
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func init() {
	config.RegisterFlags(rootCmd)

	rootCmd.Flags().BoolP("help", "h", false, "Help for cartelera")
	rootCmd.Flags().Bool("version", false, "Version for cartelera")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpFunc(customHelpFunc)
	rootCmd.SetUsageFunc(customUsageFunc)

	// The application is built here rather than in init so -h never starts it
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetApp(cmd) != nil {
			return nil
		}
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		SetApp(cmd, a)
		return nil
	}

	rootCmd.AddCommand(scrapeCmd, listCmd, movieCmd, importCmd)
}
