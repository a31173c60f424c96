package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/cartelera/internal/config"
	"github.com/law-makers/cartelera/pkg/models"
)

var movieCmd = &cobra.Command{
	Use:   "movie [url|slug]",
	Short: "Collect the detail record of a single film",
	Long: `Movie visits one detail page and writes its record. The target is a full URL
or a slug appended to the base URL and item path; without an argument the
configured item is used.`,
	Example: `  cartelera movie dune-parte-dos
  cartelera movie https://www.cinesa.es/peliculas/dune-parte-dos/ --markdown`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp(cmd)
		target := a.Config.Item
		if len(args) == 1 {
			target = args[0]
		}
		if target == "" {
			return fmt.Errorf("a film URL or slug is required")
		}

		if err := a.Writer.Lock(); err != nil {
			return err
		}
		defer a.Writer.Unlock()

		eng, err := a.Engine(nil)
		if err != nil {
			return err
		}
		out := eng.ProcessItem(cmd.Context(), models.ItemReference{URL: a.ItemURL(target)})
		if out.Succeeded() {
			saveToStore(context.WithoutCancel(cmd.Context()), a, []*models.ExtractedRecord{out.Record})
		}

		fmt.Println(summaryTable([]models.Outcome{out}))
		if !out.Succeeded() {
			return out.Err
		}
		fmt.Printf("Record: %s\n", out.RecordPath)
		return nil
	},
}

func init() {
	config.RegisterDetailFlags(movieCmd)
}
