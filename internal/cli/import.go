package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/cartelera/internal/persist"
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Load existing detail records into the database",
	Long: `Import reads every detail record in dir (default <output>/detail-records) and
upserts it into the configured database. Failure records are skipped.`,
	Example: `  cartelera import --db-dsn ./cartelera.db
  cartelera import ./old-run/detail-records --db-driver mysql --db-dsn 'user:pass@tcp(localhost:3306)/cartelera'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp(cmd)
		dir := a.Writer.RecordsDir()
		if len(args) == 1 {
			dir = args[0]
		}

		db, err := a.Store(cmd.Context())
		if err != nil {
			return err
		}
		if db == nil {
			return fmt.Errorf("no database configured: set --db-dsn or database.dsn")
		}

		recs, err := persist.LoadRecords(dir)
		if err != nil {
			return err
		}
		saved := db.SaveRecords(cmd.Context(), recs)
		total, err := db.CountFilms(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d of %d records from %s (%d films in database)\n", saved, len(recs), dir, total)
		return nil
	},
}
