package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/law-makers/cartelera/internal/config"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the catalog and write its index without visiting detail pages",
	Example: `  cartelera list
  cartelera list -m 5 --listing-images`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp(cmd)
		if err := a.Writer.Lock(); err != nil {
			return err
		}
		defer a.Writer.Unlock()

		refs, err := collectListing(cmd.Context(), a)
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(refs))
		for i, r := range refs {
			image := "-"
			if r.LocalImagePath != nil {
				image = *r.LocalImagePath
			}
			rows = append(rows, []string{strconv.Itoa(i + 1), r.Title, r.URL, image})
		}
		fmt.Println(renderTable([]string{"#", "Title", "URL", "Image"}, rows, []columnAlignment{alignRight}))
		fmt.Printf("%d films listed\n", len(refs))
		return nil
	},
}

func init() {
	config.RegisterListingFlags(listCmd)
}
