package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/templui/picsellart/internal/model"
)

func PacksCmd() *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "packs",
		Short: "Print the seller pack catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRICE\tUPLOADS\tMAX PER ITEM\tDAYS")
			for _, p := range model.Packs() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\n",
					p.ID,
					p.Name,
					model.FormatAmount(p.Price, currency),
					p.UploadLimit,
					model.FormatAmount(p.MaxPricePerItem, currency),
					p.DurationDays,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "inr", "ISO 4217 currency for display")
	return cmd
}
