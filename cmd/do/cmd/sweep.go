package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/templui/picsellart/internal/app"
	"github.com/templui/picsellart/internal/config"
)

func SweepCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail payment orders that were never paid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if ttl == 0 {
				ttl = cfg.OrderTTL
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			n, err := a.Reconciler.ExpireStale(ctx, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d stale orders\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "older-than", 0, "order age to expire (default ORDER_TTL)")
	return cmd
}
