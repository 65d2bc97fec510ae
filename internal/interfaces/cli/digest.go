package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/reservation-intake/internal/application/usecases"
	"github.com/example/reservation-intake/internal/config"
)

func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Send the daily digest without processing documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			uc := usecases.DailyDigest{
				Store:    store,
				Notifier: newNotifier(cfg),
				Audit:    newAuditLog(cfg),
				Location: loc,
			}
			n, err := uc.Execute(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "digest rows=%d\n", n)
			return nil
		},
	}
}
