package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/reservation-intake/internal/config"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <reservation-number>",
		Short: "Show the stored state of one reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resNum, err := strconv.Atoi(args[0])
			if err != nil || resNum <= 0 {
				return fmt.Errorf("reservation number must be a positive integer")
			}

			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ref, found, err := store.Lookup(ctx, resNum)
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "reservation %d: not found\n", resNum)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reservation %d: id=%s edition=%d status=%s\n",
				resNum, ref.ID, ref.Edition, ref.Status)
			return nil
		},
	}
}
