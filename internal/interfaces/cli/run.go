package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/reservation-intake/internal/application/usecases"
	"github.com/example/reservation-intake/internal/config"
	"github.com/example/reservation-intake/internal/infrastructure/intake"
)

func newRunCmd() *cobra.Command {
	var (
		maxJobs      int
		downloadsDir string
		withDigest   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile downloaded order documents into the tracking store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			if maxJobs < 0 {
				return fmt.Errorf("--max must not be negative")
			}
			if cmd.Flags().Changed("max") {
				cfg.MaxPerRun = maxJobs
			}
			if downloadsDir != "" {
				cfg.DownloadsDir = downloadsDir
			}

			ctx := context.Background()
			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			auditLog := newAuditLog(cfg)
			notifier := newNotifier(cfg)

			batch := usecases.RunBatch{
				Source: intake.Scanner{Dir: cfg.DownloadsDir, Audit: auditLog},
				Reconcile: usecases.Reconcile{
					Store:     store,
					Extractor: newExtractor(cfg, auditLog),
					Notifier:  notifier,
					Audit:     auditLog,
				},
				Audit:   auditLog,
				MaxJobs: cfg.MaxPerRun,
			}

			sum, err := batch.Execute(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d skipped=%d failed=%d\n",
				sum.Created, sum.Updated, sum.Skipped, sum.Failed)

			if withDigest {
				loc, err := cfg.Location()
				if err != nil {
					return err
				}
				digest := usecases.DailyDigest{
					Store:    store,
					Notifier: notifier,
					Audit:    auditLog,
					Location: loc,
				}
				n, err := digest.Execute(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "digest rows=%d\n", n)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxJobs, "max", 0, "limit documents processed this run (0 = config default)")
	cmd.Flags().StringVar(&downloadsDir, "downloads", "", "override the downloads directory")
	cmd.Flags().BoolVar(&withDigest, "digest", true, "send the daily digest after processing")
	return cmd
}
