package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// configDir is the persistent --config-dir flag value shared by subcommands.
var configDir string

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "resintake",
		Short:        "Reservation order intake: reconciles incoming order documents into the tracking database",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", ".resintake", "configuration directory")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDigestCmd())
	cmd.AddCommand(newLookupCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func Execute() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
