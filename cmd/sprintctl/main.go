// Command sprintctl runs the dashboard's CSV cleaning and sprint analysis
// offline, against export files on disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/logging"
)

var (
	logLevel string
	logger   *zap.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sprintctl",
		Short:         "Clean tracker exports and compute sprint metrics offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if logger != nil {
				return nil
			}
			l, err := logging.New(logLevel)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCleanCmd(),
		newCleanZipCmd(),
		newMetricsCmd(),
		newAssigneesCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
