package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "worktime",
		Short:         "Telegram work-session tracker with weekly and monthly rollups",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default $WORKTIME_CONFIG)")

	root.AddCommand(
		newServeCmd(),
		newBackupCmd(),
		newResetWeekCmd(),
		newRebuildCmd(),
		newCloseAllCmd(),
		newWatchdogCmd(),
		newRemindersCmd(),
		newStatusCmd(),
		newReportCmd(),
		newTopCmd(),
	)
	return root
}
