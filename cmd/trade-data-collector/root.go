package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "trade-data-collector",
		Short: "Collect orderbook TakeOrderV2/ClearV2 events from EVM chains into CSV",
	}
)

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "Path to config file (built-in defaults when absent)")

	rootCmd.AddCommand(
		versionCmd,
		initCmd,
		validateCmd,
		collectCmd,
		backfillCmd,
		skippedCmd,
		verifyCmd,
	)
}

// Execute runs the root command tree.
func Execute(ctx context.Context) error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
