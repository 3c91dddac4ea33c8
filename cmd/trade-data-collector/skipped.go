package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagSkippedRun string
	flagSkippedAll bool
)

func init() {
	skippedCmd.Flags().StringVar(&flagSkippedRun, "run", "", "Run id (defaults to the latest run)")
	skippedCmd.Flags().BoolVar(&flagSkippedAll, "all", false, "Include ranges that were already backfilled")
}

var skippedCmd = &cobra.Command{
	Use:   "skipped",
	Short: "List block ranges a run could not fetch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, run, err := openManifest(ctx, cfg, flagSkippedRun)
		if err != nil {
			return err
		}
		defer store.Close()

		ranges, err := store.ListSkipped(ctx, run.ID, !flagSkippedAll)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "run %s (%s %s, blocks %d-%d, %s)\n", run.ID, run.Network, run.Contract, run.FromBlock, run.ToBlock, run.Status)
		if len(ranges) == 0 {
			fmt.Fprintln(out, "no skipped ranges")
			return nil
		}
		for _, sr := range ranges {
			state := "open"
			if !sr.ResolvedAt.IsZero() {
				state = "resolved " + sr.ResolvedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "- [%d, %d] attempts=%d %s: %s\n", sr.StartBlock, sr.EndBlock, sr.Attempts, state, sr.Reason)
		}
		return nil
	},
}
