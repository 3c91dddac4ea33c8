package main

import (
	"fmt"

	"github.com/blueogin/trade-data-collector/internal/blockrange"
	"github.com/blueogin/trade-data-collector/internal/engine"
	"github.com/blueogin/trade-data-collector/internal/sink"
	"github.com/blueogin/trade-data-collector/internal/source/evm"
	"github.com/spf13/cobra"
)

var flagBackfillRun string

func init() {
	backfillCmd.Flags().StringVar(&flagBackfillRun, "run", "", "Run id (defaults to the latest run)")
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rescan the skipped ranges of a run and append them to its output",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, run, err := openManifest(ctx, cfg, flagBackfillRun)
		if err != nil {
			return err
		}
		defer store.Close()

		skipped, err := store.ListSkipped(ctx, run.ID, true)
		if err != nil {
			return err
		}
		if len(skipped) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s has nothing to backfill\n", run.ID)
			return nil
		}
		ranges := make([]blockrange.Range, 0, len(skipped))
		for _, sr := range skipped {
			ranges = append(ranges, blockrange.Range{Start: sr.StartBlock, End: sr.EndBlock})
		}

		contract, err := parseContract(run.Contract)
		if err != nil {
			return err
		}
		policy, err := engine.ParseFailurePolicy(cfg.Collector.OnFetchError)
		if err != nil {
			return err
		}
		sigs, err := evm.LoadSignatures(cfg.Collector.ABIPath)
		if err != nil {
			return err
		}
		client, err := dialNetwork(ctx, cfg, run.Network)
		if err != nil {
			return fmt.Errorf("connect %s: %w", run.Network, err)
		}
		defer client.Close()

		collector := engine.NewCollector(evm.NewLogFetcher(client), evm.NewExtractor(client, sigs, log), sink.NewFile(run.Output), engine.Options{
			Pacer:    newPacer(cfg.Collector.RateLimit),
			Backoff:  newBackoff(cfg.Collector.Retry),
			Policy:   policy,
			Manifest: store,
			Logger:   log,
		})
		sum, err := collector.Backfill(ctx, engine.Request{RunID: run.ID, Contract: contract, Event: run.Event}, ranges)
		if err != nil {
			return err
		}
		printSummary(cmd, sum, run.Output)
		return nil
	},
}
