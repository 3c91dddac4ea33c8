package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blueogin/trade-data-collector/internal/config"
	"github.com/blueogin/trade-data-collector/internal/engine"
	"github.com/blueogin/trade-data-collector/internal/etherscan"
	"github.com/blueogin/trade-data-collector/internal/health"
	"github.com/blueogin/trade-data-collector/internal/metrics"
	"github.com/blueogin/trade-data-collector/internal/sink"
	"github.com/blueogin/trade-data-collector/internal/source/evm"
	"github.com/blueogin/trade-data-collector/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagNetwork   string
	flagContract  string
	flagEvent     string
	flagFrom      string
	flagTo        string
	flagChunkSize uint64
	flagOutput    string
	flagHealth    string
	flagMetrics   string
)

func init() {
	collectCmd.Flags().StringVarP(&flagNetwork, "network", "n", config.DefaultNetwork, "Network to scan (Base, Mainnet, Flare, Arbitrum, Optimism, Linear)")
	collectCmd.Flags().StringVarP(&flagContract, "contract", "c", "", "Orderbook contract address (defaults to collector.contract)")
	collectCmd.Flags().StringVarP(&flagEvent, "event", "e", "", "Event to collect: TakeOrderV2, ClearV2 or default for both; any other name is rejected")
	collectCmd.Flags().StringVar(&flagFrom, "from", "", "Start block: number, latest or latest-N (defaults to the contract creation block)")
	collectCmd.Flags().StringVar(&flagTo, "to", "", "End block: number, latest or latest-N (defaults to latest)")
	collectCmd.Flags().Uint64Var(&flagChunkSize, "chunk-size", 0, "Blocks per log query (defaults to collector.chunk_size)")
	collectCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "CSV output path (defaults to collector.output)")
	collectCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	collectCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Scan a block range and write order events to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cc := cfg.Collector
		if flagContract != "" {
			cc.Contract = flagContract
		}
		if cmd.Flags().Changed("event") {
			cc.Event = flagEvent
		}
		if flagChunkSize > 0 {
			cc.ChunkSize = flagChunkSize
		}
		if flagOutput != "" {
			cc.Output = flagOutput
		}

		contract, err := parseContract(cc.Contract)
		if err != nil {
			return err
		}
		policy, err := engine.ParseFailurePolicy(cc.OnFetchError)
		if err != nil {
			return err
		}
		sigs, err := evm.LoadSignatures(cc.ABIPath)
		if err != nil {
			return err
		}

		client, err := dialNetwork(ctx, cfg, flagNetwork)
		if err != nil {
			return fmt.Errorf("connect %s: %w", flagNetwork, err)
		}
		defer client.Close()

		from, to, err := resolveRange(ctx, flagFrom, flagTo, client, func() (creationLookup, error) {
			key, err := cfg.Etherscan.APIKey()
			if err != nil {
				return nil, err
			}
			return etherscan.New(cfg.Etherscan.Endpoint(), key), nil
		}, contract)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Scanning blocks %d to %d\n", from, to)

		var (
			store *storage.Store
			runID string
		)
		if cc.ManifestPath != "" {
			store, err = storage.Open(cc.ManifestPath)
			if err != nil {
				return fmt.Errorf("open manifest: %w", err)
			}
			defer store.Close()
			run, err := store.StartRun(ctx, storage.Run{
				Network:   flagNetwork,
				Contract:  contract.Hex(),
				Event:     cc.Event,
				FromBlock: from,
				ToBlock:   to,
				ChunkSize: cc.ChunkSize,
				Output:    cc.Output,
			})
			if err != nil {
				return err
			}
			runID = run.ID
			log.Info("run started", "run", runID)
		}

		opts := engine.Options{
			Pacer:   newPacer(cc.RateLimit),
			Backoff: newBackoff(cc.Retry),
			Policy:  policy,
			Logger:  log,
		}
		if store != nil {
			opts.Manifest = store
		}
		if flagMetrics != "" {
			opts.Metrics = metrics.Init()
		}
		collector := engine.NewCollector(evm.NewLogFetcher(client), evm.NewExtractor(client, sigs, log), sink.NewFile(cc.Output), opts)

		checker := health.Checker{
			RPCPing: health.NewRPCChecker(map[string]health.HeadReader{flagNetwork: client}).Ping,
			Phase:   func() string { return collector.State().Phase.String() },
		}
		if store != nil {
			checker.ManifestPing = store.Ping
		}
		stopServers := startServers(log, flagHealth, flagMetrics, checker)
		defer stopServers()

		sum, runErr := collector.Run(ctx, engine.Request{
			RunID:     runID,
			Contract:  contract,
			Event:     cc.Event,
			From:      from,
			To:        to,
			ChunkSize: cc.ChunkSize,
		})
		if store != nil {
			finishRun(store, runID, sum, runErr, log)
		}
		if runErr != nil {
			return runErr
		}

		printSummary(cmd, sum, cc.Output)
		if len(sum.Skipped) > 0 && runID != "" {
			fmt.Fprintf(out, "%d range(s) skipped; rerun them with: backfill --run %s\n", len(sum.Skipped), runID)
		}
		return nil
	},
}

func finishRun(store *storage.Store, runID string, sum engine.Summary, runErr error, log *slog.Logger) {
	status := storage.RunCompleted
	if runErr != nil {
		status = storage.RunFailed
	}
	// The run may have ended because ctx was cancelled; record it anyway.
	if err := store.FinishRun(context.Background(), runID, status, sum.Events, runErr); err != nil {
		log.Error("finish run", "run", runID, "error", err)
	}
}

func printSummary(cmd *cobra.Command, sum engine.Summary, output string) {
	fmt.Fprintf(cmd.OutOrStdout(), "Collected %d event(s) from %d range(s) into %s (%d dropped, %d skipped)\n",
		sum.Events, sum.Ranges, output, sum.Dropped, len(sum.Skipped))
}
