package main

import (
	"context"
	"fmt"
	"time"

	"github.com/blueogin/trade-data-collector/internal/source/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

const defaultDialTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config, ABI signatures and RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		failures := 0

		sigs, err := evm.LoadSignatures(cfg.Collector.ABIPath)
		if err != nil {
			failures++
			fmt.Fprintf(out, "- abi %s: ERROR %v\n", cfg.Collector.ABIPath, err)
		} else {
			fmt.Fprintf(out, "- abi %s: %s %s, %s %s OK\n", cfg.Collector.ABIPath,
				evm.TakeOrderEventName, sigs.TakeOrder.Hex(), evm.ClearEventName, sigs.Clear.Hex())
			if _, err := evm.NewFilter(common.HexToAddress(cfg.Collector.Contract), sigs, cfg.Collector.Event); err != nil {
				failures++
				fmt.Fprintf(out, "- event %q: ERROR %v\n", cfg.Collector.Event, err)
			}
		}

		for _, n := range cfg.Networks {
			endpoint, err := n.RPCEndpoint()
			if err != nil {
				fmt.Fprintf(out, "- network %s: skipped (%v)\n", n.Name, err)
				continue
			}
			chainID, head, err := pingNetwork(cmd.Context(), endpoint)
			if err != nil {
				failures++
				fmt.Fprintf(out, "- network %s: ERROR %v\n", n.Name, err)
				continue
			}
			fmt.Fprintf(out, "- network %s: chainId %d head %d OK\n", n.Name, chainID, head)
		}

		if _, err := cfg.Etherscan.APIKey(); err != nil {
			fmt.Fprintf(out, "- etherscan %s: no api key (%v); collect needs --from\n", cfg.Etherscan.Endpoint(), err)
		} else {
			fmt.Fprintf(out, "- etherscan %s: api key set\n", cfg.Etherscan.Endpoint())
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d check(s) failed", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

func pingNetwork(ctx context.Context, endpoint string) (uint64, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	client, err := evm.NewRPCClient(ctx, endpoint)
	if err != nil {
		return 0, 0, err
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("eth_chainId: %w", err)
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return chainID.Uint64(), head, nil
}
