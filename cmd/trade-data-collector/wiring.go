package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/blueogin/trade-data-collector/internal/config"
	"github.com/blueogin/trade-data-collector/internal/engine"
	"github.com/blueogin/trade-data-collector/internal/health"
	"github.com/blueogin/trade-data-collector/internal/logging"
	"github.com/blueogin/trade-data-collector/internal/ratelimit"
	"github.com/blueogin/trade-data-collector/internal/source/evm"
	"github.com/ethereum/go-ethereum/common"
)

func newLogger() *slog.Logger {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	return logging.NewWithLevel(logLevel)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// dialNetwork resolves the endpoint of a configured network and connects to it.
func dialNetwork(ctx context.Context, cfg *config.Config, name string) (*evm.RPCClient, error) {
	network, err := cfg.Network(name)
	if err != nil {
		return nil, err
	}
	endpoint, err := network.RPCEndpoint()
	if err != nil {
		return nil, err
	}
	return evm.NewRPCClient(ctx, endpoint)
}

func parseContract(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid contract address %q", s)
	}
	return common.HexToAddress(s), nil
}

func newPacer(rl config.RateLimit) ratelimit.Pacer {
	if strings.EqualFold(rl.Mode, "adaptive") {
		return ratelimit.NewAdaptive(rl.RPS, rl.Burst, rl.MinRPS)
	}
	return ratelimit.NewFixedDelay(rl.Delay.Std())
}

func newBackoff(r config.Retry) engine.Backoff {
	return engine.Backoff{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay.Std(),
		MaxDelay:     r.MaxDelay.Std(),
		Multiplier:   r.Multiplier,
	}
}

// creationLookup finds the block a contract was deployed in.
type creationLookup interface {
	ContractCreationBlock(ctx context.Context, contract common.Address) (uint64, error)
}

// resolveRange turns the --from/--to flags into block numbers. An empty --from means the
// contract's creation block; an empty --to means the chain head.
func resolveRange(ctx context.Context, fromBound, toBound string, head health.HeadReader, creation func() (creationLookup, error), contract common.Address) (uint64, uint64, error) {
	if toBound == "" {
		toBound = "latest"
	}

	var latest uint64
	if evm.IsRelative(fromBound) || evm.IsRelative(toBound) {
		n, err := head.BlockNumber(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("fetch latest block: %w", err)
		}
		latest = n
	}

	to, err := evm.ResolveBlock(toBound, latest)
	if err != nil {
		return 0, 0, err
	}

	if fromBound != "" {
		from, err := evm.ResolveBlock(fromBound, latest)
		if err != nil {
			return 0, 0, err
		}
		return from, to, nil
	}

	lookup, err := creation()
	if err != nil {
		return 0, 0, err
	}
	from, err := lookup.ContractCreationBlock(ctx, contract)
	if err != nil {
		return 0, 0, fmt.Errorf("contract creation block: %w", err)
	}
	return from, to, nil
}

// startServers starts the optional health and metrics listeners and returns their shutdown.
func startServers(log *slog.Logger, healthAddr, metricsAddr string, checker health.Checker) func() {
	var shutdown []func(context.Context) error
	if metricsAddr != "" {
		srv := health.Serve(metricsAddr, health.Handler(health.Checker{}, true))
		shutdown = append(shutdown, srv.Shutdown)
		log.Info("metrics enabled", "addr", metricsAddr)
	}
	if healthAddr != "" {
		srv := health.Serve(healthAddr, health.Handler(checker, false))
		shutdown = append(shutdown, srv.Shutdown)
		log.Info("health check enabled", "addr", healthAddr)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, fn := range shutdown {
			_ = fn(ctx)
		}
	}
}
