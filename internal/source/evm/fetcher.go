package evm

import (
	"context"
	"math/big"

	"github.com/blueogin/trade-data-collector/internal/blockrange"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogFetcher queries one block range at a time. It never retries.
type LogFetcher struct {
	client LogFilterer
}

// NewLogFetcher builds a fetcher over the given log filterer.
func NewLogFetcher(client LogFilterer) *LogFetcher {
	return &LogFetcher{client: client}
}

// Fetch returns the logs matching f within r (inclusive). Failures are returned as *FetchError.
func (f *LogFetcher) Fetch(ctx context.Context, r blockrange.Range, filter Filter) ([]types.Log, error) {
	logs, err := f.client.FilterLogs(ctx, Query(r, filter))
	if err != nil {
		return nil, &FetchError{Range: r, Err: err}
	}
	return logs, nil
}

// Query builds the eth_getLogs filter for a range.
func Query(r blockrange.Range, filter Filter) ethereum.FilterQuery {
	topics := make([]common.Hash, len(filter.Topics))
	copy(topics, filter.Topics)
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.Start),
		ToBlock:   new(big.Int).SetUint64(r.End),
		Addresses: []common.Address{filter.Contract},
		Topics:    [][]common.Hash{topics},
	}
}
