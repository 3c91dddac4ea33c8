package evm

import (
	"context"
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Extractor maps raw orderbook logs to OrderEvents.
type Extractor struct {
	client ChainReader
	sigs   Signatures
	log    *slog.Logger
}

// NewExtractor builds an extractor. A nil logger discards drop diagnostics.
func NewExtractor(client ChainReader, sigs Signatures, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{client: client, sigs: sigs, log: log}
}

// Signatures returns the event signatures the extractor classifies against.
func (e *Extractor) Signatures() Signatures {
	return e.sigs
}

// ForChunk returns an extractor whose block and transaction lookups are memoized
// for the lifetime of one chunk.
func (e *Extractor) ForChunk() *ChunkExtractor {
	return &ChunkExtractor{
		parent:     e,
		timestamps: map[uint64]uint64{},
		origins:    map[common.Hash]common.Address{},
	}
}

// ChunkExtractor extracts the logs of a single chunk. Not safe for concurrent use.
type ChunkExtractor struct {
	parent     *Extractor
	timestamps map[uint64]uint64
	origins    map[common.Hash]common.Address

	headerCalls int
	txCalls     int
}

// Extract converts lg into an OrderEvent. It reports false when the log has no topics
// or its block or transaction cannot be resolved; such logs are dropped.
func (c *ChunkExtractor) Extract(ctx context.Context, lg types.Log) (OrderEvent, bool) {
	log := c.parent.log
	if len(lg.Topics) == 0 {
		log.Debug("drop log without topics", "tx", lg.TxHash.Hex(), "block", lg.BlockNumber)
		return OrderEvent{}, false
	}
	kind := c.parent.sigs.Classify(lg.Topics[0])

	ts, ok := c.timestamp(ctx, lg.BlockNumber)
	if !ok {
		return OrderEvent{}, false
	}
	origin, ok := c.origin(ctx, lg)
	if !ok {
		return OrderEvent{}, false
	}

	return OrderEvent{
		Origin:    origin,
		Kind:      kind,
		TxHash:    lg.TxHash,
		Timestamp: ts,
	}, true
}

// Lookups reports how many header and transaction round trips the chunk needed.
func (c *ChunkExtractor) Lookups() (headers, txs int) {
	return c.headerCalls, c.txCalls
}

func (c *ChunkExtractor) timestamp(ctx context.Context, number uint64) (uint64, bool) {
	if ts, ok := c.timestamps[number]; ok {
		return ts, true
	}
	c.headerCalls++
	header, err := c.parent.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil || header == nil {
		c.parent.log.Debug("drop log: block unavailable", "block", number, "error", err)
		return 0, false
	}
	c.timestamps[number] = header.Time
	return header.Time, true
}

func (c *ChunkExtractor) origin(ctx context.Context, lg types.Log) (common.Address, bool) {
	if from, ok := c.origins[lg.TxHash]; ok {
		return from, true
	}
	c.txCalls++
	tx, _, err := c.parent.client.TransactionByHash(ctx, lg.TxHash)
	if err != nil || tx == nil {
		c.parent.log.Debug("drop log: transaction unavailable", "tx", lg.TxHash.Hex(), "error", err)
		return common.Address{}, false
	}
	from, err := c.parent.client.TransactionSender(ctx, tx, lg.BlockHash, lg.TxIndex)
	if err != nil {
		c.parent.log.Debug("drop log: sender unavailable", "tx", lg.TxHash.Hex(), "error", err)
		return common.Address{}, false
	}
	c.origins[lg.TxHash] = from
	return from, true
}
