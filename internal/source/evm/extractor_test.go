package evm

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractUsesTransactionSender(t *testing.T) {
	fc := newFakeClient()
	tx := common.HexToHash("0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef")
	origin := common.HexToAddress("0xabc123abc123abc123abc123abc123abc123abcd")
	fc.addBlock(100, 1617912345)
	fc.addTx(tx, origin)

	ex := NewExtractor(fc, testSigs, nil).ForChunk()
	lg := orderLog(testSigs.TakeOrder, 100, tx)
	ev, ok := ex.Extract(context.Background(), lg)
	require.True(t, ok)

	assert.Equal(t, OrderEvent{Origin: origin, Kind: KindTakeOrder, TxHash: tx, Timestamp: 1617912345}, ev)
	assert.NotEqual(t, lg.Address, ev.Origin)
}

func TestExtractClassifiesSecondary(t *testing.T) {
	fc := newFakeClient()
	tx := common.HexToHash("0x01")
	fc.addBlock(5, 50)
	fc.addTx(tx, common.HexToAddress("0x02"))

	ev, ok := NewExtractor(fc, testSigs, nil).ForChunk().Extract(context.Background(), orderLog(testSigs.Clear, 5, tx))
	require.True(t, ok)
	assert.Equal(t, KindClear, ev.Kind)
}

func TestExtractDrops(t *testing.T) {
	fc := newFakeClient()
	knownTx := common.HexToHash("0x0a")
	fc.addBlock(1, 10)
	fc.addTx(knownTx, common.HexToAddress("0x0b"))

	ex := NewExtractor(fc, testSigs, nil).ForChunk()
	ctx := context.Background()

	tests := []struct {
		name string
		log  types.Log
	}{
		{"no topics", types.Log{BlockNumber: 1, TxHash: knownTx}},
		{"unknown block", orderLog(testSigs.TakeOrder, 2, knownTx)},
		{"unknown tx", orderLog(testSigs.TakeOrder, 1, common.HexToHash("0xdead"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ex.Extract(ctx, tt.log)
			assert.False(t, ok)
		})
	}
}

func TestExtractMemoizesWithinChunk(t *testing.T) {
	fc := newFakeClient()
	tx := common.HexToHash("0x0c")
	fc.addBlock(9, 90)
	fc.addTx(tx, common.HexToAddress("0x0d"))

	extractor := NewExtractor(fc, testSigs, nil)
	chunk := extractor.ForChunk()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, ok := chunk.Extract(ctx, orderLog(testSigs.TakeOrder, 9, tx))
		require.True(t, ok)
	}
	headers, txs := chunk.Lookups()
	assert.Equal(t, 1, headers)
	assert.Equal(t, 1, txs)
	assert.Equal(t, 1, fc.headerCalls)
	assert.Equal(t, 1, fc.txCalls)

	_, ok := extractor.ForChunk().Extract(ctx, orderLog(testSigs.TakeOrder, 9, tx))
	require.True(t, ok)
	assert.Equal(t, 2, fc.headerCalls, "a new chunk starts with an empty memo")
}
