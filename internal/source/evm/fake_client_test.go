package evm

import (
	"context"
	"errors"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var errNotFound = errors.New("not found")

type fakeClient struct {
	logs    []types.Log
	logsErr error
	queries []ethereum.FilterQuery

	headers map[uint64]*types.Header
	txs     map[common.Hash]*types.Transaction
	senders map[common.Hash]common.Address
	byTx    map[*types.Transaction]common.Hash

	headerCalls int
	txCalls     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		headers: map[uint64]*types.Header{},
		txs:     map[common.Hash]*types.Transaction{},
		senders: map[common.Hash]common.Address{},
		byTx:    map[*types.Transaction]common.Hash{},
	}
}

func (f *fakeClient) addBlock(number, timestamp uint64) {
	f.headers[number] = &types.Header{Number: new(big.Int).SetUint64(number), Time: timestamp}
}

func (f *fakeClient) addTx(hash common.Hash, from common.Address) {
	tx := types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.txs))})
	f.txs[hash] = tx
	f.byTx[tx] = hash
	f.senders[hash] = from
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return f.logs, nil
}

func (f *fakeClient) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.headerCalls++
	if h, ok := f.headers[number.Uint64()]; ok {
		return h, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeClient) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.txCalls++
	if tx, ok := f.txs[hash]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeClient) TransactionSender(_ context.Context, tx *types.Transaction, _ common.Hash, _ uint) (common.Address, error) {
	hash, ok := f.byTx[tx]
	if !ok {
		return common.Address{}, errNotFound
	}
	from, ok := f.senders[hash]
	if !ok {
		return common.Address{}, errNotFound
	}
	return from, nil
}

var testSigs = Signatures{
	TakeOrder: crypto.Keccak256Hash([]byte("TakeOrderV2(address,uint256)")),
	Clear:     crypto.Keccak256Hash([]byte("ClearV2(address,uint256)")),
}

func orderLog(topic0 common.Hash, block uint64, tx common.Hash) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x0ea6d458488d1cf51695e1d6e4744e6fb715d37c"),
		Topics:      []common.Hash{topic0},
		BlockNumber: block,
		TxHash:      tx,
	}
}
