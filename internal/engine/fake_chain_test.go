package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/blueogin/trade-data-collector/internal/source/evm"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	testContract = common.HexToAddress("0x0ea6d458488d1cf51695e1d6e4744e6fb715d37c")
	testSigs     = evm.Signatures{
		TakeOrder: crypto.Keccak256Hash([]byte("TakeOrderV2(address,uint256)")),
		Clear:     crypto.Keccak256Hash([]byte("ClearV2(address,uint256)")),
	}
)

// fakeChain serves logs, headers and transactions from memory.
// failures queues errors per range start; each FilterLogs call pops one.
type fakeChain struct {
	mu       sync.Mutex
	logs     []types.Log
	headers  map[uint64]uint64
	txs      map[common.Hash]*types.Transaction
	senders  map[*types.Transaction]common.Address
	failures map[uint64][]error
	queries  []ethereum.FilterQuery
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		headers:  map[uint64]uint64{},
		txs:      map[common.Hash]*types.Transaction{},
		senders:  map[*types.Transaction]common.Address{},
		failures: map[uint64][]error{},
	}
}

// addLog registers a log with its block and transaction.
func (f *fakeChain) addLog(topic0 common.Hash, block uint64, txHash common.Hash, from common.Address) {
	f.headers[block] = 1_700_000_000 + block
	if _, ok := f.txs[txHash]; !ok {
		tx := types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.txs))})
		f.txs[txHash] = tx
		f.senders[tx] = from
	}
	f.logs = append(f.logs, types.Log{
		Address:     testContract,
		Topics:      []common.Hash{topic0},
		BlockNumber: block,
		TxHash:      txHash,
	})
}

func (f *fakeChain) failAt(start uint64, errs ...error) {
	f.failures[start] = append(f.failures[start], errs...)
}

func (f *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	if queued := f.failures[from]; len(queued) > 0 {
		f.failures[from] = queued[1:]
		return nil, queued[0]
	}

	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if !matchesAddress(q.Addresses, lg.Address) || !matchesTopic(q.Topics, lg.Topics[0]) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (f *fakeChain) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	ts, ok := f.headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Header{Number: number, Time: ts}, nil
}

func (f *fakeChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (f *fakeChain) TransactionSender(_ context.Context, tx *types.Transaction, _ common.Hash, _ uint) (common.Address, error) {
	from, ok := f.senders[tx]
	if !ok {
		return common.Address{}, errors.New("unknown transaction")
	}
	return from, nil
}

func matchesAddress(addrs []common.Address, a common.Address) bool {
	if len(addrs) == 0 {
		return true
	}
	for _, x := range addrs {
		if x == a {
			return true
		}
	}
	return false
}

func matchesTopic(topics [][]common.Hash, t common.Hash) bool {
	if len(topics) == 0 || len(topics[0]) == 0 {
		return true
	}
	for _, x := range topics[0] {
		if x == t {
			return true
		}
	}
	return false
}

func txHash(i int) common.Hash {
	return crypto.Keccak256Hash(big.NewInt(int64(i)).Bytes())
}

func origin(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0xabc000 + i)))
}

// recordingPacer counts pacing calls.
type recordingPacer struct {
	waits    int
	observed []error
}

func (p *recordingPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

func (p *recordingPacer) Observe(err error) {
	p.observed = append(p.observed, err)
}

func newExtractor(t *testing.T, chain *fakeChain) *evm.Extractor {
	t.Helper()
	return evm.NewExtractor(chain, testSigs, nil)
}
