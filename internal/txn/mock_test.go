package txn

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// mockClient is a scripted chain.Client for pipeline tests. Broadcast
// transactions are recorded and become queryable by hash.
type mockClient struct {
	mu sync.Mutex

	nonce    uint64
	nonceErr error
	balances map[common.Address]*big.Int
	gasPrice *big.Int
	estimate uint64
	latest   uint64

	callResult []byte
	callErr    error

	sendErr error
	sent    []*types.Transaction
	txs     map[common.Hash]*domain.Transaction

	receiptForAll *types.Receipt
	receiptErr    error

	chainID *big.Int
}

func newMockClient() *mockClient {
	return &mockClient{
		balances: make(map[common.Address]*big.Int),
		gasPrice: big.NewInt(1),
		estimate: 60000,
		txs:      make(map[common.Hash]*domain.Transaction),
		chainID:  big.NewInt(1),
	}
}

func (m *mockClient) SubscribeNewHead(context.Context, chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, fmt.Errorf("not supported")
}

func (m *mockClient) BlockByNumber(_ context.Context, number uint64) (*domain.Block, error) {
	return &domain.Block{Number: number}, nil
}

func (m *mockClient) LatestBlockNumber(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, nil
}

func (m *mockClient) TransactionByHash(_ context.Context, hash common.Hash) (*domain.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[hash]
	if !ok {
		return nil, false, domain.ErrTransactionNotFound
	}
	return tx, false, nil
}

func (m *mockClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	if m.receiptForAll == nil {
		return nil, fmt.Errorf("not found")
	}
	return m.receiptForAll, nil
}

func (m *mockClient) TransactionCount(context.Context, common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonce, m.nonceErr
}

func (m *mockClient) BalanceAt(_ context.Context, address common.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if balance, ok := m.balances[address]; ok {
		return new(big.Int).Set(balance), nil
	}
	return new(big.Int), nil
}

func (m *mockClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *mockClient) CallContract(context.Context, common.Address, []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callResult, m.callErr
}

func (m *mockClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimate, nil
}

func (m *mockClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, tx)

	from, err := types.Sender(types.LatestSignerForChainID(m.chainID), tx)
	if err != nil {
		return err
	}
	recorded := &domain.Transaction{
		Hash:     tx.Hash().Hex(),
		From:     from.Hex(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Input:    tx.Data(),
		Nonce:    tx.Nonce(),
	}
	if to := tx.To(); to != nil {
		recorded.To = to.Hex()
	}
	m.txs[tx.Hash()] = recorded
	return nil
}

func (m *mockClient) ChainID() *big.Int {
	return new(big.Int).Set(m.chainID)
}

func (m *mockClient) Close() {}

func (m *mockClient) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockClient) sentAt(i int) *types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[i]
}

// staticAvail is a fixed availability answer.
type staticAvail bool

func (a staticAvail) Connected() bool { return bool(a) }
