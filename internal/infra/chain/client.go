// Package chain wraps the go-ethereum websocket client behind the narrow
// capability surface the engine packages consume.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// Client is the chain capability: block subscription, queries, gas math and
// transaction broadcast.
type Client interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	BlockByNumber(ctx context.Context, number uint64) (*domain.Block, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*domain.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionCount(ctx context.Context, address common.Address) (uint64, error)
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID() *big.Int
	Close()
}

// Availability reports whether the chain provider connection is live. The
// block listener owns the connection state; senders consult it to fail fast.
type Availability interface {
	Connected() bool
}

// EthClient implements Client over a single websocket connection, shared by
// the subscription and request traffic.
type EthClient struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the websocket provider and pins the configured chain id
// for transaction signing.
func Dial(ctx context.Context, wsURL string, chainID int64) (*EthClient, error) {
	rpcClient, err := rpc.DialContext(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial provider: %w", err)
	}
	return &EthClient{
		rpc:     rpcClient,
		eth:     ethclient.NewClient(rpcClient),
		chainID: big.NewInt(chainID),
	}, nil
}

func (c *EthClient) SubscribeNewHead(
	ctx context.Context,
	ch chan<- *types.Header,
) (ethereum.Subscription, error) {
	return c.eth.SubscribeNewHead(ctx, ch)
}

// rpcTransaction mirrors the JSON-RPC transaction object. The raw form is
// used instead of ethclient's types.Transaction because the sender address
// comes for free and input data is needed verbatim.
type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	Gas         hexutil.Uint64  `json:"gas"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	Input       hexutil.Bytes   `json:"input"`
	Nonce       hexutil.Uint64  `json:"nonce"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
}

type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Hash         common.Hash      `json:"hash"`
	ParentHash   common.Hash      `json:"parentHash"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Transactions []rpcTransaction `json:"transactions"`
}

// BlockByNumber fetches a block with its full transaction objects.
func (c *EthClient) BlockByNumber(ctx context.Context, number uint64) (*domain.Block, error) {
	var raw *rpcBlock
	err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.Uint64(number).String(), true)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber failed: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	block := &domain.Block{
		Number:       uint64(raw.Number),
		Hash:         raw.Hash.Hex(),
		ParentHash:   raw.ParentHash.Hex(),
		Timestamp:    uint64(raw.Timestamp),
		Transactions: make([]domain.Transaction, 0, len(raw.Transactions)),
	}
	for i := range raw.Transactions {
		block.Transactions = append(block.Transactions, toDomainTx(&raw.Transactions[i]))
	}
	return block, nil
}

func (c *EthClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// TransactionByHash returns the parsed transaction and whether it is still
// pending. domain.ErrTransactionNotFound is returned for unknown hashes.
func (c *EthClient) TransactionByHash(
	ctx context.Context,
	hash common.Hash,
) (*domain.Transaction, bool, error) {
	var raw *rpcTransaction
	err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionByHash", hash)
	if err != nil {
		return nil, false, fmt.Errorf("eth_getTransactionByHash failed: %w", err)
	}
	if raw == nil {
		return nil, false, domain.ErrTransactionNotFound
	}

	tx := toDomainTx(raw)
	return &tx, raw.BlockNumber == nil, nil
}

func (c *EthClient) TransactionReceipt(
	ctx context.Context,
	hash common.Hash,
) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, hash)
}

// TransactionCount returns the confirmed transaction count, the chain's view
// of the next nonce.
func (c *EthClient) TransactionCount(ctx context.Context, address common.Address) (uint64, error) {
	return c.eth.NonceAt(ctx, address, nil)
}

func (c *EthClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, address, nil)
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *EthClient) CallContract(
	ctx context.Context,
	to common.Address,
	data []byte,
) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

func (c *EthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.eth.EstimateGas(ctx, msg)
}

func (c *EthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.eth.SendTransaction(ctx, tx)
}

func (c *EthClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *EthClient) Close() {
	c.eth.Close()
}

func toDomainTx(raw *rpcTransaction) domain.Transaction {
	tx := domain.Transaction{
		Hash:     raw.Hash.Hex(),
		From:     raw.From.Hex(),
		Value:    (*big.Int)(raw.Value),
		Gas:      uint64(raw.Gas),
		GasPrice: (*big.Int)(raw.GasPrice),
		Input:    raw.Input,
		Nonce:    uint64(raw.Nonce),
	}
	if tx.Value == nil {
		tx.Value = new(big.Int)
	}
	if tx.GasPrice == nil {
		tx.GasPrice = new(big.Int)
	}
	if raw.To != nil {
		tx.To = raw.To.Hex()
	}
	if raw.BlockNumber != nil {
		tx.BlockNumber = raw.BlockNumber.ToInt().Uint64()
	}
	return tx
}
