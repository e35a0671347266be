package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/transfer"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var tokenABI = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func unpackBig(raw []byte, method string) (*big.Int, error) {
	out, err := tokenABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%s unpack failed: %w", method, err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned unexpected type %T", method, out[0])
	}
	return value, nil
}

// Token binds the minimal ERC-20 surface of one contract.
type Token struct {
	Address common.Address
	client  Client
}

// NewToken binds a token contract address.
func NewToken(client Client, contract string) *Token {
	return &Token{
		Address: common.HexToAddress(contract),
		client:  client,
	}
}

// BalanceOf returns the token balance of an address.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := tokenABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	raw, err := t.client.CallContract(ctx, t.Address, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}
	return unpackBig(raw, "balanceOf")
}

// TotalSupply returns the token's total supply.
func (t *Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	data, err := tokenABI.Pack("totalSupply")
	if err != nil {
		return nil, err
	}
	raw, err := t.client.CallContract(ctx, t.Address, data)
	if err != nil {
		return nil, fmt.Errorf("totalSupply call failed: %w", err)
	}
	return unpackBig(raw, "totalSupply")
}

// TransferData encodes a transfer(to, value) call.
func (t *Token) TransferData(to common.Address, value *big.Int) ([]byte, error) {
	return tokenABI.Pack("transfer", to, value)
}

// EstimateTransferGas estimates gas for a transfer call from the given
// sender.
func (t *Token) EstimateTransferGas(
	ctx context.Context,
	from common.Address,
	to common.Address,
	value *big.Int,
) (uint64, error) {
	data, err := t.TransferData(to, value)
	if err != nil {
		return 0, err
	}
	return t.client.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &t.Address,
		Data: data,
	})
}

// GetTransfer decodes the token transfer carried by a transaction's input
// data. The transaction must target this contract.
func (t *Token) GetTransfer(ctx context.Context, hash common.Hash) (domain.Transfer, error) {
	tx, _, err := t.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return domain.Transfer{}, domain.ErrTransferNotFound
		}
		return domain.Transfer{}, err
	}
	if tx.To != t.Address.Hex() {
		return domain.Transfer{}, domain.ErrUnknownContract
	}
	return transfer.Token(tx, nil)
}

// GetTransferReceipt returns a confirmed transfer: the decoded input must be
// backed by a successful receipt carrying a matching Transfer event, and the
// event's value wins. Confirmations and timestamp are filled from the chain.
func (t *Token) GetTransferReceipt(ctx context.Context, hash common.Hash) (domain.Transfer, error) {
	decoded, err := t.GetTransfer(ctx, hash)
	if err != nil {
		return domain.Transfer{}, err
	}

	receipt, err := t.client.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil || receipt.Status == 0 {
		return domain.Transfer{}, domain.ErrNotConfirmed
	}

	if err := transfer.Reconcile(&decoded, receipt.Logs, t.Address); err != nil {
		return domain.Transfer{}, err
	}

	current, err := t.client.LatestBlockNumber(ctx)
	if err != nil {
		return domain.Transfer{}, err
	}
	block, err := t.client.BlockByNumber(ctx, decoded.BlockNumber)
	if err != nil {
		return domain.Transfer{}, err
	}

	decoded.Confirmations = current - decoded.BlockNumber
	if block != nil {
		decoded.Timestamp = block.Timestamp
	}
	return decoded, nil
}
