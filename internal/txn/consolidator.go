package txn

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/eventing/metrics"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
)

// IntentStore persists pending two-phase consolidations so a restart between
// the top-up receipt and the follow-up transfer is detectable. Recovery is
// manual by design.
type IntentStore interface {
	Save(ctx context.Context, intent *domain.ConsolidationIntent) error
	Delete(ctx context.Context, wallet, contract, source string) error
	List(ctx context.Context) ([]*domain.ConsolidationIntent, error)
}

// Consolidator moves native and token balances from wallet sub-addresses
// into the root account.
type Consolidator struct {
	client     chain.Client
	dispatcher *Dispatcher
	intents    IntentStore
	log        *slog.Logger
}

// NewConsolidator creates a consolidator. intents may be nil, in which case
// pending two-phase consolidations are held in memory only.
func NewConsolidator(client chain.Client, dispatcher *Dispatcher, intents IntentStore) *Consolidator {
	return &Consolidator{
		client:     client,
		dispatcher: dispatcher,
		intents:    intents,
		log:        slog.Default().With("component", "consolidator"),
	}
}

// Native moves everything above the transfer fee from the source account to
// the root address. A zero or negative transferable amount is insufficient,
// not a valid zero-value transfer.
func (c *Consolidator) Native(
	ctx context.Context,
	source *chain.Account,
	root common.Address,
) (common.Hash, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	balance, err := c.client.BalanceAt(ctx, source.Address)
	if err != nil {
		return common.Hash{}, err
	}

	fee := new(big.Int).Mul(gasPrice, big.NewInt(int64(params.TxGas)))
	transferable := new(big.Int).Sub(balance, fee)
	if transferable.Sign() <= 0 {
		return common.Hash{}, domain.ErrInsufficientFunds
	}

	hash, err := c.dispatcher.Send(ctx, source, Skeleton{
		To:       &root,
		Value:    transferable,
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	}, nil)
	if err != nil {
		return common.Hash{}, err
	}

	metrics.Consolidations.WithLabelValues("native").Inc()
	return hash, nil
}

// Token consolidates the source's full token balance into the root account.
// When the source cannot pay the transfer fee itself, the root first tops it
// up with the shortfall and the token transfer follows on the top-up receipt;
// the returned transfer is then a provisional summary, not a receipt.
func (c *Consolidator) Token(
	ctx context.Context,
	token *chain.Token,
	walletID string,
	source *chain.Account,
	root *chain.Account,
) (domain.Transfer, error) {
	tokenBalance, err := token.BalanceOf(ctx, source.Address)
	if err != nil {
		return domain.Transfer{}, err
	}
	if tokenBalance.Sign() <= 0 {
		return domain.Transfer{}, domain.ErrInsufficientFunds
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return domain.Transfer{}, err
	}
	gas, err := token.EstimateTransferGas(ctx, source.Address, root.Address, tokenBalance)
	if err != nil {
		return domain.Transfer{}, err
	}

	estimateFee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	balance, err := c.client.BalanceAt(ctx, source.Address)
	if err != nil {
		return domain.Transfer{}, err
	}

	if balance.Cmp(estimateFee) >= 0 {
		hash, err := c.transferToken(ctx, token, source, root.Address, tokenBalance, gas, gasPrice)
		if err != nil {
			return domain.Transfer{}, err
		}
		metrics.Consolidations.WithLabelValues("token").Inc()
		return token.GetTransfer(ctx, hash)
	}

	// The source cannot pay the transfer fee; check whether the root can
	// cover the shortfall plus its own native transfer fee.
	required := new(big.Int).Sub(estimateFee, balance)
	transferFee := new(big.Int).Mul(gasPrice, big.NewInt(int64(params.TxGas)))
	reserved, err := c.client.BalanceAt(ctx, root.Address)
	if err != nil {
		return domain.Transfer{}, err
	}
	if reserved.Cmp(new(big.Int).Add(required, transferFee)) < 0 {
		return domain.Transfer{}, domain.ErrInsufficientFee
	}

	intent := &domain.ConsolidationIntent{
		Wallet:    walletID,
		Contract:  token.Address.Hex(),
		From:      source.Address.Hex(),
		To:        root.Address.Hex(),
		Value:     tokenBalance.String(),
		CreatedAt: time.Now().Unix(),
	}
	if c.intents != nil {
		if err := c.intents.Save(ctx, intent); err != nil {
			c.log.Warn("failed to persist consolidation intent", "wallet", walletID, "error", err)
		}
	}

	_, err = c.dispatcher.Send(ctx, root, Skeleton{
		To:       &source.Address,
		Value:    required,
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	}, &Callbacks{
		OnSent: func(hash common.Hash) {
			intent.TopUpHash = hash.Hex()
			if c.intents != nil {
				if err := c.intents.Save(context.Background(), intent); err != nil {
					c.log.Warn("failed to update consolidation intent", "wallet", walletID, "error", err)
				}
			}
		},
		OnReceipt: func(*types.Receipt) error {
			// The top-up is mined; the source can now pay its own fee.
			followCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			if _, err := c.transferToken(followCtx, token, source, root.Address, tokenBalance, gas, gasPrice); err != nil {
				return fmt.Errorf("follow-up transfer failed: %w", err)
			}
			if c.intents != nil {
				if err := c.intents.Delete(followCtx, walletID, intent.Contract, intent.From); err != nil {
					c.log.Warn("failed to clear consolidation intent", "wallet", walletID, "error", err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	metrics.Consolidations.WithLabelValues("token_topup").Inc()
	return domain.Transfer{
		Contract: intent.Contract,
		From:     intent.From,
		To:       intent.To,
		Value:    intent.Value,
	}, nil
}

func (c *Consolidator) transferToken(
	ctx context.Context,
	token *chain.Token,
	from *chain.Account,
	to common.Address,
	value *big.Int,
	gas uint64,
	gasPrice *big.Int,
) (common.Hash, error) {
	data, err := token.TransferData(to, value)
	if err != nil {
		return common.Hash{}, err
	}
	return c.dispatcher.Send(ctx, from, Skeleton{
		To:       &token.Address,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	}, nil)
}
