package txn

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/eventing/metrics"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
)

// receiptDeadline bounds how long a broadcast transaction is watched for its
// receipt before the watcher gives up.
const receiptDeadline = 10 * time.Minute

// maxConfirmations is how many confirmation callbacks fire for one receipt.
const maxConfirmations = 12

// Skeleton is a partially specified transaction. A nil Nonce means the
// sequencer injects one; a nil GasPrice is filled from the chain.
type Skeleton struct {
	To       *common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
	Nonce    *uint64
}

// Callbacks are the optional lifecycle hooks of a send. OnConfirmation may
// fire multiple times as confirmations accrue; OnReceipt fires exactly once
// when the transaction is mined. When OnReceipt is set, Send waits for it and
// propagates its error as the send's failure.
type Callbacks struct {
	OnSending      func()
	OnSent         func(hash common.Hash)
	OnConfirmation func(confirmations uint64)
	OnReceipt      func(receipt *types.Receipt) error
}

// Dispatcher builds, signs and broadcasts transactions under the nonce
// sequencer.
type Dispatcher struct {
	client          chain.Client
	sequencer       *Sequencer
	avail           chain.Availability
	receiptInterval time.Duration
	log             *slog.Logger
}

// NewDispatcher creates a dispatcher. avail may be nil, in which case no
// availability pre-check happens (tests).
func NewDispatcher(
	client chain.Client,
	sequencer *Sequencer,
	avail chain.Availability,
	receiptInterval time.Duration,
) *Dispatcher {
	if receiptInterval <= 0 {
		receiptInterval = 2 * time.Second
	}
	return &Dispatcher{
		client:          client,
		sequencer:       sequencer,
		avail:           avail,
		receiptInterval: receiptInterval,
		log:             slog.Default().With("component", "dispatcher"),
	}
}

// Send signs and broadcasts a transaction for the account, resolving with the
// transaction hash as soon as it is known. The nonce lock is held only
// through broadcast, never while waiting for a receipt.
func (d *Dispatcher) Send(
	ctx context.Context,
	account *chain.Account,
	skeleton Skeleton,
	callbacks *Callbacks,
) (common.Hash, error) {
	if d.avail != nil && !d.avail.Connected() {
		return common.Hash{}, domain.ErrClientUnavailable
	}
	if callbacks == nil {
		callbacks = &Callbacks{}
	}
	if skeleton.Value == nil {
		skeleton.Value = new(big.Int)
	}

	var hash common.Hash
	var receiptErr chan error

	err := d.sequencer.WithNonce(ctx, account.Address, func(nonce uint64) error {
		if skeleton.Nonce != nil {
			nonce = *skeleton.Nonce
		}

		gasPrice := skeleton.GasPrice
		if gasPrice == nil {
			suggested, err := d.client.SuggestGasPrice(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch gas price: %w", err)
			}
			gasPrice = suggested
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       skeleton.To,
			Value:    skeleton.Value,
			Gas:      skeleton.Gas,
			GasPrice: gasPrice,
			Data:     skeleton.Data,
		})

		signed, err := account.SignTx(tx, d.client.ChainID())
		if err != nil {
			return fmt.Errorf("failed to sign transaction: %w", err)
		}

		if callbacks.OnSending != nil {
			callbacks.OnSending()
		}

		if err := d.client.SendTransaction(ctx, signed); err != nil {
			return fmt.Errorf("failed to broadcast transaction: %w", err)
		}

		hash = signed.Hash()
		metrics.TransactionsSent.Inc()

		if callbacks.OnSent != nil {
			callbacks.OnSent(hash)
		}

		if callbacks.OnReceipt != nil {
			receiptErr = make(chan error, 1)
		}
		if callbacks.OnReceipt != nil || callbacks.OnConfirmation != nil {
			go d.watch(hash, callbacks, receiptErr)
		}
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}

	if receiptErr != nil {
		if err := <-receiptErr; err != nil {
			return hash, fmt.Errorf("receipt handler failed: %w", err)
		}
	}
	return hash, nil
}

// watch polls for the receipt of a broadcast transaction and drives the
// confirmation/receipt callbacks. In-flight sends are not cancellable, so
// the watcher runs on its own deadline rather than the caller's context.
func (d *Dispatcher) watch(hash common.Hash, callbacks *Callbacks, receiptErr chan<- error) {
	ctx, cancel := context.WithTimeout(context.Background(), receiptDeadline)
	defer cancel()

	receipt, err := d.awaitReceipt(ctx, hash)
	if err != nil {
		d.log.Warn("receipt watch gave up", "tx", hash.Hex(), "error", err)
		if receiptErr != nil {
			receiptErr <- err
		}
		return
	}

	if callbacks.OnReceipt != nil {
		receiptErr <- callbacks.OnReceipt(receipt)
	}

	if callbacks.OnConfirmation != nil {
		d.trackConfirmations(ctx, receipt, callbacks.OnConfirmation)
	}
}

func (d *Dispatcher) awaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) trackConfirmations(
	ctx context.Context,
	receipt *types.Receipt,
	onConfirmation func(uint64),
) {
	ticker := time.NewTicker(d.receiptInterval)
	defer ticker.Stop()

	mined := receipt.BlockNumber.Uint64()
	var last uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current, err := d.client.LatestBlockNumber(ctx)
		if err != nil || current < mined {
			continue
		}

		confirmations := current - mined + 1
		if confirmations > last {
			last = confirmations
			onConfirmation(confirmations)
		}
		if last >= maxConfirmations {
			return
		}
	}
}
