// Package eventing watches the chain for transfers touching managed wallets
// and notifies the configured webhooks.
package eventing

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/transfer"
)

// maxConcurrentPosts bounds parallel webhook deliveries per rule.
const maxConcurrentPosts = 5

// MembershipStore answers whether an address belongs to a wallet, covering
// the root account and every sub-address.
type MembershipStore interface {
	HasAddress(ctx context.Context, walletID, address string) (bool, error)
}

// Handler is the per-wallet block processor: it matches a block's
// transactions against the wallet's event rules and posts the resulting
// transfers to the rules' webhooks.
type Handler struct {
	wallet   *domain.Wallet
	store    MembershipStore
	notifier *Notifier
	log      *slog.Logger
}

// NewHandler creates a handler for one wallet snapshot. Re-registering a
// wallet replaces its handler, which is how rule changes take effect.
func NewHandler(wallet *domain.Wallet, store MembershipStore, notifier *Notifier) *Handler {
	return &Handler{
		wallet:   wallet,
		store:    store,
		notifier: notifier,
		log:      slog.Default().With("wallet", wallet.ID),
	}
}

// WalletID identifies the wallet this handler serves.
func (h *Handler) WalletID() string {
	return h.wallet.ID
}

// Handle processes one block. Token rules run sequentially in configuration
// order to bound fan-out; the plain transaction rule runs last. A failing
// candidate or webhook never aborts the batch.
func (h *Handler) Handle(ctx context.Context, block *domain.Block) {
	if block == nil || len(block.Transactions) == 0 {
		return
	}

	for _, rule := range h.wallet.Events.TokenTransfer {
		h.handleTokenTransfers(ctx, block, rule)
	}

	if h.wallet.Events.Transaction != nil {
		h.handleTransactions(ctx, block, *h.wallet.Events.Transaction)
	}
}

// handleTokenTransfers settles every candidate for one token rule and posts
// the fulfilled ones: transactions targeting the rule's contract whose
// decoded destination belongs to this wallet.
func (h *Handler) handleTokenTransfers(
	ctx context.Context,
	block *domain.Block,
	rule domain.TokenTransferRule,
) {
	if !rule.Enabled || rule.Webhook == "" {
		return
	}
	contract := domain.Checksum(rule.Contract)

	var matched []domain.Transfer
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.To != contract {
			continue
		}

		decoded, err := transfer.Token(tx, nil)
		if err != nil {
			h.log.Debug("skipping candidate", "tx", tx.Hash, "error", err)
			continue
		}

		ok, err := h.store.HasAddress(ctx, h.wallet.ID, decoded.To)
		if err != nil {
			h.log.Warn("address lookup failed", "tx", tx.Hash, "error", err)
			continue
		}
		if ok {
			matched = append(matched, decoded)
		}
	}

	h.broadcast(ctx, rule.Webhook, "tokenTransfer", matched)
}

// handleTransactions posts a native transfer for every transaction whose
// destination belongs to this wallet.
func (h *Handler) handleTransactions(
	ctx context.Context,
	block *domain.Block,
	rule domain.TransactionRule,
) {
	if !rule.Enabled || rule.Webhook == "" {
		return
	}

	var matched []domain.Transfer
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		if tx.To == "" {
			continue
		}

		ok, err := h.store.HasAddress(ctx, h.wallet.ID, tx.To)
		if err != nil {
			h.log.Warn("address lookup failed", "tx", tx.Hash, "error", err)
			continue
		}
		if ok {
			matched = append(matched, transfer.Native(tx, block))
		}
	}

	h.broadcast(ctx, rule.Webhook, "transaction", matched)
}

func (h *Handler) broadcast(ctx context.Context, webhook, kind string, transfers []domain.Transfer) {
	if len(transfers) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPosts)

	for _, t := range transfers {
		t := t
		g.Go(func() error {
			if h.notifier.Deliver(ctx, webhook, kind, t) {
				h.log.Info("webhook delivered", "kind", kind, "tx", t.Hash)
			} else {
				h.log.Warn("webhook delivery failed", "kind", kind, "tx", t.Hash)
			}
			// Delivery failures never fail the batch
			return nil
		})
	}
	g.Wait()
}
