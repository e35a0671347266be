package api

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
	"github.com/halcyonlabs/walletd/internal/infra/storage"
	"github.com/halcyonlabs/walletd/internal/txn"
)

// HandlerRegistry lets the API layer (re)register a wallet's block handler
// after the wallet or its event rules change.
type HandlerRegistry interface {
	RegisterWallet(wallet *domain.Wallet)
}

// WalletController serves wallet lifecycle, webhook configuration and native
// transfer operations.
type WalletController struct {
	wallets      storage.WalletRepository
	addresses    storage.AddressRepository
	client       chain.Client
	dispatcher   *txn.Dispatcher
	consolidator *txn.Consolidator
	registry     HandlerRegistry
}

// NewWalletController creates the wallet controller.
func NewWalletController(
	wallets storage.WalletRepository,
	addresses storage.AddressRepository,
	client chain.Client,
	dispatcher *txn.Dispatcher,
	consolidator *txn.Consolidator,
	registry HandlerRegistry,
) *WalletController {
	return &WalletController{
		wallets:      wallets,
		addresses:    addresses,
		client:       client,
		dispatcher:   dispatcher,
		consolidator: consolidator,
		registry:     registry,
	}
}

// RegisterRoutes mounts the wallet routes. requireChain guards the operations
// that broadcast transactions.
func (wc *WalletController) RegisterRoutes(r *gin.Engine, requireChain gin.HandlerFunc) {
	r.POST("/wallets", wc.handleCreateWallet)
	r.POST("/wallets/:id/addresses", wc.handleCreateAddress)
	r.GET("/wallets/:id", wc.handleGetWallet)
	r.POST("/webhooks/transaction", wc.handleTransactionWebhook)
	r.POST("/webhooks/token-transfer", wc.handleTokenTransferWebhook)
	r.POST("/wallets/:id/consolidate", requireChain, wc.handleConsolidate)
	r.POST("/wallets/:id/send", requireChain, wc.handleSend)
	r.GET("/wallets/:id/transactions/:hash", wc.handleWalletTransaction)
	r.GET("/transactions/:hash", wc.handleTransaction)
}

func (wc *WalletController) handleCreateWallet(c *gin.Context) {
	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Passphrase == "" {
		invalid(c, "passphrase is required")
		return
	}

	address, keystore, err := chain.CreateAccount(req.Passphrase)
	if err != nil {
		fail(c, err)
		return
	}

	wallet := &domain.Wallet{
		ID:       uuid.NewString(),
		Address:  address,
		Keystore: keystore,
	}
	if err := wc.wallets.Create(c.Request.Context(), wallet); err != nil {
		fail(c, err)
		return
	}

	wc.registry.RegisterWallet(wallet)
	c.JSON(http.StatusCreated, wallet)
}

func (wc *WalletController) handleCreateAddress(c *gin.Context) {
	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Passphrase == "" {
		invalid(c, "passphrase is required")
		return
	}

	wallet, err := wc.wallets.FindOrFail(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	address, keystore, err := chain.CreateAccount(req.Passphrase)
	if err != nil {
		fail(c, err)
		return
	}

	sub := &domain.Address{
		ID:       uuid.NewString(),
		WalletID: wallet.ID,
		Address:  address,
		Keystore: keystore,
	}
	if err := wc.addresses.Create(c.Request.Context(), sub); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (wc *WalletController) handleGetWallet(c *gin.Context) {
	wallet, err := wc.wallets.FindOrFail(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (wc *WalletController) handleTransactionWebhook(c *gin.Context) {
	var req struct {
		WalletID string `json:"walletId"`
		Webhook  string `json:"webhook"`
		Enabled  *bool  `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.WalletID == "" || req.Webhook == "" {
		invalid(c, "walletId and webhook are required")
		return
	}

	wallet, err := wc.wallets.FindOrFail(c.Request.Context(), req.WalletID)
	if err != nil {
		fail(c, err)
		return
	}

	enabled := req.Enabled == nil || *req.Enabled
	wallet.Events.SetTransactionRule(domain.TransactionRule{
		Webhook: req.Webhook,
		Enabled: enabled,
	})
	if err := wc.wallets.UpdateEvents(c.Request.Context(), wallet.ID, wallet.Events); err != nil {
		fail(c, err)
		return
	}

	wc.registry.RegisterWallet(wallet)
	c.JSON(http.StatusOK, wallet.Events)
}

func (wc *WalletController) handleTokenTransferWebhook(c *gin.Context) {
	var req struct {
		WalletID string `json:"walletId"`
		Contract string `json:"contract"`
		Webhook  string `json:"webhook"`
		Enabled  *bool  `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.WalletID == "" || req.Webhook == "" {
		invalid(c, "walletId and webhook are required")
		return
	}
	if !domain.IsAddress(req.Contract) {
		fail(c, domain.ErrAddressInvalid)
		return
	}

	wallet, err := wc.wallets.FindOrFail(c.Request.Context(), req.WalletID)
	if err != nil {
		fail(c, err)
		return
	}

	enabled := req.Enabled == nil || *req.Enabled
	wallet.Events.SetTokenTransferRule(domain.TokenTransferRule{
		Contract: req.Contract,
		Webhook:  req.Webhook,
		Enabled:  enabled,
	})
	if err := wc.wallets.UpdateEvents(c.Request.Context(), wallet.ID, wallet.Events); err != nil {
		fail(c, err)
		return
	}

	wc.registry.RegisterWallet(wallet)
	c.JSON(http.StatusOK, wallet.Events)
}

// handleConsolidate sweeps a sub-address's native balance into the wallet's
// root account.
func (wc *WalletController) handleConsolidate(c *gin.Context) {
	var req struct {
		Address    string `json:"address"`
		Passphrase string `json:"passphrase"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Passphrase == "" {
		invalid(c, "address and passphrase are required")
		return
	}
	if !domain.IsAddress(req.Address) {
		fail(c, domain.ErrAddressInvalid)
		return
	}

	ctx := c.Request.Context()
	wallet, err := wc.wallets.FindOrFail(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	sub, err := wc.addresses.FindOrFail(ctx, wallet.ID, domain.Checksum(req.Address))
	if err != nil {
		fail(c, err)
		return
	}

	source, err := chain.DecryptAccount(sub.Keystore, req.Passphrase)
	if err != nil {
		fail(c, err)
		return
	}

	hash, err := wc.consolidator.Native(ctx, source, common.HexToAddress(wallet.Address))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex()})
}

// handleSend sends native currency out of the wallet's root account.
func (wc *WalletController) handleSend(c *gin.Context) {
	var req struct {
		Passphrase string `json:"passphrase"`
		To         string `json:"to"`
		Value      string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Passphrase == "" {
		invalid(c, "passphrase, to and value are required")
		return
	}
	if !domain.IsAddress(req.To) {
		fail(c, domain.ErrAddressInvalid)
		return
	}
	value, ok := parseValue(req.Value)
	if !ok {
		invalid(c, "value must be a positive integer in wei")
		return
	}

	ctx := c.Request.Context()
	wallet, err := wc.wallets.FindOrFail(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	root, err := chain.DecryptAccount(wallet.Keystore, req.Passphrase)
	if err != nil {
		fail(c, err)
		return
	}

	gasPrice, err := wc.client.SuggestGasPrice(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	balance, err := wc.client.BalanceAt(ctx, root.Address)
	if err != nil {
		fail(c, err)
		return
	}
	if total := add(value, mul(gasPrice, params.TxGas)); balance.Cmp(total) < 0 {
		fail(c, domain.ErrInsufficientBalance)
		return
	}

	to := common.HexToAddress(req.To)
	hash, err := wc.dispatcher.Send(ctx, root, txn.Skeleton{
		To:       &to,
		Value:    value,
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	}, nil)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, domain.Transfer{
		Type:     "send",
		Hash:     hash.Hex(),
		From:     wallet.Address,
		To:       to.Hex(),
		Value:    value.String(),
		GasPrice: gasPrice.String(),
		GasLimit: params.TxGas,
	})
}

// handleWalletTransaction classifies a transaction relative to the wallet: a
// transfer from one of its addresses is a send, a transfer into one a receive.
func (wc *WalletController) handleWalletTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	wallet, err := wc.wallets.FindOrFail(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	view, err := chain.GetTransaction(ctx, wc.client, common.HexToHash(c.Param("hash")))
	if err != nil {
		fail(c, err)
		return
	}

	kind, err := classifyFor(ctx, wc.wallets, wallet.ID, view.From, view.To)
	if err != nil {
		fail(c, err)
		return
	}
	view.Type = kind
	c.JSON(http.StatusOK, view)
}

func (wc *WalletController) handleTransaction(c *gin.Context) {
	view, err := chain.GetTransaction(c.Request.Context(), wc.client, common.HexToHash(c.Param("hash")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// classifyFor resolves the direction of a transfer for a wallet. Transfers
// that touch none of the wallet's addresses are unrecognized.
func classifyFor(
	ctx context.Context,
	wallets storage.WalletRepository,
	walletID, from, to string,
) (string, error) {
	if from != "" {
		if ok, err := wallets.HasAddress(ctx, walletID, from); err != nil {
			return "", err
		} else if ok {
			return "send", nil
		}
	}
	if to != "" {
		if ok, err := wallets.HasAddress(ctx, walletID, to); err != nil {
			return "", err
		} else if ok {
			return "receive", nil
		}
	}
	return "", domain.ErrUnrecognized
}

// parseValue parses a decimal wei amount. Zero and negative amounts are
// rejected.
func parseValue(s string) (*big.Int, bool) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok || value.Sign() <= 0 {
		return nil, false
	}
	return value, true
}

func add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

func mul(price *big.Int, gas uint64) *big.Int {
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gas))
}
