package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
	"github.com/halcyonlabs/walletd/internal/infra/storage"
	"github.com/halcyonlabs/walletd/internal/txn"
)

// TokenController serves ERC-20 operations. The contract address arrives as a
// path parameter and binds a per-request token instance.
type TokenController struct {
	wallets      storage.WalletRepository
	addresses    storage.AddressRepository
	client       chain.Client
	dispatcher   *txn.Dispatcher
	consolidator *txn.Consolidator
}

// NewTokenController creates the token controller.
func NewTokenController(
	wallets storage.WalletRepository,
	addresses storage.AddressRepository,
	client chain.Client,
	dispatcher *txn.Dispatcher,
	consolidator *txn.Consolidator,
) *TokenController {
	return &TokenController{
		wallets:      wallets,
		addresses:    addresses,
		client:       client,
		dispatcher:   dispatcher,
		consolidator: consolidator,
	}
}

// RegisterRoutes mounts the token routes.
func (tc *TokenController) RegisterRoutes(r *gin.Engine, requireChain gin.HandlerFunc) {
	r.POST("/wallets/:id/tokens/:contract/consolidate", requireChain, tc.handleConsolidate)
	r.POST("/wallets/:id/tokens/:contract/send", requireChain, tc.handleSend)
	r.GET("/wallets/:id/tokens/:contract/transfer/:hash", tc.handleWalletTransfer)
	r.GET("/tokens/:contract/transfer/:hash", tc.handleTransfer)
	r.GET("/tokens/:contract/status", tc.handleStatus)
}

func (tc *TokenController) token(c *gin.Context) (*chain.Token, bool) {
	contract := c.Param("contract")
	if !domain.IsAddress(contract) {
		fail(c, domain.ErrAddressInvalid)
		return nil, false
	}
	return chain.NewToken(tc.client, contract), true
}

// handleConsolidate sweeps a sub-address's token balance into the wallet's
// root account, topping the sub-address up with fee money from the root when
// it cannot pay for the transfer itself.
func (tc *TokenController) handleConsolidate(c *gin.Context) {
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
	token, ok := tc.token(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	wallet, err := tc.wallets.FindOrFail(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	sub, err := tc.addresses.FindOrFail(ctx, wallet.ID, domain.Checksum(req.Address))
	if err != nil {
		fail(c, err)
		return
	}

	source, err := chain.DecryptAccount(sub.Keystore, req.Passphrase)
	if err != nil {
		fail(c, err)
		return
	}
	root, err := chain.DecryptAccount(wallet.Keystore, req.Passphrase)
	if err != nil {
		fail(c, err)
		return
	}

	result, err := tc.consolidator.Token(ctx, token, wallet.ID, source, root)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleSend sends tokens out of the wallet's root account.
func (tc *TokenController) handleSend(c *gin.Context) {
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
		invalid(c, "value must be a positive integer")
		return
	}
	token, ok := tc.token(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	wallet, err := tc.wallets.FindOrFail(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	root, err := chain.DecryptAccount(wallet.Keystore, req.Passphrase)
	if err != nil {
		fail(c, err)
		return
	}

	balance, err := token.BalanceOf(ctx, root.Address)
	if err != nil {
		fail(c, err)
		return
	}
	if balance.Cmp(value) < 0 {
		fail(c, domain.ErrInsufficientBalance)
		return
	}

	to := common.HexToAddress(req.To)
	gas, err := token.EstimateTransferGas(ctx, root.Address, to, value)
	if err != nil {
		fail(c, err)
		return
	}
	gasPrice, err := tc.client.SuggestGasPrice(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	data, err := token.TransferData(to, value)
	if err != nil {
		fail(c, err)
		return
	}

	hash, err := tc.dispatcher.Send(ctx, root, txn.Skeleton{
		To:       &token.Address,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
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
		Contract: token.Address.Hex(),
		Value:    value.String(),
		GasPrice: gasPrice.String(),
		GasLimit: gas,
	})
}

// handleWalletTransfer returns a confirmed token transfer classified for the
// wallet.
func (tc *TokenController) handleWalletTransfer(c *gin.Context) {
	token, ok := tc.token(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	wallet, err := tc.wallets.FindOrFail(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	view, err := token.GetTransferReceipt(ctx, common.HexToHash(c.Param("hash")))
	if err != nil {
		fail(c, err)
		return
	}

	kind, err := classifyFor(ctx, tc.wallets, wallet.ID, view.From, view.To)
	if err != nil {
		fail(c, err)
		return
	}
	view.Type = kind
	c.JSON(http.StatusOK, view)
}

func (tc *TokenController) handleTransfer(c *gin.Context) {
	token, ok := tc.token(c)
	if !ok {
		return
	}

	view, err := token.GetTransferReceipt(c.Request.Context(), common.HexToHash(c.Param("hash")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleStatus probes the contract with a totalSupply call, which doubles as
// a liveness check for the token binding.
func (tc *TokenController) handleStatus(c *gin.Context) {
	token, ok := tc.token(c)
	if !ok {
		return
	}

	supply, err := token.TotalSupply(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contract":    token.Address.Hex(),
		"totalSupply": supply.String(),
	})
}
