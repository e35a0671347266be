// Package api exposes the wallet service over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyonlabs/walletd/internal/core/config"
	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
	"github.com/halcyonlabs/walletd/internal/infra/storage"
	"github.com/halcyonlabs/walletd/internal/infra/storage/postgres"
	"github.com/halcyonlabs/walletd/internal/txn"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Wallets      storage.WalletRepository
	Addresses    storage.AddressRepository
	Client       chain.Client
	Dispatcher   *txn.Dispatcher
	Consolidator *txn.Consolidator
	Intents      txn.IntentStore
	Registry     HandlerRegistry
	Avail        chain.Availability
	DB           *postgres.DB
}

// Server is the HTTP front of the wallet service.
type Server struct {
	deps Deps
	http *http.Server
}

// NewServer builds the gin engine and mounts every route.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		deps: deps,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
			Handler: r,
		},
	}

	requireChain := s.requireChain()

	wallets := NewWalletController(
		deps.Wallets, deps.Addresses, deps.Client, deps.Dispatcher, deps.Consolidator, deps.Registry,
	)
	wallets.RegisterRoutes(r, requireChain)

	tokens := NewTokenController(
		deps.Wallets, deps.Addresses, deps.Client, deps.Dispatcher, deps.Consolidator,
	)
	tokens.RegisterRoutes(r, requireChain)

	r.GET("/ping", s.handlePing)
	r.GET("/gas-price", requireChain, s.handleGasPrice)
	r.GET("/consolidations/pending", s.handlePendingConsolidations)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// requireChain rejects chain-dependent requests while the provider
// subscription is down.
func (s *Server) requireChain() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Avail != nil && !s.deps.Avail.Connected() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": domain.ErrClientUnavailable.Error(),
			})
			return
		}
		c.Next()
	}
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (s *Server) handleGasPrice(c *gin.Context) {
	gasPrice, err := s.deps.Client.SuggestGasPrice(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gasPrice": gasPrice.String()})
}

// handlePendingConsolidations lists two-phase consolidations whose follow-up
// transfer has not completed. Recovery is an operator decision, never
// automatic.
func (s *Server) handlePendingConsolidations(c *gin.Context) {
	if s.deps.Intents == nil {
		c.JSON(http.StatusOK, gin.H{"pending": []struct{}{}})
		return
	}
	intents, err := s.deps.Intents.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if intents == nil {
		intents = []*domain.ConsolidationIntent{}
	}
	c.JSON(http.StatusOK, gin.H{"pending": intents})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	health := gin.H{"status": "ok"}

	if s.deps.Avail != nil {
		health["chain"] = s.deps.Avail.Connected()
		if !s.deps.Avail.Connected() {
			health["status"] = "degraded"
		}
	}
	if s.deps.DB != nil {
		if err := s.deps.DB.Health(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "down"
			health["database"] = err.Error()
		} else {
			health["database"] = "ok"
		}
	}
	c.JSON(status, health)
}
