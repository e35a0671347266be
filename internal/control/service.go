// Package control assembles the wallet service and manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/halcyonlabs/walletd/internal/api"
	"github.com/halcyonlabs/walletd/internal/core/config"
	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/eventing"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
	redisclient "github.com/halcyonlabs/walletd/internal/infra/redis"
	"github.com/halcyonlabs/walletd/internal/infra/storage"
	"github.com/halcyonlabs/walletd/internal/infra/storage/postgres"
	"github.com/halcyonlabs/walletd/internal/txn"
)

// Service is the assembled wallet daemon: chain client, block listener,
// transaction pipeline, storage and HTTP front.
type Service struct {
	cfg config.AppConfig

	db       *postgres.DB
	redis    *redisclient.Client
	client   *chain.EthClient
	wallets  storage.WalletRepository
	notifier *eventing.Notifier
	listener *eventing.Listener
	server   *api.Server

	log *slog.Logger
}

// NewService initializes every dependency, runs migrations and bootstraps the
// block handlers for all known wallets.
func NewService(ctx context.Context, cfg config.AppConfig) (*Service, error) {
	log := slog.Default().With("component", "service")

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	var redisClient *redisclient.Client
	var intents txn.IntentStore
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		intents = redisclient.NewIntentRepo(redisClient)
	} else {
		log.Warn("redis not configured, consolidation intents are not persisted")
	}

	client, err := chain.Dial(ctx, cfg.Chain.WSProvider, cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain provider: %w", err)
	}

	wallets := postgres.NewWalletRepo(db)
	addresses := postgres.NewAddressRepo(db)

	notifier := eventing.NewNotifier()
	listener := eventing.NewListener(client, cfg.Chain.ReconnectInterval)

	sequencer := txn.NewSequencer(client)
	dispatcher := txn.NewDispatcher(client, sequencer, listener, cfg.Chain.ReceiptInterval)
	consolidator := txn.NewConsolidator(client, dispatcher, intents)

	s := &Service{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		client:   client,
		wallets:  wallets,
		notifier: notifier,
		listener: listener,
		log:      log,
	}

	s.server = api.NewServer(cfg.Server, api.Deps{
		Wallets:      wallets,
		Addresses:    addresses,
		Client:       client,
		Dispatcher:   dispatcher,
		Consolidator: consolidator,
		Intents:      intents,
		Registry:     s,
		Avail:        listener,
		DB:           db,
	})

	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	if intents != nil {
		s.reportPendingIntents(ctx, intents)
	}
	return s, nil
}

// RegisterWallet implements api.HandlerRegistry: every wallet create or rule
// change swaps in a handler built from the fresh wallet snapshot.
func (s *Service) RegisterWallet(wallet *domain.Wallet) {
	s.listener.Register(eventing.NewHandler(wallet, s.wallets, s.notifier))
}

// bootstrap registers a block handler for every persisted wallet.
func (s *Service) bootstrap(ctx context.Context) error {
	wallets, err := s.wallets.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load wallets: %w", err)
	}
	for _, wallet := range wallets {
		s.RegisterWallet(wallet)
	}
	s.log.Info("registered wallet handlers", "count", len(wallets))
	return nil
}

// reportPendingIntents surfaces two-phase consolidations that never finished.
// They are listed for operators, never re-dispatched.
func (s *Service) reportPendingIntents(ctx context.Context, intents txn.IntentStore) {
	pending, err := intents.List(ctx)
	if err != nil {
		s.log.Warn("failed to list consolidation intents", "error", err)
		return
	}
	for _, intent := range pending {
		s.log.Warn("pending consolidation intent",
			"wallet", intent.Wallet,
			"contract", intent.Contract,
			"from", intent.From,
			"topUpHash", intent.TopUpHash,
		)
	}
}

// Start launches the block listener and the HTTP server.
func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.listener.Start(ctx); err != nil {
			s.log.Error("listener exited", "error", err)
		}
	}()

	go func() {
		s.log.Info("http server listening", "addr", s.server.Addr())
		if err := s.server.Run(); err != nil {
			s.log.Error("http server exited", "error", err)
		}
	}()

	return nil
}

// Stop shuts the service down in dependency order: HTTP first, then the
// subscription, then the clients.
func (s *Service) Stop(ctx context.Context) error {
	var firstErr error

	if err := s.server.Shutdown(ctx); err != nil {
		firstErr = err
	}

	s.listener.Stop()
	s.client.Close()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
