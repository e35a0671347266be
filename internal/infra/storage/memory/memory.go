// Package memory provides in-memory repositories for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// Store is an in-memory implementation of the storage repositories.
type Store struct {
	mu        sync.RWMutex
	wallets   map[string]*domain.Wallet
	addresses map[string][]*domain.Address // keyed by wallet id
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		wallets:   make(map[string]*domain.Wallet),
		addresses: make(map[string][]*domain.Address),
	}
}

// Create persists a new wallet.
func (s *Store) Create(_ context.Context, wallet *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *wallet
	s.wallets[wallet.ID] = &copied
	return nil
}

// FindOrFail retrieves a wallet by id.
func (s *Store) FindOrFail(_ context.Context, id string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wallet, ok := s.wallets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	copied := *wallet
	return &copied, nil
}

// All enumerates every wallet.
func (s *Store) All(_ context.Context) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wallets := make([]*domain.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		copied := *w
		wallets = append(wallets, &copied)
	}
	return wallets, nil
}

// UpdateEvents replaces the wallet's event configuration.
func (s *Store) UpdateEvents(_ context.Context, id string, events domain.EventConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wallet, ok := s.wallets[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	wallet.Events = events
	return nil
}

// HasAddress reports whether an address belongs to the wallet.
func (s *Store) HasAddress(_ context.Context, walletID, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if wallet, ok := s.wallets[walletID]; ok && wallet.Address == address {
		return true, nil
	}
	for _, addr := range s.addresses[walletID] {
		if addr.Address == address {
			return true, nil
		}
	}
	return false, nil
}

// CreateAddress persists a new sub-address.
func (s *Store) CreateAddress(_ context.Context, address *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *address
	s.addresses[address.WalletID] = append(s.addresses[address.WalletID], &copied)
	return nil
}

// FindAddressOrFail retrieves a sub-address scoped to a wallet.
func (s *Store) FindAddressOrFail(_ context.Context, walletID, address string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, addr := range s.addresses[walletID] {
		if addr.Address == address {
			copied := *addr
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrAddressNotFound, address)
}

// Addresses is the AddressRepository view over the store.
type Addresses struct {
	*Store
}

// Create persists a new sub-address.
func (a Addresses) Create(ctx context.Context, address *domain.Address) error {
	return a.CreateAddress(ctx, address)
}

// FindOrFail retrieves a sub-address scoped to a wallet.
func (a Addresses) FindOrFail(ctx context.Context, walletID, address string) (*domain.Address, error) {
	return a.FindAddressOrFail(ctx, walletID, address)
}
