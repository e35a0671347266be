package storage

import (
	"context"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// WalletRepository handles wallet persistence. Event rules are stored on the
// wallet document; setters replace by contract, never duplicate.
type WalletRepository interface {
	// Create persists a new wallet
	Create(ctx context.Context, wallet *domain.Wallet) error

	// FindOrFail retrieves a wallet by id, failing with
	// domain.ErrWalletNotFound when absent
	FindOrFail(ctx context.Context, id string) (*domain.Wallet, error)

	// All enumerates every wallet, used for handler bootstrap
	All(ctx context.Context) ([]*domain.Wallet, error)

	// UpdateEvents replaces the wallet's event configuration
	UpdateEvents(ctx context.Context, id string, events domain.EventConfig) error

	// HasAddress reports whether an address belongs to the wallet, covering
	// the root account and all sub-addresses
	HasAddress(ctx context.Context, walletID, address string) (bool, error)
}

// AddressRepository handles wallet sub-address persistence.
type AddressRepository interface {
	// Create persists a new sub-address
	Create(ctx context.Context, address *domain.Address) error

	// FindOrFail retrieves a sub-address scoped to a wallet, failing with
	// domain.ErrAddressNotFound when absent
	FindOrFail(ctx context.Context, walletID, address string) (*domain.Address, error)
}
