package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// WalletRepo implements storage.WalletRepository using PostgreSQL.
type WalletRepo struct {
	db *DB
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

type walletRow struct {
	ID        string    `db:"id"`
	Address   string    `db:"address"`
	Keystore  []byte    `db:"keystore"`
	Events    []byte    `db:"events"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r walletRow) toDomain() (*domain.Wallet, error) {
	wallet := &domain.Wallet{
		ID:        r.ID,
		Address:   r.Address,
		Keystore:  json.RawMessage(r.Keystore),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Events) > 0 {
		if err := json.Unmarshal(r.Events, &wallet.Events); err != nil {
			return nil, fmt.Errorf("failed to decode wallet events: %w", err)
		}
	}
	return wallet, nil
}

// Create persists a new wallet.
func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	events, err := json.Marshal(wallet.Events)
	if err != nil {
		return fmt.Errorf("failed to encode wallet events: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO wallets (id, address, keystore, events) VALUES ($1, $2, $3, $4)`,
		wallet.ID, wallet.Address, []byte(wallet.Keystore), events,
	)
	if err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// FindOrFail retrieves a wallet by id.
func (r *WalletRepo) FindOrFail(ctx context.Context, id string) (*domain.Wallet, error) {
	var row walletRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, address, keystore, events, created_at, updated_at FROM wallets WHERE id = $1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return row.toDomain()
}

// All enumerates every wallet, used for handler bootstrap.
func (r *WalletRepo) All(ctx context.Context) ([]*domain.Wallet, error) {
	var rows []walletRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, address, keystore, events, created_at, updated_at FROM wallets ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	wallets := make([]*domain.Wallet, 0, len(rows))
	for _, row := range rows {
		wallet, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, wallet)
	}
	return wallets, nil
}

// UpdateEvents replaces the wallet's event configuration.
func (r *WalletRepo) UpdateEvents(ctx context.Context, id string, events domain.EventConfig) error {
	encoded, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode wallet events: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET events = $1, updated_at = now() WHERE id = $2`,
		encoded, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet events: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, id)
	}
	return nil
}

// HasAddress reports whether an address belongs to the wallet, either as its
// root account or as a sub-address.
func (r *WalletRepo) HasAddress(ctx context.Context, walletID, address string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1 AND address = $2)
		     OR EXISTS (SELECT 1 FROM addresses WHERE wallet_id = $1 AND address = $2)`,
		walletID, address,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check address membership: %w", err)
	}
	return exists, nil
}
