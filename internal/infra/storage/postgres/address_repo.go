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

// AddressRepo implements storage.AddressRepository using PostgreSQL.
type AddressRepo struct {
	db *DB
}

// NewAddressRepo creates a new PostgreSQL address repository.
func NewAddressRepo(db *DB) *AddressRepo {
	return &AddressRepo{db: db}
}

type addressRow struct {
	ID        string    `db:"id"`
	WalletID  string    `db:"wallet_id"`
	Address   string    `db:"address"`
	Keystore  []byte    `db:"keystore"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r addressRow) toDomain() *domain.Address {
	return &domain.Address{
		ID:        r.ID,
		WalletID:  r.WalletID,
		Address:   r.Address,
		Keystore:  json.RawMessage(r.Keystore),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Create persists a new sub-address.
func (r *AddressRepo) Create(ctx context.Context, address *domain.Address) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO addresses (id, wallet_id, address, keystore) VALUES ($1, $2, $3, $4)`,
		address.ID, address.WalletID, address.Address, []byte(address.Keystore),
	)
	if err != nil {
		return fmt.Errorf("failed to save address: %w", err)
	}
	return nil
}

// FindOrFail retrieves a sub-address scoped to a wallet.
func (r *AddressRepo) FindOrFail(ctx context.Context, walletID, address string) (*domain.Address, error) {
	var row addressRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, wallet_id, address, keystore, created_at, updated_at
		 FROM addresses WHERE wallet_id = $1 AND address = $2`,
		walletID, address,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAddressNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return row.toDomain(), nil
}
