package domain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is a custodial wallet: a root account plus any number of
// sub-addresses, each stored as an encrypted keystore document.
type Wallet struct {
	ID        string          `json:"id" db:"id"`
	Address   string          `json:"address" db:"address"`
	Keystore  json.RawMessage `json:"-" db:"keystore"`
	Events    EventConfig     `json:"events" db:"events"`
	CreatedAt time.Time       `json:"-" db:"created_at"`
	UpdatedAt time.Time       `json:"-" db:"updated_at"`
}

// Address is a wallet sub-address. It back-references its wallet by id and
// carries its own encrypted keystore.
type Address struct {
	ID        string          `json:"id" db:"id"`
	WalletID  string          `json:"wallet_id" db:"wallet_id"`
	Address   string          `json:"address" db:"address"`
	Keystore  json.RawMessage `json:"-" db:"keystore"`
	CreatedAt time.Time       `json:"-" db:"created_at"`
	UpdatedAt time.Time       `json:"-" db:"updated_at"`
}

// EventConfig holds the wallet's webhook rules: at most one plain-transaction
// rule and one token-transfer rule per contract address.
type EventConfig struct {
	Transaction   *TransactionRule    `json:"transaction,omitempty"`
	TokenTransfer []TokenTransferRule `json:"tokenTransfer,omitempty"`
}

// TransactionRule notifies a webhook about native transfers into the wallet.
type TransactionRule struct {
	Webhook string `json:"webhook"`
	Enabled bool   `json:"enabled"`
}

// TokenTransferRule notifies a webhook about ERC-20 transfers of one contract
// into the wallet.
type TokenTransferRule struct {
	Contract string `json:"contract"`
	Webhook  string `json:"webhook"`
	Enabled  bool   `json:"enabled"`
}

// SetTransactionRule replaces the wallet's plain-transaction rule.
func (c *EventConfig) SetTransactionRule(rule TransactionRule) {
	c.Transaction = &rule
}

// SetTokenTransferRule upserts a token-transfer rule keyed by contract
// address. An existing rule for the same contract is replaced, never
// duplicated.
func (c *EventConfig) SetTokenTransferRule(rule TokenTransferRule) {
	rule.Contract = Checksum(rule.Contract)
	for i := range c.TokenTransfer {
		if c.TokenTransfer[i].Contract == rule.Contract {
			c.TokenTransfer[i] = rule
			return
		}
	}
	c.TokenTransfer = append(c.TokenTransfer, rule)
}

// Checksum returns the EIP-55 mixed-case encoding of an address so that
// downstream comparisons are case-insensitive safe.
func Checksum(address string) string {
	return common.HexToAddress(address).Hex()
}

// IsAddress reports whether s is a syntactically valid hex address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}
