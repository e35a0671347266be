package chain

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// Account is a decrypted chain keypair. It only ever lives in memory for the
// duration of a request; at rest the key is a V3 keystore document.
type Account struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// CreateAccount generates a fresh keypair and encrypts it under the given
// password, returning the checksummed address and the keystore JSON.
func CreateAccount(password string) (string, json.RawMessage, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate key: %w", err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", nil, err
	}

	key := &keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}

	encrypted, err := keystore.EncryptKey(key, password, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encrypt key: %w", err)
	}
	return key.Address.Hex(), encrypted, nil
}

// AccountFromKey wraps an already decrypted private key.
func AccountFromKey(key *ecdsa.PrivateKey) *Account {
	return &Account{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

// DecryptAccount unlocks a keystore document. A wrong password surfaces as
// domain.ErrPassphrase so the API layer can map it to 403.
func DecryptAccount(encrypted json.RawMessage, password string) (*Account, error) {
	key, err := keystore.DecryptKey(encrypted, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPassphrase, err)
	}
	return &Account{Address: key.Address, key: key.PrivateKey}, nil
}

// SignTx signs a transaction for the given chain id.
func (a *Account) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), a.key)
}
