package domain

import "errors"

var (
	// ErrUnknownTransferInput is returned when transaction input data does
	// not start with a supported transfer method selector.
	ErrUnknownTransferInput = errors.New("unknown transfer input")

	// ErrUnknownContract is returned when a transaction does not target the
	// expected token contract.
	ErrUnknownContract = errors.New("unknown contract transfer")

	// ErrTransferNotFound is returned when no decodable transfer exists for
	// a transaction hash.
	ErrTransferNotFound = errors.New("transfer does not exist")

	// ErrTransferEventNotFound is returned when a decoded transfer input has
	// no matching Transfer event in the receipt logs.
	ErrTransferEventNotFound = errors.New("transfer event not found")

	// ErrTransactionNotFound is returned when a transaction hash is unknown
	// to the chain.
	ErrTransactionNotFound = errors.New("transaction does not exist")

	// ErrNotConfirmed is returned when a receipt is missing or unsuccessful.
	ErrNotConfirmed = errors.New("transaction is not confirmed")

	// ErrInsufficientFunds is returned when a consolidation source has
	// nothing transferable after fees.
	ErrInsufficientFunds = errors.New("not enough amount to consolidate")

	// ErrInsufficientFee is returned when the root account cannot cover a
	// consolidation fee top-up.
	ErrInsufficientFee = errors.New("consolidation fee is insufficient")

	// ErrInsufficientBalance is returned when a send exceeds the available
	// token balance.
	ErrInsufficientBalance = errors.New("balance is insufficient")

	// ErrLockTimeout is returned when the per-address nonce lock cannot be
	// acquired within the bounded wait.
	ErrLockTimeout = errors.New("nonce lock timeout")

	// ErrClientUnavailable is returned when the chain provider is
	// disconnected. Checked before any chain-mutating operation.
	ErrClientUnavailable = errors.New("client is unavailable")

	// ErrAddressInvalid is returned for malformed recipient addresses.
	ErrAddressInvalid = errors.New("address is invalid")

	// ErrWalletNotFound is returned when a wallet id does not exist.
	ErrWalletNotFound = errors.New("wallet does not exist")

	// ErrAddressNotFound is returned when an address does not belong to the
	// wallet.
	ErrAddressNotFound = errors.New("address does not exist")

	// ErrPassphrase is returned when a keystore cannot be decrypted with the
	// supplied password.
	ErrPassphrase = errors.New("could not decrypt account")

	// ErrUnrecognized is returned when a transaction or transfer relates to
	// neither the wallet's root account nor any of its addresses.
	ErrUnrecognized = errors.New("unrecognized transaction")
)
