package domain

import "math/big"

// Transaction is a parsed on-chain transaction. Addresses are checksummed by
// the chain client before they reach this type.
type Transaction struct {
	Hash        string
	From        string
	To          string
	Value       *big.Int
	Gas         uint64
	GasPrice    *big.Int
	Input       []byte
	Nonce       uint64
	BlockNumber uint64
}

// Block is a chain block with its full transaction list.
type Block struct {
	Number       uint64
	Hash         string
	ParentHash   string
	Timestamp    uint64
	Transactions []Transaction
}

// Transfer is the projection delivered to webhooks and API callers. It is
// derived from chain data and never persisted. Contract is set only for
// token transfers.
type Transfer struct {
	Type          string `json:"type,omitempty"`
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Contract      string `json:"contract,omitempty"`
	Value         string `json:"value"`
	BlockNumber   uint64 `json:"blockNumber"`
	Confirmations uint64 `json:"confirmations"`
	GasPrice      string `json:"gasPrice"`
	GasLimit      uint64 `json:"gasLimit"`
	Timestamp     uint64 `json:"timestamp,omitempty"`
}

// TransferLog is a decoded ERC-20 Transfer event.
type TransferLog struct {
	From  string
	To    string
	Value *big.Int
}

// ConsolidationIntent records a two-phase token consolidation whose follow-up
// transfer is pending the top-up receipt. Persisted so an operator can detect
// follow-ups lost to a restart; the service never re-dispatches on its own.
type ConsolidationIntent struct {
	Wallet    string `json:"wallet"`
	Contract  string `json:"contract"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	TopUpHash string `json:"topUpHash"`
	CreatedAt int64  `json:"createdAt"`
}
