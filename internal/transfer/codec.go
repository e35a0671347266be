// Package transfer decodes semantic transfers from raw transaction input
// data and receipt logs. Everything here is pure: no chain access, no state.
package transfer

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// ERC-20 method selectors, first four bytes of the keccak of the signature.
const (
	selectorTransfer     = "a9059cbb" // transfer(address,uint256)
	selectorTransferFrom = "23b872dd" // transferFrom(address,address,uint256)
)

// EventSignature is the topic hash of Transfer(address,address,uint256).
var EventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var (
	addressType = mustNewType("address")
	uint256Type = mustNewType("uint256")

	transferArgs = abi.Arguments{
		{Name: "to", Type: addressType},
		{Name: "value", Type: uint256Type},
	}
	transferFromArgs = abi.Arguments{
		{Name: "from", Type: addressType},
		{Name: "to", Type: addressType},
		{Name: "value", Type: uint256Type},
	}
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Native projects any transaction into a native-currency Transfer. Fields are
// copied verbatim; confirmations is 1 when the enclosing block is known.
func Native(tx *domain.Transaction, block *domain.Block) domain.Transfer {
	t := domain.Transfer{
		Hash:        tx.Hash,
		From:        tx.From,
		To:          tx.To,
		Value:       bigString(tx.Value),
		BlockNumber: tx.BlockNumber,
		GasPrice:    bigString(tx.GasPrice),
		GasLimit:    tx.Gas,
	}
	if block != nil {
		t.Confirmations = 1
		t.Timestamp = block.Timestamp
	}
	return t
}

// Token decodes a token transfer from the transaction's input data. The
// transaction must call transfer or transferFrom on the contract it targets;
// any other selector fails with ErrUnknownTransferInput. For the two-argument
// transfer the sender is implied by tx.From.
func Token(tx *domain.Transaction, block *domain.Block) (domain.Transfer, error) {
	decoded, err := DecodeInput(tx.Input)
	if err != nil {
		return domain.Transfer{}, err
	}

	t := Native(tx, block)
	t.Contract = tx.To
	t.To = decoded.To
	t.Value = decoded.Value.String()
	if decoded.From != "" {
		t.From = decoded.From
	}
	return t, nil
}

// DecodeInput decodes transfer/transferFrom call data. From is empty for the
// two-argument transfer form.
func DecodeInput(input []byte) (domain.TransferLog, error) {
	if len(input) < 4 {
		return domain.TransferLog{}, domain.ErrUnknownTransferInput
	}

	params := input[4:]
	switch hex.EncodeToString(input[:4]) {
	case selectorTransferFrom:
		values, err := transferFromArgs.Unpack(params)
		if err != nil {
			return domain.TransferLog{}, fmt.Errorf("%w: %v", domain.ErrUnknownTransferInput, err)
		}
		return domain.TransferLog{
			From:  values[0].(common.Address).Hex(),
			To:    values[1].(common.Address).Hex(),
			Value: values[2].(*big.Int),
		}, nil
	case selectorTransfer:
		values, err := transferArgs.Unpack(params)
		if err != nil {
			return domain.TransferLog{}, fmt.Errorf("%w: %v", domain.ErrUnknownTransferInput, err)
		}
		return domain.TransferLog{
			To:    values[0].(common.Address).Hex(),
			Value: values[1].(*big.Int),
		}, nil
	default:
		return domain.TransferLog{}, domain.ErrUnknownTransferInput
	}
}

// DecodeLogs extracts Transfer events emitted by the given contract. Logs
// whose first topic is not the Transfer signature, or whose emitting address
// differs from the contract, are excluded; order is preserved. The signature
// topic is consumed before the indexed from/to topics are read.
func DecodeLogs(logs []*types.Log, contract common.Address) []domain.TransferLog {
	var out []domain.TransferLog
	for _, log := range logs {
		if log == nil || len(log.Topics) < 3 {
			continue
		}
		if log.Topics[0] != EventSignature {
			continue
		}
		if log.Address != contract {
			continue
		}
		out = append(out, domain.TransferLog{
			From:  common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
			To:    common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Value: new(big.Int).SetBytes(log.Data),
		})
	}
	return out
}

// Reconcile confirms a decoded token transfer against its receipt logs. The
// call data alone is not trusted: a confirmed transfer must also have a
// Transfer event with matching from/to, whose value wins over the input's.
func Reconcile(decoded *domain.Transfer, logs []*types.Log, contract common.Address) error {
	for _, event := range DecodeLogs(logs, contract) {
		if strings.EqualFold(event.From, decoded.From) && strings.EqualFold(event.To, decoded.To) {
			decoded.Value = event.Value.String()
			return nil
		}
	}
	return domain.ErrTransferEventNotFound
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
