package transfer

import (
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

var (
	testSender   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testReceiver = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testContract = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func transferInput(t *testing.T, to common.Address, value *big.Int) []byte {
	t.Helper()
	packed, err := transferArgs.Pack(to, value)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	selector, _ := hex.DecodeString(selectorTransfer)
	return append(selector, packed...)
}

func transferFromInput(t *testing.T, from, to common.Address, value *big.Int) []byte {
	t.Helper()
	packed, err := transferFromArgs.Pack(from, to, value)
	if err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	selector, _ := hex.DecodeString(selectorTransferFrom)
	return append(selector, packed...)
}

func transferLog(from, to common.Address, value *big.Int) *types.Log {
	return &types.Log{
		Address: testContract,
		Topics: []common.Hash{
			EventSignature,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.BigToHash(value).Bytes(),
	}
}

func TestDecodeInput_Transfer(t *testing.T) {
	input := transferInput(t, testReceiver, big.NewInt(1000))

	decoded, err := DecodeInput(input)
	if err != nil {
		t.Fatalf("DecodeInput failed: %v", err)
	}
	if decoded.From != "" {
		t.Errorf("expected empty from for transfer, got %s", decoded.From)
	}
	if decoded.To != testReceiver.Hex() {
		t.Errorf("expected to %s, got %s", testReceiver.Hex(), decoded.To)
	}
	if decoded.Value.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("expected value 1000, got %s", decoded.Value)
	}
}

func TestDecodeInput_TransferFrom(t *testing.T) {
	input := transferFromInput(t, testSender, testReceiver, big.NewInt(42))

	decoded, err := DecodeInput(input)
	if err != nil {
		t.Fatalf("DecodeInput failed: %v", err)
	}
	if decoded.From != testSender.Hex() {
		t.Errorf("expected from %s, got %s", testSender.Hex(), decoded.From)
	}
	if decoded.To != testReceiver.Hex() {
		t.Errorf("expected to %s, got %s", testReceiver.Hex(), decoded.To)
	}
}

func TestDecodeInput_Rejections(t *testing.T) {
	cases := map[string][]byte{
		"empty":            nil,
		"short":            {0xa9, 0x05},
		"unknown selector": append([]byte{0xde, 0xad, 0xbe, 0xef}, make([]byte, 64)...),
		"truncated params": {0xa9, 0x05, 0x9c, 0xbb, 0x01},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeInput(input); !errors.Is(err, domain.ErrUnknownTransferInput) {
				t.Errorf("expected ErrUnknownTransferInput, got %v", err)
			}
		})
	}
}

func TestToken_SenderSemantics(t *testing.T) {
	caller := common.HexToAddress("0x4444444444444444444444444444444444444444")

	// transfer: the sender is the transaction's own sender
	tx := &domain.Transaction{
		Hash:  "0xabc",
		From:  caller.Hex(),
		To:    testContract.Hex(),
		Input: transferInput(t, testReceiver, big.NewInt(7)),
	}
	decoded, err := Token(tx, nil)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if decoded.From != caller.Hex() {
		t.Errorf("expected from %s, got %s", caller.Hex(), decoded.From)
	}
	if decoded.Contract != testContract.Hex() {
		t.Errorf("expected contract %s, got %s", testContract.Hex(), decoded.Contract)
	}

	// transferFrom: the decoded from wins over the caller
	tx.Input = transferFromInput(t, testSender, testReceiver, big.NewInt(7))
	decoded, err = Token(tx, nil)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if decoded.From != testSender.Hex() {
		t.Errorf("expected from %s, got %s", testSender.Hex(), decoded.From)
	}
}

func TestNative_BlockFields(t *testing.T) {
	tx := &domain.Transaction{
		Hash:     "0xabc",
		From:     testSender.Hex(),
		To:       testReceiver.Hex(),
		Value:    big.NewInt(5),
		Gas:      21000,
		GasPrice: big.NewInt(2),
	}

	bare := Native(tx, nil)
	if bare.Confirmations != 0 || bare.Timestamp != 0 {
		t.Errorf("expected zero confirmations/timestamp without block, got %d/%d",
			bare.Confirmations, bare.Timestamp)
	}

	withBlock := Native(tx, &domain.Block{Number: 10, Timestamp: 1700000000})
	if withBlock.Confirmations != 1 {
		t.Errorf("expected 1 confirmation, got %d", withBlock.Confirmations)
	}
	if withBlock.Timestamp != 1700000000 {
		t.Errorf("expected block timestamp, got %d", withBlock.Timestamp)
	}
}

func TestDecodeLogs_FiltersAndOrder(t *testing.T) {
	other := common.HexToAddress("0x5555555555555555555555555555555555555555")
	logs := []*types.Log{
		transferLog(testSender, testReceiver, big.NewInt(1)),
		{Address: testContract, Topics: []common.Hash{EventSignature}}, // missing topics
		{ // wrong contract
			Address: other,
			Topics: []common.Hash{
				EventSignature,
				common.BytesToHash(testSender.Bytes()),
				common.BytesToHash(testReceiver.Bytes()),
			},
		},
		{ // wrong signature
			Address: testContract,
			Topics: []common.Hash{
				common.HexToHash("0x01"),
				common.BytesToHash(testSender.Bytes()),
				common.BytesToHash(testReceiver.Bytes()),
			},
		},
		transferLog(testReceiver, testSender, big.NewInt(2)),
	}

	decoded := DecodeLogs(logs, testContract)
	if len(decoded) != 2 {
		t.Fatalf("expected 2 decoded logs, got %d", len(decoded))
	}
	if decoded[0].Value.Int64() != 1 || decoded[1].Value.Int64() != 2 {
		t.Errorf("expected order preserved, got %s then %s", decoded[0].Value, decoded[1].Value)
	}
}

func TestReconcile(t *testing.T) {
	decoded := domain.Transfer{
		From:  testSender.Hex(),
		To:    testReceiver.Hex(),
		Value: "999", // the input lied, the event value must win
	}
	logs := []*types.Log{transferLog(testSender, testReceiver, big.NewInt(123))}

	if err := Reconcile(&decoded, logs, testContract); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if decoded.Value != "123" {
		t.Errorf("expected event value 123, got %s", decoded.Value)
	}

	mismatch := domain.Transfer{From: testReceiver.Hex(), To: testSender.Hex()}
	err := Reconcile(&mismatch, logs, testContract)
	if !errors.Is(err, domain.ErrTransferEventNotFound) {
		t.Errorf("expected ErrTransferEventNotFound, got %v", err)
	}
}
