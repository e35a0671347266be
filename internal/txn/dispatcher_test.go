package txn

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
)

func testAccount(t *testing.T) *chain.Account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return chain.AccountFromKey(key)
}

func newTestDispatcher(client *mockClient) *Dispatcher {
	return NewDispatcher(client, NewSequencer(client), nil, 10*time.Millisecond)
}

func TestDispatcher_Send(t *testing.T) {
	client := newMockClient()
	client.nonce = 7
	client.gasPrice = big.NewInt(9)
	d := newTestDispatcher(client)
	account := testAccount(t)

	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	hash, err := d.Send(context.Background(), account, Skeleton{
		To:    &to,
		Value: big.NewInt(100),
		Gas:   21000,
	}, nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if client.sentCount() != 1 {
		t.Fatalf("expected 1 broadcast, got %d", client.sentCount())
	}
	tx := client.sentAt(0)
	if tx.Hash() != hash {
		t.Errorf("returned hash %s does not match broadcast %s", hash.Hex(), tx.Hash().Hex())
	}
	if tx.Nonce() != 7 {
		t.Errorf("expected sequenced nonce 7, got %d", tx.Nonce())
	}
	if tx.GasPrice().Cmp(big.NewInt(9)) != 0 {
		t.Errorf("expected suggested gas price 9, got %s", tx.GasPrice())
	}
}

func TestDispatcher_PinnedNonce(t *testing.T) {
	client := newMockClient()
	client.nonce = 7
	d := newTestDispatcher(client)

	pinned := uint64(42)
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	_, err := d.Send(context.Background(), testAccount(t), Skeleton{
		To:    &to,
		Gas:   21000,
		Nonce: &pinned,
	}, nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := client.sentAt(0).Nonce(); got != 42 {
		t.Errorf("expected pinned nonce 42, got %d", got)
	}
}

func TestDispatcher_Unavailable(t *testing.T) {
	client := newMockClient()
	d := NewDispatcher(client, NewSequencer(client), staticAvail(false), 10*time.Millisecond)

	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	_, err := d.Send(context.Background(), testAccount(t), Skeleton{To: &to, Gas: 21000}, nil)
	if !errors.Is(err, domain.ErrClientUnavailable) {
		t.Errorf("expected ErrClientUnavailable, got %v", err)
	}
	if client.sentCount() != 0 {
		t.Errorf("expected no broadcast while unavailable, got %d", client.sentCount())
	}
}

func TestDispatcher_BroadcastFailureKeepsNonce(t *testing.T) {
	client := newMockClient()
	client.nonce = 4
	client.sendErr = errors.New("connection reset")
	d := newTestDispatcher(client)
	account := testAccount(t)

	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	if _, err := d.Send(context.Background(), account, Skeleton{To: &to, Gas: 21000}, nil); err == nil {
		t.Fatal("expected broadcast failure")
	}

	client.mu.Lock()
	client.sendErr = nil
	client.mu.Unlock()

	if _, err := d.Send(context.Background(), account, Skeleton{To: &to, Gas: 21000}, nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := client.sentAt(0).Nonce(); got != 4 {
		t.Errorf("expected nonce 4 reused after failed broadcast, got %d", got)
	}
}

func TestDispatcher_ReceiptCallback(t *testing.T) {
	client := newMockClient()
	client.receiptForAll = &types.Receipt{Status: 1, BlockNumber: big.NewInt(10)}
	d := newTestDispatcher(client)

	var got *types.Receipt
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	_, err := d.Send(context.Background(), testAccount(t), Skeleton{To: &to, Gas: 21000}, &Callbacks{
		OnReceipt: func(receipt *types.Receipt) error {
			got = receipt
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got == nil || got.Status != 1 {
		t.Fatalf("expected receipt delivered to callback, got %+v", got)
	}
}

func TestDispatcher_ReceiptCallbackErrorPropagates(t *testing.T) {
	client := newMockClient()
	client.receiptForAll = &types.Receipt{Status: 1, BlockNumber: big.NewInt(10)}
	d := newTestDispatcher(client)

	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	_, err := d.Send(context.Background(), testAccount(t), Skeleton{To: &to, Gas: 21000}, &Callbacks{
		OnReceipt: func(*types.Receipt) error {
			return errors.New("follow-up failed")
		},
	})
	if err == nil || !strings.Contains(err.Error(), "follow-up failed") {
		t.Errorf("expected receipt handler error to propagate, got %v", err)
	}
}

func TestDispatcher_CallbackOrdering(t *testing.T) {
	client := newMockClient()
	client.receiptForAll = &types.Receipt{Status: 1, BlockNumber: big.NewInt(10)}
	d := newTestDispatcher(client)

	var order []string
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	_, err := d.Send(context.Background(), testAccount(t), Skeleton{To: &to, Gas: 21000}, &Callbacks{
		OnSending: func() { order = append(order, "sending") },
		OnSent:    func(common.Hash) { order = append(order, "sent") },
		OnReceipt: func(*types.Receipt) error {
			order = append(order, "receipt")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	want := []string{"sending", "sent", "receipt"}
	if len(order) != len(want) {
		t.Fatalf("expected callbacks %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected callbacks %v, got %v", want, order)
		}
	}
}
