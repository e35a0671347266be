package eventing

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

type fakeSub struct {
	errs chan error
}

func (s *fakeSub) Unsubscribe()      {}
func (s *fakeSub) Err() <-chan error { return s.errs }

// subscribingClient is a chain.Client whose head subscription is driven by
// the test. Only the listener's surface is implemented.
type subscribingClient struct {
	mu         sync.Mutex
	heads      chan<- *types.Header
	sub        *fakeSub
	subscribes int
	blocks     map[uint64]*domain.Block
}

func newSubscribingClient() *subscribingClient {
	return &subscribingClient{blocks: make(map[uint64]*domain.Block)}
}

func (c *subscribingClient) SubscribeNewHead(
	_ context.Context,
	ch chan<- *types.Header,
) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribes++
	c.heads = ch
	c.sub = &fakeSub{errs: make(chan error, 1)}
	return c.sub, nil
}

func (c *subscribingClient) pushHead(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heads <- &types.Header{Number: new(big.Int).SetUint64(number)}
}

func (c *subscribingClient) failSubscription(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sub.errs <- err
}

func (c *subscribingClient) subscribeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribes
}

func (c *subscribingClient) BlockByNumber(_ context.Context, number uint64) (*domain.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks[number], nil
}

func (c *subscribingClient) LatestBlockNumber(context.Context) (uint64, error) { return 0, nil }

func (c *subscribingClient) TransactionByHash(context.Context, common.Hash) (*domain.Transaction, bool, error) {
	return nil, false, domain.ErrTransactionNotFound
}

func (c *subscribingClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, fmt.Errorf("not supported")
}

func (c *subscribingClient) TransactionCount(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (c *subscribingClient) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

func (c *subscribingClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (c *subscribingClient) CallContract(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, fmt.Errorf("not supported")
}

func (c *subscribingClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (c *subscribingClient) SendTransaction(context.Context, *types.Transaction) error {
	return fmt.Errorf("not supported")
}

func (c *subscribingClient) ChainID() *big.Int { return big.NewInt(1) }
func (c *subscribingClient) Close()            {}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestListener_DeliversBlocksToHandlers(t *testing.T) {
	recorder := &webhookRecorder{}
	server := recorder.serve()
	defer server.Close()

	client := newSubscribingClient()
	client.blocks[42] = &domain.Block{
		Number: 42,
		Transactions: []domain.Transaction{
			{Hash: "0xaaa", From: otherAddr.Hex(), To: ownedAddr.Hex(), Value: big.NewInt(1)},
		},
	}

	wallet := &domain.Wallet{ID: "wallet-1", Address: ownedAddr.Hex()}
	wallet.Events.SetTransactionRule(domain.TransactionRule{Webhook: server.URL, Enabled: true})

	l := NewListener(client, 10*time.Millisecond)
	l.Register(NewHandler(wallet, staticMembership{ownedAddr.Hex(): true}, quickNotifier()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Start(ctx) }()

	waitFor(t, time.Second, l.Connected)
	client.pushHead(42)
	waitFor(t, time.Second, func() bool { return recorder.count() == 1 })

	l.Stop()
	waitFor(t, time.Second, func() bool { return l.State() == StateDisconnected })
}

func TestListener_ReconnectsAfterSubscriptionError(t *testing.T) {
	client := newSubscribingClient()
	l := NewListener(client, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Start(ctx) }()

	waitFor(t, time.Second, l.Connected)
	client.failSubscription(fmt.Errorf("connection dropped"))

	waitFor(t, time.Second, func() bool { return client.subscribeCount() >= 2 })
	waitFor(t, time.Second, l.Connected)
	cancel()
}

func TestListener_RegisterReplacesHandler(t *testing.T) {
	client := newSubscribingClient()
	l := NewListener(client, time.Second)

	wallet := &domain.Wallet{ID: "wallet-1", Address: ownedAddr.Hex()}
	l.Register(NewHandler(wallet, staticMembership{}, quickNotifier()))
	l.Register(NewHandler(wallet, staticMembership{}, quickNotifier()))

	if got := len(l.snapshot()); got != 1 {
		t.Errorf("expected re-registration to replace, got %d handlers", got)
	}
}

func TestListener_StartTwice(t *testing.T) {
	client := newSubscribingClient()
	l := NewListener(client, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Start(ctx) }()
	waitFor(t, time.Second, l.Connected)

	if err := l.Start(ctx); err == nil {
		t.Error("expected second Start to fail while running")
	}
}
