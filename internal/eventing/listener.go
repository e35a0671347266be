package eventing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/eventing/metrics"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
)

// State is the subscription lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Listener owns the new-block subscription. On every block it fetches the
// full block and fans it out to the registered wallet handlers. Subscription
// errors trigger a fixed-delay reconnect with no retry ceiling; the provider
// is expected to eventually recover. Blocks missed while reconnecting are
// never reprocessed.
type Listener struct {
	client            chain.Client
	reconnectInterval time.Duration
	log               *slog.Logger

	state   atomic.Int32
	running atomic.Bool
	stop    chan struct{}

	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewListener creates a listener with the given reconnect delay.
func NewListener(client chain.Client, reconnectInterval time.Duration) *Listener {
	if reconnectInterval <= 0 {
		reconnectInterval = 5 * time.Second
	}
	return &Listener{
		client:            client,
		reconnectInterval: reconnectInterval,
		log:               slog.Default().With("component", "listener"),
		stop:              make(chan struct{}),
		handlers:          make(map[string]*Handler),
	}
}

// Register upserts the handler for a wallet. Callable at any time, including
// before the subscription is up; re-registering replaces the existing entry.
func (l *Listener) Register(handler *Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.handlers[handler.WalletID()]; !exists {
		l.log.Info("registered handler", "wallet", handler.WalletID())
	}
	l.handlers[handler.WalletID()] = handler
	metrics.RegisteredHandlers.Set(float64(len(l.handlers)))
}

// State returns the current subscription state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Connected implements chain.Availability: senders fail fast while the
// provider is down.
func (l *Listener) Connected() bool {
	return l.State() == StateSubscribed
}

// Start runs the subscription loop until the context is done or Stop is
// called.
func (l *Listener) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("listener already running")
	}
	defer l.running.Store(false)
	defer l.setState(StateDisconnected)

	for {
		l.setState(StateConnecting)

		heads := make(chan *types.Header, 16)
		sub, err := l.client.SubscribeNewHead(ctx, heads)
		if err != nil {
			l.log.Warn("subscribe failed", "error", err)
			if !l.backoff(ctx) {
				return nil
			}
			continue
		}

		l.setState(StateSubscribed)
		l.log.Info("block listener started")

		err = l.consume(ctx, heads, sub.Err())
		sub.Unsubscribe()

		if err == nil {
			// Stopped or context done
			l.log.Info("block listener stopped")
			return nil
		}

		l.log.Warn("subscription error", "error", err)
		if !l.backoff(ctx) {
			return nil
		}
	}
}

// Stop tears the subscription down and prevents further reconnects.
func (l *Listener) Stop() {
	if l.running.Load() {
		close(l.stop)
	}
}

// consume drains block headers until the subscription errors or the listener
// is torn down. A nil return means teardown.
func (l *Listener) consume(
	ctx context.Context,
	heads <-chan *types.Header,
	errs <-chan error,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.stop:
			return nil
		case err := <-errs:
			if err == nil {
				err = fmt.Errorf("subscription closed")
			}
			return err
		case head := <-heads:
			if head == nil {
				continue
			}
			go l.process(ctx, head.Number.Uint64())
		}
	}
}

// backoff waits out the reconnect delay. Returns false on teardown.
func (l *Listener) backoff(ctx context.Context) bool {
	l.setState(StateReconnecting)
	metrics.Reconnects.Inc()

	timer := time.NewTimer(l.reconnectInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-l.stop:
		return false
	case <-timer.C:
		return true
	}
}

// process fetches the full block and hands it to every registered handler.
// Handlers run independently; one handler's failure cannot block another's.
func (l *Listener) process(ctx context.Context, number uint64) {
	block, err := l.client.BlockByNumber(ctx, number)
	if err != nil {
		l.log.Warn("failed to fetch block", "number", number, "error", err)
		return
	}
	if block == nil {
		return
	}

	metrics.BlocksProcessed.Inc()
	metrics.ChainLatestBlock.Set(float64(block.Number))

	for _, handler := range l.snapshot() {
		go func(h *Handler, b *domain.Block) {
			defer func() {
				if r := recover(); r != nil {
					l.log.Error("handler panicked", "wallet", h.WalletID(), "panic", r)
				}
			}()
			h.Handle(ctx, b)
		}(handler, block)
	}
}

func (l *Listener) snapshot() []*Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	handlers := make([]*Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	return handlers
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
}
