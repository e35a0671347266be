// Package txn owns the outgoing-transaction pipeline: nonce sequencing,
// signing and broadcast, and consolidation planning.
package txn

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/infra/chain"
)

const (
	defaultLockTimeout = 10 * time.Second
	defaultIdleTTL     = 300 * time.Second
)

type nonceCacheEntry struct {
	next  uint64
	timer *time.Timer
}

// Sequencer serializes nonce allocation per account address. Concurrent
// sends for different addresses proceed in parallel; sends for the same
// address queue on a per-address semaphore with a bounded wait.
type Sequencer struct {
	client chain.Client

	lockTimeout time.Duration
	idleTTL     time.Duration

	mu    sync.Mutex
	locks map[common.Address]chan struct{}
	cache map[common.Address]*nonceCacheEntry
}

// NewSequencer creates a sequencer with the default lock timeout (10s) and
// cache idle eviction (300s).
func NewSequencer(client chain.Client) *Sequencer {
	return &Sequencer{
		client:      client,
		lockTimeout: defaultLockTimeout,
		idleTTL:     defaultIdleTTL,
		locks:       make(map[common.Address]chan struct{}),
		cache:       make(map[common.Address]*nonceCacheEntry),
	}
}

// SetTimeouts overrides the lock acquire timeout and cache idle TTL.
func (s *Sequencer) SetTimeouts(lockTimeout, idleTTL time.Duration) {
	s.lockTimeout = lockTimeout
	s.idleTTL = idleTTL
}

// WithNonce runs fn under the address lock with the next usable nonce:
// max(cached, chain transaction count). On success the cache advances to
// nonce+1 and the idle eviction timer is re-armed; on failure the cache is
// left alone so the next attempt reuses the same nonce. The lock is released
// either way.
func (s *Sequencer) WithNonce(
	ctx context.Context,
	address common.Address,
	fn func(nonce uint64) error,
) error {
	lock := s.lockFor(address)

	timeout := time.NewTimer(s.lockTimeout)
	defer timeout.Stop()

	select {
	case lock <- struct{}{}:
	case <-timeout.C:
		return domain.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	cached, hasCached := s.peek(address)

	count, err := s.client.TransactionCount(ctx, address)
	if err != nil {
		s.rearm(address)
		return err
	}

	nonce := count
	if hasCached && cached > nonce {
		nonce = cached
	}

	if err := fn(nonce); err != nil {
		s.rearm(address)
		return err
	}

	s.advance(address, nonce+1)
	return nil
}

func (s *Sequencer) lockFor(address common.Address) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[address]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[address] = lock
	}
	return lock
}

// peek reads the cached next nonce and pauses the eviction timer so the
// entry cannot vanish mid-send.
func (s *Sequencer) peek(address common.Address) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[address]
	if !ok {
		return 0, false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry.next, true
}

func (s *Sequencer) advance(address common.Address, next uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[address]
	if !ok {
		entry = &nonceCacheEntry{}
		s.cache[address] = entry
	}
	entry.next = next
	s.armLocked(address, entry)
}

// rearm restarts the eviction timer after a failed send, leaving the cached
// nonce untouched.
func (s *Sequencer) rearm(address common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.cache[address]; ok {
		s.armLocked(address, entry)
	}
}

func (s *Sequencer) armLocked(address common.Address, entry *nonceCacheEntry) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(s.idleTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.cache, address)
	})
}
