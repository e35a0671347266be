package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonlabs/walletd/internal/core/domain"
)

// Intents last long enough for an operator to notice a stuck two-phase
// consolidation; completed ones are deleted explicitly.
const intentTTL = 7 * 24 * time.Hour

// IntentRepo persists pending two-phase consolidations in Redis.
type IntentRepo struct {
	rdb *redis.Client
}

// NewIntentRepo creates a Redis-backed consolidation intent store.
func NewIntentRepo(client *Client) *IntentRepo {
	return &IntentRepo{rdb: client.rdb}
}

func intentKey(wallet, contract, source string) string {
	return fmt.Sprintf("consolidation:%s:%s:%s", wallet, contract, source)
}

// Save upserts an intent record.
func (r *IntentRepo) Save(ctx context.Context, intent *domain.ConsolidationIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal intent: %w", err)
	}

	key := intentKey(intent.Wallet, intent.Contract, intent.From)
	if err := r.rdb.Set(ctx, key, data, intentTTL).Err(); err != nil {
		return fmt.Errorf("failed to set intent: %w", err)
	}
	return nil
}

// Delete removes a completed intent.
func (r *IntentRepo) Delete(ctx context.Context, wallet, contract, source string) error {
	if err := r.rdb.Del(ctx, intentKey(wallet, contract, source)).Err(); err != nil {
		return fmt.Errorf("failed to delete intent: %w", err)
	}
	return nil
}

// List returns every pending intent.
func (r *IntentRepo) List(ctx context.Context) ([]*domain.ConsolidationIntent, error) {
	var intents []*domain.ConsolidationIntent

	iter := r.rdb.Scan(ctx, 0, "consolidation:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get intent: %w", err)
		}

		var intent domain.ConsolidationIntent
		if err := json.Unmarshal(data, &intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal intent: %w", err)
		}
		intents = append(intents, &intent)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return intents, nil
}
