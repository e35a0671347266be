package eventing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/eventing/metrics"
)

const (
	webhookMaxRetries = 15
	webhookBaseDelay  = 2 * time.Second
)

// Notifier delivers transfer payloads to webhook endpoints. Delivery is
// retried with exponential backoff at the transport level; there is no
// redelivery across blocks.
type Notifier struct {
	client     *http.Client
	maxRetries uint64
	baseDelay  time.Duration
}

// NewNotifier creates a notifier with the default retry policy: 15 attempts
// with 2^n second backoff.
func NewNotifier() *Notifier {
	return &Notifier{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: webhookMaxRetries,
		baseDelay:  webhookBaseDelay,
	}
}

// SetRetryPolicy overrides the retry count and base delay.
func (n *Notifier) SetRetryPolicy(maxRetries uint64, baseDelay time.Duration) {
	n.maxRetries = maxRetries
	n.baseDelay = baseDelay
}

// Post delivers one transfer as JSON to the webhook URL.
func (n *Notifier) Post(ctx context.Context, url string, transfer domain.Transfer) error {
	body, err := json.Marshal(transfer)
	if err != nil {
		return fmt.Errorf("failed to encode transfer: %w", err)
	}

	backoff := retry.WithMaxRetries(n.maxRetries, retry.NewExponential(n.baseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode >= 400 {
			return retry.RetryableError(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		return nil
	})
}

// Deliver posts a transfer and records the outcome, never propagating the
// failure: a crashed endpoint misses events for the block, by contract.
func (n *Notifier) Deliver(ctx context.Context, url, kind string, transfer domain.Transfer) bool {
	if err := n.Post(ctx, url, transfer); err != nil {
		metrics.WebhookErrors.WithLabelValues(kind).Inc()
		return false
	}
	metrics.WebhooksDelivered.WithLabelValues(kind).Inc()
	return true
}
