package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksProcessed tracks blocks fanned out to wallet handlers
	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletd_blocks_processed_total",
			Help: "Total number of blocks fanned out to wallet handlers",
		},
	)

	// Reconnects tracks subscription reconnect attempts
	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletd_subscription_reconnects_total",
			Help: "Total number of block subscription reconnects",
		},
	)

	// WebhooksDelivered tracks successful webhook deliveries per event kind
	WebhooksDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_webhooks_delivered_total",
			Help: "Total number of webhook notifications delivered",
		},
		[]string{"kind"},
	)

	// WebhookErrors tracks webhook deliveries that exhausted their retries
	WebhookErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_webhook_errors_total",
			Help: "Total number of webhook notifications that failed permanently",
		},
		[]string{"kind"},
	)

	// TransactionsSent tracks broadcast transactions
	TransactionsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletd_transactions_sent_total",
			Help: "Total number of transactions broadcast",
		},
	)

	// Consolidations tracks consolidation dispatches per kind
	Consolidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_consolidations_total",
			Help: "Total number of consolidation transactions dispatched",
		},
		[]string{"kind"},
	)

	// ChainLatestBlock tracks the latest block seen on the subscription
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletd_chain_latest_block",
			Help: "Latest block number received from the subscription",
		},
	)

	// RegisteredHandlers tracks the number of active wallet handlers
	RegisteredHandlers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletd_registered_handlers",
			Help: "Number of wallets with an active block handler",
		},
	)
)
