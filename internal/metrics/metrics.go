// Package metrics exposes the gateway's Prometheus instrumentation on a
// package-level registry served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gateway"

// Registry is the Prometheus registry for all gateway metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Credential metrics.
var (
	// VerifyAttempts counts Verify calls by result
	// (success, invalid, revoked).
	VerifyAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_verify_total",
			Help:      "API key verification attempts by result",
		},
		[]string{"result"},
	)

	// KeysIssued counts issued API keys by environment.
	KeysIssued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikeys_issued_total",
			Help:      "API keys issued, by environment",
		},
		[]string{"environment"},
	)

	// KeysRevoked counts revocations.
	KeysRevoked = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikeys_revoked_total",
			Help:      "API keys revoked",
		},
	)
)

// Delivery metrics.
var (
	// EventsEnqueued counts domain events accepted by the dispatcher.
	EventsEnqueued = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_enqueued_total",
			Help:      "Domain events accepted for webhook fan-out",
		},
	)

	// DeliveriesCreated counts ledger rows created at enqueue time.
	DeliveriesCreated = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_created_total",
			Help:      "Webhook delivery rows created",
		},
	)

	// DeliveryAttempts counts attempts by outcome (success, retry, exhausted).
	DeliveryAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_attempts_total",
			Help:      "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	// DeliveryLatency records partner endpoint response time in seconds.
	DeliveryLatency = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_latency_seconds",
			Help:      "Partner endpoint response latency for successful deliveries",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// ManualRetries counts operator-initiated retries.
	ManualRetries = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_manual_retries_total",
			Help:      "Operator-initiated delivery retries",
		},
	)

	// SweepRequeued counts stale PENDING deliveries recovered by the sweep.
	SweepRequeued = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_sweep_requeued_total",
			Help:      "Stale pending deliveries requeued by the periodic sweep",
		},
	)
)
