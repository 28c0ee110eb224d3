package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total webhook events received, by outcome",
	}, []string{
		"gateway", // CARD, REDIRECT_PSP, PAYOUT_PROVIDER
		"outcome", // applied, noop, duplicate, rejected, quarantined, invalid_signature, malformed, ignored, target_not_found, target_not_ready, error
	})

	webhookProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Time to verify, dedup and apply a webhook event",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{
		"gateway",
	})

	// State machine metrics
	stateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "state_transitions_total",
		Help: "Status transitions attempted on transactions, refunds and payouts",
	}, []string{
		"entity",  // transaction, refund, payout
		"from",
		"to",
		"outcome", // applied, noop, rejected
	})

	statusQuarantinedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "status_quarantined_total",
		Help: "Provider statuses with no canonical mapping, held for operator follow-up",
	}, []string{
		"gateway",
		"entity",
	})

	// Payout metrics
	payoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_total",
		Help: "Payout lifecycle events",
	}, []string{
		"event", // created, skipped, dispatched, failed, completed, retried, cancelled
		"currency",
	})

	payoutAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_amount_total",
		Help: "Total amount dispatched to the payout API, in major currency units",
	}, []string{
		"currency",
	})

	payoutAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "payout_api_request_duration_seconds",
		Help: "Latency of payout API calls",
		// Buckets: 50ms to 30s (bounded by the external API timeout)
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"operation", // create, get
		"result",    // success, transient, permanent
	})

	payoutRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_runs_total",
		Help: "Payout period runs by trigger and result",
	}, []string{
		"trigger", // cron, operator, cli
		"result",  // success, partial, failed, locked
	})
)

// RecordWebhookEvent records the outcome of one webhook delivery
func RecordWebhookEvent(gateway, outcome string, duration float64) {
	webhookEventsTotal.WithLabelValues(gateway, outcome).Inc()
	webhookProcessingDuration.WithLabelValues(gateway).Observe(duration)
}

// RecordStateTransition records an attempted status change
func RecordStateTransition(entity, from, to, outcome string) {
	stateTransitionsTotal.WithLabelValues(entity, from, to, outcome).Inc()
}

// RecordStatusQuarantined records a provider status that could not be mapped
func RecordStatusQuarantined(gateway, entity string) {
	statusQuarantinedTotal.WithLabelValues(gateway, entity).Inc()
}

// RecordPayoutEvent records a payout lifecycle event
func RecordPayoutEvent(event, currency string) {
	payoutsTotal.WithLabelValues(event, currency).Inc()
}

// RecordPayoutDispatched records the amount handed to the payout API
func RecordPayoutDispatched(currency string, amount float64) {
	payoutsTotal.WithLabelValues("dispatched", currency).Inc()
	payoutAmountTotal.WithLabelValues(currency).Add(amount)
}

// RecordPayoutAPICall records payout API latency
func RecordPayoutAPICall(operation, result string, duration float64) {
	payoutAPIDuration.WithLabelValues(operation, result).Observe(duration)
}

// RecordPayoutRun records a period run
func RecordPayoutRun(trigger, result string) {
	payoutRunsTotal.WithLabelValues(trigger, result).Inc()
}
