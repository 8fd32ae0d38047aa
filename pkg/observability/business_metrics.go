package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Funding aggregator metrics
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_reservations_total",
		Help: "Reservation attempts by outcome",
	}, []string{
		"result", // reserved, insufficient_capacity, not_active, error
	})

	reservationSettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_reservation_settlements_total",
		Help: "Reservations settled by commit, release or reversal",
	}, []string{
		"action", // commit, release, reverse
	})

	committedAmountMinor = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_committed_amount_minor_total",
		Help: "Capital committed to campaigns in minor units",
	}, []string{
		"currency",
	})

	campaignsFundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_campaigns_funded_total",
		Help: "Campaigns that reached their funding goal",
	})

	auditDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_audit_drift_total",
		Help: "Campaign audits where cached committed capital disagreed with reservations",
	})

	// Ledger metrics
	ledgerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_ledger_transitions_total",
		Help: "Investment ledger transitions",
	}, []string{
		"event",
		"to",
	})

	invalidTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_ledger_invalid_transitions_total",
		Help: "Rejected investment ledger transitions",
	}, []string{
		"event",
		"from",
	})

	// Webhook reconciler metrics
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_webhook_events_total",
		Help: "Inbound provider events by outcome",
	}, []string{
		"provider",
		"outcome", // applied, duplicate, dead_lettered, rejected, ignored, error
	})

	webhookProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "funding_webhook_processing_duration_seconds",
		Help:    "Time to reconcile an inbound provider event",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{
		"provider",
	})

	deadLettersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_dead_letters_total",
		Help: "Provider events parked for manual reconciliation",
	}, []string{
		"provider",
		"reason",
	})

	// Recurring billing metrics
	recurringChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_recurring_charges_total",
		Help: "Scheduled recurring charge attempts",
	}, []string{
		"status", // succeeded, failed, pending, defaulted, skipped, error
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funding_billing_sweep_duration_seconds",
		Help:    "Duration of recurring billing sweeps",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
	})

	// Gateway metrics
	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_gateway_requests_total",
		Help: "Provider API calls by operation and outcome",
	}, []string{
		"provider",
		"operation", // charge, subscribe, cancel_subscription, refund
		"outcome",   // succeeded, pending, failed, transient_error, permanent_error, deduplicated
	})

	gatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "funding_gateway_request_duration_seconds",
		Help:    "Provider API call latency including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{
		"provider",
		"operation",
	})

	gatewayCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "funding_gateway_circuit_state",
		Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
	}, []string{
		"provider",
	})

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_notifications_total",
		Help: "Notifications handed to the notifier",
	}, []string{
		"type",
		"status", // delivered, failed, dropped
	})
)

// RecordReservation records a reservation attempt
func RecordReservation(result string) {
	reservationsTotal.WithLabelValues(result).Inc()
}

// RecordSettlement records a commit, release or reversal
func RecordSettlement(action string) {
	reservationSettlementsTotal.WithLabelValues(action).Inc()
}

// RecordCommittedAmount adds committed capital for revenue-style dashboards
func RecordCommittedAmount(currency string, amount int64) {
	committedAmountMinor.WithLabelValues(currency).Add(float64(amount))
}

// RecordCampaignFunded records a campaign reaching its goal
func RecordCampaignFunded() {
	campaignsFundedTotal.Inc()
}

// RecordAuditDrift records a failed reconciliation audit
func RecordAuditDrift() {
	auditDriftTotal.Inc()
}

// RecordLedgerTransition records an applied investment transition
func RecordLedgerTransition(event, to string) {
	ledgerTransitionsTotal.WithLabelValues(event, to).Inc()
}

// RecordInvalidTransition records a rejected investment transition
func RecordInvalidTransition(event, from string) {
	invalidTransitionsTotal.WithLabelValues(event, from).Inc()
}

// RecordWebhookEvent records the outcome of an inbound provider event
func RecordWebhookEvent(provider, outcome string, duration float64) {
	webhookEventsTotal.WithLabelValues(provider, outcome).Inc()
	webhookProcessingDuration.WithLabelValues(provider).Observe(duration)
}

// RecordDeadLetter records a parked provider event
func RecordDeadLetter(provider, reason string) {
	deadLettersTotal.WithLabelValues(provider, reason).Inc()
}

// RecordRecurringCharge records a scheduled charge attempt
func RecordRecurringCharge(status string) {
	recurringChargesTotal.WithLabelValues(status).Inc()
}

// RecordSweep records the duration of a billing sweep
func RecordSweep(duration float64) {
	sweepDuration.Observe(duration)
}

// RecordGatewayRequest records a provider API call
func RecordGatewayRequest(provider, operation, outcome string, duration float64) {
	gatewayRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	gatewayRequestDuration.WithLabelValues(provider, operation).Observe(duration)
}

// SetGatewayCircuitState publishes the breaker state of a provider
func SetGatewayCircuitState(provider string, state int) {
	gatewayCircuitState.WithLabelValues(provider).Set(float64(state))
}

// RecordNotification records a notification delivery outcome
func RecordNotification(notificationType, status string) {
	notificationsTotal.WithLabelValues(notificationType, status).Inc()
}
