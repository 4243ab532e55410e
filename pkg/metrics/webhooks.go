package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook outcomes reported per provider.
const (
	WebhookOutcomeApplied    = "applied"
	WebhookOutcomeDuplicate  = "duplicate"
	WebhookOutcomeUnmatched  = "unmatched"
	WebhookOutcomeBadPayload = "bad_payload"
	WebhookOutcomeRejected   = "rejected"
	WebhookOutcomeError      = "error"
)

// WebhookMetrics counts inbound provider webhooks by outcome.
type WebhookMetrics struct {
	received *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Inbound payment webhooks by provider and outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(received)
	return &WebhookMetrics{received: received}
}

// Inc records one webhook delivery.
func (w *WebhookMetrics) Inc(provider, outcome string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
