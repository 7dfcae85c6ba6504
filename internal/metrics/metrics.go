package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dmg_bot"

// Metrics groups the bot's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gateDecisions  *prometheus.CounterVec
	ordersCreated  *prometheus.CounterVec
	pollSessions   *prometheus.CounterVec
	pollChecks     *prometheus.CounterVec
	finalizations  *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Usage gate decisions by outcome.",
		}, []string{"outcome"}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_orders_total",
			Help:      "Payment order creation attempts.",
		}, []string{"provider", "outcome"}),
		pollSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_sessions_finished_total",
			Help:      "Invoice poll sessions by terminal state.",
		}, []string{"state"}),
		pollChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_checks_total",
			Help:      "Invoice poll ticks by result.",
		}, []string{"result"}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_finalizations_total",
			Help:      "Finalize invocations by source and outcome.",
		}, []string{"source", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment provider webhook deliveries.",
		}, []string{"provider", "event_type", "outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_sessions_active",
			Help:      "Invoice poll sessions currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.gateDecisions,
			m.ordersCreated,
			m.pollSessions,
			m.pollChecks,
			m.finalizations,
			m.webhookEvents,
			m.activeSessions,
		)
	}
	return m
}

func (m *Metrics) GateDecision(outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OrderCreated(provider, outcome string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) PollCheck(result string) {
	if m == nil {
		return
	}
	m.pollChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) PollStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) PollFinished(state string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.pollSessions.WithLabelValues(state).Inc()
}

func (m *Metrics) Finalized(source, outcome string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) WebhookEvent(provider, eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, eventType, outcome).Inc()
}
