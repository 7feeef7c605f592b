package metrics

import "github.com/prometheus/client_golang/prometheus"

// Inbound outcomes.
const (
	OutcomeReplied  = "replied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeIgnored  = "ignored"
)

// Reasons a reply moved from the primary transport to its fallback.
const (
	FailoverDisconnected = "disconnected"
	FailoverSendError    = "send_error"
)

// RelayMetrics exposes counters/histograms for the reply pipeline.
type RelayMetrics struct {
	inboundTotal   *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	failoversTotal *prometheus.CounterVec
}

// NewRelayMetrics registers the pipeline collectors on reg, or the default registerer when reg is nil.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "pipeline",
			Name:      "inbound_total",
			Help:      "Inbound messages by pipeline outcome",
		}, []string{"outcome"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "pipeline",
			Name:      "replies_total",
			Help:      "Outbound replies by kind (text, voice) and send status",
		}, []string{"kind", "status"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "pipeline",
			Name:      "backend_latency_seconds",
			Help:      "Latency of moderation, conversation and speech backend calls",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"backend", "status"}),
		failoversTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "transport",
			Name:      "failovers_total",
			Help:      "Replies handed from the primary transport to the fallback, by reason and fallback status",
		}, []string{"from", "to", "reason", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.repliesTotal, m.backendLatency, m.failoversTotal)
	return m
}

// ObserveInbound counts one inbound message by pipeline outcome.
func (m *RelayMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

// ObserveReply counts one outbound reply of kind "text" or "voice".
func (m *RelayMetrics) ObserveReply(kind string, err error) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(kind, statusLabel(err)).Inc()
}

func (m *RelayMetrics) ObserveBackendLatency(backend string, err error, seconds float64) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(backend, statusLabel(err)).Observe(seconds)
}

// ObserveFailover counts a reply moved from one transport to another and whether the fallback delivered it.
func (m *RelayMetrics) ObserveFailover(from, to, reason string, err error) {
	if m == nil {
		return
	}
	m.failoversTotal.WithLabelValues(from, to, reason, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
