package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRelayMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)
	m.ObserveInbound(OutcomeReplied)
	m.ObserveInbound(OutcomeReplied)
	m.ObserveInbound(OutcomeRejected)
	m.ObserveReply("text", nil)
	m.ObserveReply("voice", errors.New("send failed"))
	m.ObserveBackendLatency("conversation", nil, 0.5)
	m.ObserveFailover("websocket", "callback", FailoverDisconnected, nil)

	if got := counterValue(t, m.inboundTotal.WithLabelValues(OutcomeReplied)); got != 2 {
		t.Fatalf("expected 2 replied, got %v", got)
	}
	if got := counterValue(t, m.repliesTotal.WithLabelValues("voice", "error")); got != 1 {
		t.Fatalf("expected 1 failed voice reply, got %v", got)
	}

	if got := counterValue(t, m.failoversTotal.WithLabelValues("websocket", "callback", FailoverDisconnected, "ok")); got != 1 {
		t.Fatalf("expected 1 failover, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 4 {
		t.Fatalf("expected 4 metric families, got %d", len(families))
	}
}

func TestRelayMetricsNilSafe(t *testing.T) {
	var m *RelayMetrics
	m.ObserveInbound(OutcomeFailed)
	m.ObserveReply("text", nil)
	m.ObserveBackendLatency("moderation", nil, 0.1)
	m.ObserveFailover("websocket", "callback", FailoverSendError, nil)
}
