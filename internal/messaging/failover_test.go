package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/chat-relay/internal/observability/metrics"
)

type stubMessenger struct {
	err   error
	calls int
}

func (s *stubMessenger) SendReply(ctx context.Context, reply OutboundReply) error {
	s.calls++
	return s.err
}

func TestFailoverMessenger(t *testing.T) {
	reply := OutboundReply{To: "+1", Body: "hi"}

	t.Run("primary succeeds", func(t *testing.T) {
		primary, secondary := &stubMessenger{}, &stubMessenger{}
		f := NewFailoverMessenger(primary, "websocket", secondary, "callback", nil)
		assert.NoError(t, f.SendReply(context.Background(), reply))
		assert.Equal(t, 0, secondary.calls)
	})

	t.Run("falls back on error", func(t *testing.T) {
		primary, secondary := &stubMessenger{err: errors.New("down")}, &stubMessenger{}
		f := NewFailoverMessenger(primary, "websocket", secondary, "callback", nil)
		assert.NoError(t, f.SendReply(context.Background(), reply))
		assert.Equal(t, 1, secondary.calls)
	})

	t.Run("returns fallback error", func(t *testing.T) {
		fallbackErr := errors.New("also down")
		f := NewFailoverMessenger(&stubMessenger{err: errors.New("down")}, "websocket", &stubMessenger{err: fallbackErr}, "callback", nil)
		err := f.SendReply(context.Background(), reply)
		assert.ErrorIs(t, err, fallbackErr)
		assert.Contains(t, err.Error(), "down")
	})

	t.Run("disconnected bridge goes straight to callback", func(t *testing.T) {
		callback := &stubMessenger{}
		f := NewFailoverMessenger(NewBridgeClient("ws://bridge", nil), "websocket", callback, "callback", nil)
		assert.NoError(t, f.SendReply(context.Background(), reply))
		assert.Equal(t, 1, callback.calls)
	})

	t.Run("ended context is not retried", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		primaryErr := fmt.Errorf("write reply: %w", context.Canceled)
		secondary := &stubMessenger{}
		f := NewFailoverMessenger(&stubMessenger{err: primaryErr}, "websocket", secondary, "callback", nil)
		assert.ErrorIs(t, f.SendReply(ctx, reply), context.Canceled)
		assert.Equal(t, 0, secondary.calls)
	})

	t.Run("no primary", func(t *testing.T) {
		var f *FailoverMessenger
		assert.Error(t, f.SendReply(context.Background(), reply))
	})
}

func failoverCount(t *testing.T, reg *prometheus.Registry, reason, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "relay_transport_failovers_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["reason"] == reason && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestFailoverMessenger_CountsFailoverReasons(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRelayMetrics(reg)
	reply := OutboundReply{To: "+1", Body: "hi"}

	offline := NewFailoverMessenger(NewBridgeClient("ws://bridge", nil), "websocket", &stubMessenger{}, "callback", nil).WithMetrics(m)
	require.NoError(t, offline.SendReply(context.Background(), reply))
	require.NoError(t, offline.SendReply(context.Background(), reply))

	broken := NewFailoverMessenger(&stubMessenger{err: errors.New("write: broken pipe")}, "websocket", &stubMessenger{err: errors.New("404")}, "callback", nil).WithMetrics(m)
	require.Error(t, broken.SendReply(context.Background(), reply))

	assert.Equal(t, 2.0, failoverCount(t, reg, metrics.FailoverDisconnected, "ok"))
	assert.Equal(t, 1.0, failoverCount(t, reg, metrics.FailoverSendError, "error"))
}

func TestBuildReplyMessenger(t *testing.T) {
	bridge := NewBridgeClient("ws://bridge", nil)

	tests := []struct {
		name string
		cfg  ProviderSelectionConfig
		want string
	}{
		{"nothing configured", ProviderSelectionConfig{}, "log"},
		{"callback", ProviderSelectionConfig{Transport: "webhook", BridgeReplyURL: "http://bridge/reply"}, "callback"},
		{"websocket only", ProviderSelectionConfig{Transport: "websocket", Bridge: bridge}, "websocket"},
		{"websocket with callback", ProviderSelectionConfig{Transport: "WebSocket", Bridge: bridge, BridgeReplyURL: "http://bridge/reply"}, "websocket+callback"},
		{"websocket without client", ProviderSelectionConfig{Transport: "websocket", BridgeReplyURL: "http://bridge/reply"}, "callback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messenger, name := BuildReplyMessenger(tt.cfg, nil)
			assert.NotNil(t, messenger)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestLogMessenger(t *testing.T) {
	m := NewLogMessenger(nil)
	assert.NoError(t, m.SendReply(context.Background(), OutboundReply{To: "+1", Body: "hi"}))
	assert.NoError(t, m.SendReply(context.Background(), OutboundReply{To: "+1", Media: NewMedia(MimeTypeOpus, []byte{1}, "")}))
	assert.Error(t, m.SendReply(context.Background(), OutboundReply{To: "+1"}))
}
