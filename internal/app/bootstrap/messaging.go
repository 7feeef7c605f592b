package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/chat-relay/internal/config"
	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

// BuildOutboundMessenger creates the reply messenger for the configured transport.
// The bridge client is returned when the websocket transport is in use so the caller can run it.
func BuildOutboundMessenger(cfg *appconfig.Config, relayMetrics *metrics.RelayMetrics, logger *logging.Logger) (messaging.ReplyMessenger, *messaging.BridgeClient, string) {
	if cfg == nil {
		return nil, nil, ""
	}
	if logger == nil {
		logger = logging.Default()
	}

	var bridge *messaging.BridgeClient
	if cfg.Transport == messaging.TransportWebsocket {
		if strings.TrimSpace(cfg.BridgeWSURL) == "" {
			logger.Warn("websocket transport selected without BRIDGE_WS_URL; falling back to webhook")
		} else {
			bridge = messaging.NewBridgeClient(cfg.BridgeWSURL, logger)
		}
	}

	messenger, provider := messaging.BuildReplyMessenger(messaging.ProviderSelectionConfig{
		Transport:      cfg.Transport,
		BridgeReplyURL: cfg.BridgeReplyURL,
		Bridge:         bridge,
		Metrics:        relayMetrics,
	}, logger)
	return messenger, bridge, provider
}
