package messaging

import (
	"strings"

	"github.com/wolfman30/chat-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

const (
	// TransportWebhook receives messages over HTTP and replies through the bridge callback URL.
	TransportWebhook = "webhook"
	// TransportWebsocket receives and replies over a websocket bridge connection.
	TransportWebsocket = "websocket"
)

// ProviderSelectionConfig captures what is needed to build the outbound messenger.
type ProviderSelectionConfig struct {
	Transport      string
	BridgeReplyURL string
	Bridge         *BridgeClient
	Metrics        *metrics.RelayMetrics
}

// BuildReplyMessenger instantiates a ReplyMessenger for the configured transport.
// It returns the messenger and a short name describing what was selected.
// With nothing configured replies are only logged.
func BuildReplyMessenger(cfg ProviderSelectionConfig, logger *logging.Logger) (ReplyMessenger, string) {
	if logger == nil {
		logger = logging.Default()
	}
	transport := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if transport == "" {
		transport = TransportWebhook
	}

	var callback ReplyMessenger
	if cfg.BridgeReplyURL != "" {
		callback = NewCallbackSender(cfg.BridgeReplyURL, logger)
	}

	if transport == TransportWebsocket && cfg.Bridge != nil {
		if callback != nil {
			return NewFailoverMessenger(cfg.Bridge, "websocket", callback, "callback", logger).
				WithMetrics(cfg.Metrics), "websocket+callback"
		}
		return cfg.Bridge, "websocket"
	}
	if callback != nil {
		return callback, "callback"
	}
	logger.Warn("no reply transport configured; replies will only be logged", "transport", transport)
	return NewLogMessenger(logger), "log"
}
