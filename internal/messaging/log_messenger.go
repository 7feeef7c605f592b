package messaging

import (
	"context"

	"github.com/wolfman30/chat-relay/pkg/logging"
)

// LogMessenger writes replies to the log instead of delivering them.
// Used when no transport is configured.
type LogMessenger struct {
	logger *logging.Logger
}

// NewLogMessenger returns a messenger that only logs replies.
func NewLogMessenger(logger *logging.Logger) *LogMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogMessenger{logger: logger}
}

var _ ReplyMessenger = (*LogMessenger)(nil)

func (m *LogMessenger) SendReply(ctx context.Context, reply OutboundReply) error {
	if err := validateReply(reply); err != nil {
		return err
	}
	if reply.Media != nil {
		m.logger.Info("reply (media)", "to", reply.To, "mime_type", reply.Media.MimeType, "bytes_b64", len(reply.Media.Data))
		return nil
	}
	m.logger.Info("reply", "to", reply.To, "body", reply.Body)
	return nil
}
