package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/chat-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

// FailoverMessenger delivers replies over the bridge websocket and hands them to the
// HTTP callback when the bridge is down or a frame cannot be written.
// A reply whose context has already ended is not retried.
type FailoverMessenger struct {
	primary       ReplyMessenger
	secondary     ReplyMessenger
	primaryName   string
	secondaryName string
	metrics       *metrics.RelayMetrics
	logger        *logging.Logger
}

// NewFailoverMessenger builds a failover messenger with named transports.
func NewFailoverMessenger(primary ReplyMessenger, primaryName string, secondary ReplyMessenger, secondaryName string, logger *logging.Logger) *FailoverMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverMessenger{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

// WithMetrics counts every reply handed to the fallback transport.
func (f *FailoverMessenger) WithMetrics(m *metrics.RelayMetrics) *FailoverMessenger {
	f.metrics = m
	return f
}

var _ ReplyMessenger = (*FailoverMessenger)(nil)

// SendReply tries the primary transport first, then the secondary one.
func (f *FailoverMessenger) SendReply(ctx context.Context, reply OutboundReply) error {
	if f == nil || f.primary == nil {
		return errors.New("messaging: failover primary sender not configured")
	}
	err := f.primary.SendReply(ctx, reply)
	if err == nil {
		return nil
	}
	if f.secondary == nil || ctx.Err() != nil {
		return err
	}

	reason := metrics.FailoverSendError
	if errors.Is(err, ErrBridgeDisconnected) {
		// Expected while the bridge reconnects.
		reason = metrics.FailoverDisconnected
		f.logger.Info("bridge offline; sending reply through fallback",
			"fallback", f.secondaryName,
			"to", reply.To,
			"voice", reply.Media != nil,
		)
	} else {
		f.logger.Warn("reply send failed; attempting fallback",
			"transport", f.primaryName,
			"fallback", f.secondaryName,
			"error", err,
			"to", reply.To,
		)
	}

	fallbackErr := f.secondary.SendReply(ctx, reply)
	f.metrics.ObserveFailover(f.primaryName, f.secondaryName, reason, fallbackErr)
	if fallbackErr != nil {
		f.logger.Error("fallback reply send failed",
			"transport", f.secondaryName,
			"reason", reason,
			"error", fallbackErr,
			"to", reply.To,
		)
		return errors.Join(err, fallbackErr)
	}
	return nil
}
