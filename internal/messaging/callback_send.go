package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/chat-relay/pkg/logging"
)

var callbackTracer = otel.Tracer("relay.internal.messaging.callback_send")

// CallbackSender posts replies as JSON to the messaging bridge's reply endpoint.
// Sends are attempted once; delivery is at-most-once.
type CallbackSender struct {
	endpoint   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewCallbackSender builds a sender with sane defaults.
func NewCallbackSender(endpoint string, logger *logging.Logger) *CallbackSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &CallbackSender{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// WithHTTPClient overrides the HTTP client used for sends.
func (s *CallbackSender) WithHTTPClient(client *http.Client) *CallbackSender {
	if client != nil {
		s.httpClient = client
	}
	return s
}

var _ ReplyMessenger = (*CallbackSender)(nil)

// SendReply dispatches a single reply.
func (s *CallbackSender) SendReply(ctx context.Context, reply OutboundReply) error {
	if s.endpoint == "" {
		return errors.New("messaging: reply endpoint missing")
	}
	if err := validateReply(reply); err != nil {
		return err
	}

	ctx, span := callbackTracer.Start(ctx, "messaging.callback.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("relay.to", reply.To),
		attribute.Bool("relay.media", reply.Media != nil),
	)

	payload, err := json.Marshal(reply)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("messaging: encode reply: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("messaging: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("messaging: send reply: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("messaging: reply rejected: %s", formatBridgeError(resp.StatusCode, body))
		span.RecordError(err)
		return err
	}
	s.logger.Debug("reply delivered", "to", reply.To, "media", reply.Media != nil)
	return nil
}

func validateReply(reply OutboundReply) error {
	if reply.To == "" {
		return errors.New("messaging: to required")
	}
	if reply.Media == nil && strings.TrimSpace(reply.Body) == "" {
		return errors.New("messaging: body or media required")
	}
	if reply.Media != nil && reply.Media.Data == "" {
		return errors.New("messaging: media data required")
	}
	return nil
}

type bridgeAPIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func formatBridgeError(status int, body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed bridgeAPIError
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return fmt.Sprintf("status %d: %s", status, parsed.Message)
		}
		if parsed.Error != "" {
			return fmt.Sprintf("status %d: %s", status, parsed.Error)
		}
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}
