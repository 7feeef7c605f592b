package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/chat-relay/pkg/logging"
)

var webhookTracer = otel.Tracer("relay.internal.messaging.webhook")

const maxWebhookBody = 1 << 20

// Handler accepts inbound messages over HTTP and hands them to an InboundHandler.
// Each message is processed on its own goroutine; the HTTP request returns as soon as it is queued.
type Handler struct {
	inbound InboundHandler
	logger  *logging.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// NewHandler creates a new messaging handler.
func NewHandler(inbound InboundHandler, logger *logging.Logger) *Handler {
	if inbound == nil {
		panic("messaging: inbound handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		inbound: inbound,
		logger:  logger,
		now:     time.Now,
	}
}

// InboundWebhook handles POST /webhooks/messages requests.
func (h *Handler) InboundWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.webhook.inbound")
	defer span.End()

	msg, err := decodeInbound(r.Body)
	if err != nil {
		h.logger.Warn("rejecting inbound webhook", "error", err)
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = h.now().UTC()
	}
	span.SetAttributes(attribute.String("relay.message_id", msg.ID))

	h.Dispatch(ctx, msg)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "id": msg.ID})
}

// Dispatch runs the inbound handler for msg in the background.
// The exchange is detached from ctx cancellation so it outlives the request that carried it.
func (h *Handler) Dispatch(ctx context.Context, msg Inbound) {
	detached := context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.inbound.HandleMessage(detached, msg)
	}()
}

// Wait blocks until every dispatched message finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// Drain waits for in-flight messages until ctx expires; unfinished exchanges are abandoned.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HealthCheck handles GET /health requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeInbound(body io.Reader) (Inbound, error) {
	var msg Inbound
	dec := json.NewDecoder(io.LimitReader(body, maxWebhookBody))
	if err := dec.Decode(&msg); err != nil {
		return Inbound{}, errors.New("messaging: invalid json payload")
	}
	msg.From = strings.TrimSpace(msg.From)
	if msg.From == "" {
		return Inbound{}, errors.New("messaging: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return Inbound{}, errors.New("messaging: body required")
	}
	return msg, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
