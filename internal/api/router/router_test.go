package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

type recordingInbound struct {
	mu       sync.Mutex
	messages []messaging.Inbound
}

func (r *recordingInbound) HandleMessage(ctx context.Context, msg messaging.Inbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func newTestRouter(t *testing.T) (http.Handler, *messaging.Handler, *recordingInbound) {
	t.Helper()

	logger := logging.New("error")
	inbound := &recordingInbound{}
	messagingHandler := messaging.NewHandler(inbound, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_test_total", Help: "test"}))

	cfg := &Config{
		Logger:           logger,
		MessagingHandler: messagingHandler,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	return New(cfg), messagingHandler, inbound
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterInboundWebhook(t *testing.T) {
	router, handler, inbound := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"from": "alice", "body": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/messages", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)
	handler.Wait()

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}
	inbound.mu.Lock()
	defer inbound.mu.Unlock()
	if len(inbound.messages) != 1 || inbound.messages[0].Body != "hello" {
		t.Fatalf("expected one dispatched message, got %+v", inbound.messages)
	}
}

func TestRouterWebhookRejectsGet(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/messages", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "relay_test_total") {
		t.Fatalf("expected metrics output to contain relay_test_total")
	}
}
