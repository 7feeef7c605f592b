package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/chat-relay/pkg/logging"
)

var gptTracer = otel.Tracer("relay.internal.conversation.gpt")

// ErrEmptyCompletion is returned when the model answered with no text.
var ErrEmptyCompletion = errors.New("conversation: model returned an empty answer")

const defaultMaxHistoryMessages = 40

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "conversation",
		Name:      "llm_latency_seconds",
		Help:      "Latency of LLM completions",
		Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30, 60},
	},
	[]string{"model", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "conversation",
		Name:      "llm_tokens_total",
		Help:      "Tokens used by the LLM",
	},
	[]string{"model", "type"}, // type: input, output, total
)

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
	prometheus.MustRegister(llmAnswersTotal)
}

// Service is the conversation backend: it keeps one transcript per conversation id and asks the
// LLM to continue it. Unknown ids (fresh seeds, expired transcripts) start a new conversation under
// an id minted here, which callers must adopt.
type Service struct {
	llm        LLMClient
	history    HistoryStore
	model      string
	system     []string
	maxHistory int
	logger     *logging.Logger
	newID      func() string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithSystemPrompt prepends a system prompt to every completion.
func WithSystemPrompt(prompt string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(prompt) != "" {
			s.system = append(s.system, prompt)
		}
	}
}

// WithMaxHistory bounds how many transcript messages are kept and sent.
func WithMaxHistory(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithIDGenerator overrides how new conversation ids are minted.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService returns an LLM-backed conversation Client.
func NewService(llm LLMClient, history HistoryStore, model string, logger *logging.Logger, opts ...ServiceOption) *Service {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if history == nil {
		panic("conversation: history store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		llm:        llm,
		history:    history,
		model:      model,
		maxHistory: defaultMaxHistoryMessages,
		logger:     logger,
		newID: func() string {
			return "conv_" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Client = (*Service)(nil)

// SendMessage appends text to the conversation named in opts and returns the model's answer.
func (s *Service) SendMessage(ctx context.Context, text string, opts SendOptions) (*Reply, error) {
	ctx, span := gptTracer.Start(ctx, "conversation.send_message")
	defer span.End()

	conversationID := strings.TrimSpace(opts.ConversationID)
	var history []ChatMessage
	if conversationID != "" {
		loaded, err := s.history.Load(ctx, conversationID)
		switch {
		case errors.Is(err, ErrConversationNotFound):
			s.logger.Debug("conversation id not known; starting new conversation", "requested_id", conversationID)
			conversationID = ""
		case err != nil:
			span.RecordError(err)
			return nil, err
		default:
			history = loaded
		}
	}
	if conversationID == "" {
		conversationID = s.newID()
	}
	span.SetAttributes(
		attribute.String("relay.conversation_id", conversationID),
		attribute.Int("relay.history_len", len(history)),
	)

	history = append(history, ChatMessage{Role: ChatRoleUser, Content: text})
	history = trimHistory(history, s.maxHistory)

	resp, err := s.complete(ctx, history)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if resp.Provider != "" {
		span.SetAttributes(attribute.String("relay.llm_provider", resp.Provider))
	}

	history = append(history, ChatMessage{Role: ChatRoleAssistant, Content: resp.Text})
	if err := s.history.Save(ctx, conversationID, trimHistory(history, s.maxHistory)); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &Reply{
		Text:           resp.Text,
		ConversationID: conversationID,
	}, nil
}

// Close releases the LLM client's connection, if it keeps one.
func (s *Service) Close() error {
	return closeLLM(s.llm)
}

func (s *Service) complete(ctx context.Context, history []ChatMessage) (LLMResponse, error) {
	start := time.Now()
	resp, err := s.llm.Complete(ctx, LLMRequest{
		Model:    s.model,
		System:   s.system,
		Messages: history,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmLatency.WithLabelValues(s.model, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return LLMResponse{}, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return LLMResponse{}, ErrEmptyCompletion
	}
	if resp.Usage.TotalTokens > 0 {
		llmTokensTotal.WithLabelValues(s.model, "input").Add(float64(resp.Usage.InputTokens))
		llmTokensTotal.WithLabelValues(s.model, "output").Add(float64(resp.Usage.OutputTokens))
		llmTokensTotal.WithLabelValues(s.model, "total").Add(float64(resp.Usage.TotalTokens))
	}
	return resp, nil
}

// trimHistory keeps at most the newest limit messages, starting on a user turn.
// Bedrock Converse rejects transcripts that open with an assistant message.
func trimHistory(history []ChatMessage, limit int) []ChatMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	start := len(history) - limit
	for start < len(history) && history[start].Role != ChatRoleUser {
		start++
	}
	if start == len(history) {
		// No user turn in the window; keep the latest message alone.
		start = len(history) - 1
	}
	return append([]ChatMessage(nil), history[start:]...)
}
