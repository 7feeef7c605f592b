package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/chat-relay/pkg/logging"
)

var llmAnswersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "conversation",
		Name:      "llm_answers_total",
		Help:      "Completions by the provider that answered and whether it was the fallback",
	},
	[]string{"provider", "role"}, // role: primary, fallback
)

// FallbackLLMClient sends a completion to the primary provider and, when that fails or
// answers with no text, once more to the fallback. The answering provider is reported
// in LLMResponse.Provider. Nothing is retried once ctx has ended.
type FallbackLLMClient struct {
	primary      LLMClient
	primaryName  string
	fallback     LLMClient
	fallbackName string
	logger       *logging.Logger
}

// NewFallbackLLMClient pairs two named providers. A nil fallback leaves only the primary.
func NewFallbackLLMClient(primaryName string, primary LLMClient, fallbackName string, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:      primary,
		primaryName:  primaryName,
		fallback:     fallback,
		fallbackName: fallbackName,
		logger:       logger,
	}
}

var _ LLMClient = (*FallbackLLMClient)(nil)

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = ErrEmptyCompletion
	}
	if err == nil {
		return c.answered(resp, c.primaryName, "primary"), nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return LLMResponse{}, err
	}

	c.logger.Warn("primary LLM failed; asking fallback",
		"primary", c.primaryName,
		"fallback", c.fallbackName,
		"model", req.Model,
		"error", err,
	)
	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"fallback", c.fallbackName,
			"primary_error", err,
			"fallback_error", fallbackErr,
		)
		return LLMResponse{}, errors.Join(err, fallbackErr)
	}
	return c.answered(fallbackResp, c.fallbackName, "fallback"), nil
}

func (c *FallbackLLMClient) answered(resp LLMResponse, provider, role string) LLMResponse {
	if resp.Provider == "" {
		resp.Provider = provider
	}
	llmAnswersTotal.WithLabelValues(resp.Provider, role).Inc()
	return resp
}

// Close closes both providers.
func (c *FallbackLLMClient) Close() error {
	return errors.Join(closeLLM(c.primary), closeLLM(c.fallback))
}
