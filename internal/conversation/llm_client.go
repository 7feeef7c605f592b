package conversation

import (
	"context"
	"io"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
	// Provider names the backend that answered when a fallback is configured.
	Provider string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// PinModel returns an LLMClient that always completes with model, whatever the request names.
// Used when a fallback provider needs its own model id.
func PinModel(client LLMClient, model string) LLMClient {
	if model == "" {
		return client
	}
	return pinnedModelClient{client: client, model: model}
}

type pinnedModelClient struct {
	client LLMClient
	model  string
}

func (c pinnedModelClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	req.Model = c.model
	return c.client.Complete(ctx, req)
}

func (c pinnedModelClient) Close() error { return closeLLM(c.client) }

// closeLLM closes client when it holds a connection, such as the Gemini client.
func closeLLM(client LLMClient) error {
	if c, ok := client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
