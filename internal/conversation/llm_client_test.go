package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChatClient struct {
	response openai.ChatCompletionResponse
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (s *stubChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	return s.response, s.err
}

func TestOpenAILLMClient_Complete(t *testing.T) {
	stub := &stubChatClient{response: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "  Paris.  "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}}
	client := NewOpenAILLMClient(stub)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:  "gpt-4o-mini",
		System: []string{"Be brief.", " "},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "Capital of France?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(12), resp.Usage.TotalTokens)

	require.Len(t, stub.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, stub.lastReq.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, stub.lastReq.Messages[1].Role)
	assert.Equal(t, "gpt-4o-mini", stub.lastReq.Model)
}

func TestOpenAILLMClient_Errors(t *testing.T) {
	_, err := NewOpenAILLMClient(&stubChatClient{}).Complete(context.Background(), LLMRequest{})
	assert.Error(t, err, "no choices should be an error")

	boom := errors.New("timeout")
	_, err = NewOpenAILLMClient(&stubChatClient{err: boom}).Complete(context.Background(), LLMRequest{})
	assert.ErrorIs(t, err, boom)

	_, err = NewOpenAILLMClient(&stubChatClient{}).Complete(context.Background(), LLMRequest{
		Messages: []ChatMessage{{Role: "tool", Content: "x"}},
	})
	assert.Error(t, err)
}

type stubConverseAPI struct {
	out     *bedrockruntime.ConverseOutput
	err     error
	lastReq *bedrockruntime.ConverseInput
}

func (s *stubConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastReq = params
	return s.out, s.err
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	api := &stubConverseAPI{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Hola"}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(4), OutputTokens: aws.Int32(1), TotalTokens: aws.Int32(5)},
	}}
	client := NewBedrockLLMClient(api)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model: "anthropic.claude-3-haiku",
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "Answer in Spanish."},
			{Role: ChatRoleUser, Content: "Hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hola", resp.Text)
	assert.Equal(t, int32(5), resp.Usage.TotalTokens)
	assert.Len(t, api.lastReq.System, 1)
	assert.Len(t, api.lastReq.Messages, 1)
	assert.Nil(t, api.lastReq.InferenceConfig)
}

func TestBedrockLLMClient_RequiresModel(t *testing.T) {
	_, err := NewBedrockLLMClient(&stubConverseAPI{}).Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)
}

func TestBedrockLLMClient_NoTextIsError(t *testing.T) {
	api := &stubConverseAPI{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	}}
	_, err := NewBedrockLLMClient(api).Complete(context.Background(), LLMRequest{Model: "m"})
	assert.Error(t, err)
}

func TestFallbackLLMClient(t *testing.T) {
	primaryErr := errors.New("primary down")

	t.Run("uses fallback and reports it", func(t *testing.T) {
		fallback := &stubLLM{replies: []string{"from fallback"}}
		client := NewFallbackLLMClient("openai", &stubLLM{err: primaryErr}, "bedrock", fallback, nil)
		resp, err := client.Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "from fallback", resp.Text)
		assert.Equal(t, "bedrock", resp.Provider)
	})

	t.Run("empty primary answer goes to fallback", func(t *testing.T) {
		fallback := &stubLLM{replies: []string{"second opinion"}}
		client := NewFallbackLLMClient("openai", &stubLLM{replies: []string{"  "}}, "bedrock", fallback, nil)
		resp, err := client.Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "second opinion", resp.Text)
		assert.Len(t, fallback.requests, 1)
	})

	t.Run("no fallback returns primary error", func(t *testing.T) {
		client := NewFallbackLLMClient("openai", &stubLLM{err: primaryErr}, "", nil, nil)
		_, err := client.Complete(context.Background(), LLMRequest{})
		assert.ErrorIs(t, err, primaryErr)
	})

	t.Run("both failing joins errors", func(t *testing.T) {
		fallbackErr := errors.New("throttled")
		client := NewFallbackLLMClient("openai", &stubLLM{err: primaryErr}, "bedrock", &stubLLM{err: fallbackErr}, nil)
		_, err := client.Complete(context.Background(), LLMRequest{})
		assert.ErrorIs(t, err, primaryErr)
		assert.ErrorIs(t, err, fallbackErr)
	})

	t.Run("ended context skips fallback", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fallback := &stubLLM{replies: []string{"late"}}
		client := NewFallbackLLMClient("openai", &stubLLM{err: context.Canceled}, "bedrock", fallback, nil)
		_, err := client.Complete(ctx, LLMRequest{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, fallback.requests)
	})

	t.Run("primary success skips fallback", func(t *testing.T) {
		fallback := &stubLLM{}
		client := NewFallbackLLMClient("openai", &stubLLM{replies: []string{"ok"}}, "bedrock", fallback, nil)
		resp, err := client.Complete(context.Background(), LLMRequest{})
		require.NoError(t, err)
		assert.Equal(t, "openai", resp.Provider)
		assert.Empty(t, fallback.requests)
	})
}

func TestPinModel(t *testing.T) {
	inner := &stubLLM{replies: []string{"ok"}}
	_, err := PinModel(inner, "anthropic.claude-3-haiku").Complete(context.Background(), LLMRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic.claude-3-haiku", inner.requests[0].Model)

	assert.Same(t, inner, PinModel(inner, "").(*stubLLM))
}

type closingLLM struct {
	stubLLM
	closed int
}

func (c *closingLLM) Close() error {
	c.closed++
	return nil
}

func TestServiceCloseReachesConnectedProviders(t *testing.T) {
	primary, fallback := &closingLLM{}, &closingLLM{}
	llm := NewFallbackLLMClient("gemini", PinModel(primary, "gemini-2.5-flash"), "openai", fallback, nil)
	svc := NewService(llm, NewMemoryHistoryStore(0), "m", nil)

	require.NoError(t, svc.Close())
	assert.Equal(t, 1, primary.closed)
	assert.Equal(t, 1, fallback.closed)

	assert.NoError(t, NewService(&stubLLM{}, NewMemoryHistoryStore(0), "m", nil).Close())
}
