package conversation

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiPrompt(t *testing.T) {
	chat, err := geminiPrompt(LLMRequest{
		System: []string{"Be brief.", "  "},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "Hi"},
			{Role: ChatRoleAssistant, Content: "Hello!"},
			{Role: ChatRoleSystem, Content: "Answer in French."},
			{Role: ChatRoleUser, Content: " Capital of France? "},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, chat.system)
	assert.Equal(t, []genai.Part{genai.Text("Be brief.\n\nAnswer in French.")}, chat.system.Parts)

	require.Len(t, chat.history, 2)
	assert.Equal(t, "user", chat.history[0].Role)
	assert.Equal(t, "model", chat.history[1].Role)
	assert.Equal(t, genai.Text("Hello!"), chat.history[1].Parts[0])
	assert.Equal(t, genai.Text("Capital of France?"), chat.last)
}

func TestGeminiPrompt_Errors(t *testing.T) {
	_, err := geminiPrompt(LLMRequest{})
	assert.Error(t, err)

	_, err = geminiPrompt(LLMRequest{Messages: []ChatMessage{
		{Role: ChatRoleUser, Content: "Hi"},
		{Role: ChatRoleAssistant, Content: "Hello!"},
	}})
	assert.Error(t, err, "transcript ending on the model turn has nothing to send")

	_, err = geminiPrompt(LLMRequest{Messages: []ChatMessage{{Role: "tool", Content: "x"}}})
	assert.Error(t, err)
}

func TestGeminiAnswer(t *testing.T) {
	resp, err := geminiAnswer(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(" Paris"), genai.Text(". ")},
			},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 7, CandidatesTokenCount: 2, TotalTokenCount: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris.", resp.Text)
	assert.Equal(t, genai.FinishReasonStop.String(), resp.StopReason)
	assert.Equal(t, TokenUsage{InputTokens: 7, OutputTokens: 2, TotalTokens: 9}, resp.Usage)
}

func TestGeminiAnswer_Empty(t *testing.T) {
	_, err := geminiAnswer(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	_, err = geminiAnswer(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	assert.Error(t, err)
}

func TestNewGeminiLLMClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), " ", "")
	assert.Error(t, err)
}
