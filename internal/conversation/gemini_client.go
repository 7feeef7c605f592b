package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiLLMClient completes chats with Google's Gemini API.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient dials Gemini with apiKey. modelID is used when a request names no model.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: create gemini client: %w", err)
	}
	return &GeminiLLMClient{client: client, modelID: modelID}, nil
}

var _ LLMClient = (*GeminiLLMClient)(nil)

func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	prompt, err := geminiPrompt(req)
	if err != nil {
		return LLMResponse{}, err
	}

	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.modelID
	}
	model := c.client.GenerativeModel(modelID)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	model.SystemInstruction = prompt.system

	cs := model.StartChat()
	cs.History = prompt.history
	resp, err := cs.SendMessage(ctx, prompt.last)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	return geminiAnswer(resp)
}

// Close releases the Gemini connection.
func (c *GeminiLLMClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

type geminiChat struct {
	system  *genai.Content
	history []*genai.Content
	last    genai.Text
}

// geminiPrompt splits a transcript into Gemini's system instruction, prior turns and the
// message to send. The transcript must end on a user turn.
func geminiPrompt(req LLMRequest) (geminiChat, error) {
	var chat geminiChat
	system := make([]string, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) != "" {
			system = append(system, block)
		}
	}

	turns := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case ChatRoleSystem:
			system = append(system, content)
		case ChatRoleUser:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(content)}})
		case ChatRoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(content)}})
		default:
			return chat, fmt.Errorf("conversation: unsupported role %q", msg.Role)
		}
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != "user" {
		return chat, errors.New("conversation: gemini requires a final user message")
	}

	if len(system) > 0 {
		chat.system = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}
	chat.history = turns[:len(turns)-1]
	chat.last = turns[len(turns)-1].Parts[0].(genai.Text)
	return chat, nil
}

func geminiAnswer(resp *genai.GenerateContentResponse) (LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned empty content")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := LLMResponse{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}
