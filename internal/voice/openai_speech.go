package voice

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type speechClient interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAISpeech synthesizes audio with the OpenAI text-to-speech endpoint.
type OpenAISpeech struct {
	client speechClient
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewOpenAISpeech builds a synthesizer on client, defaulting to the tts-1 model and the alloy voice.
func NewOpenAISpeech(client speechClient, model, voice string) *OpenAISpeech {
	if client == nil {
		panic("voice: openai speech client cannot be nil")
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAISpeech{
		client: client,
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
	}
}

var _ Synthesizer = (*OpenAISpeech)(nil)

// Name labels the backend in notices sent to users.
func (s *OpenAISpeech) Name() string { return "OpenAI" }

// Synthesize requests Opus audio for text. A response without a body yields no audio.
func (s *OpenAISpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatOpus,
	})
	if err != nil {
		return nil, fmt.Errorf("voice: openai speech failed: %w", err)
	}
	if resp.ReadCloser == nil {
		return nil, nil
	}
	defer resp.Close()

	audio, err := readAudio(resp)
	if err != nil {
		return nil, fmt.Errorf("voice: read openai audio: %w", err)
	}
	return audio, nil
}
