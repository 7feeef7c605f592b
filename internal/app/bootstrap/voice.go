package bootstrap

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/chat-relay/internal/config"
	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-relay/internal/voice"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

// BuildVoicePipeline returns the spoken-reply pipeline, or nil when TTS is disabled.
func BuildVoicePipeline(cfg *appconfig.Config, oa *openai.Client, messenger messaging.ReplyMessenger, m *metrics.RelayMetrics, logger *logging.Logger) (*voice.Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if !cfg.TTSEnabled {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	registry := voice.NewRegistry(voice.DefaultMode)
	if strings.TrimSpace(cfg.SpeechAPIURL) != "" {
		registry.Register(voice.ModeSpeechAPI, voice.NewSpeechAPIClient(cfg.SpeechAPIURL, cfg.SpeechAPIToken))
	}
	if oa != nil {
		registry.Register(voice.ModeOpenAI, voice.NewOpenAISpeech(oa, cfg.OpenAITTSModel, cfg.OpenAITTSVoice))
	}

	mode := voice.ParseMode(cfg.TTSMode)
	synth := registry.Select(mode)
	if synth == nil {
		return nil, fmt.Errorf("bootstrap: TTS enabled but no backend configured for mode %q", mode)
	}
	logger.Info("voice replies enabled", "mode", string(mode), "backend", synth.Name())

	return voice.NewPipeline(registry, mode, messenger, logger).
		WithTempDir(cfg.AudioTempDir).
		WithMetrics(m), nil
}
