package bootstrap

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/chat-relay/internal/config"
	"github.com/wolfman30/chat-relay/internal/conversation"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

const (
	providerOpenAI  = "openai"
	providerBedrock = "bedrock"
	providerGemini  = "gemini"
)

// BuildConversationService wires the LLM-backed conversation backend from config.
// Transcripts live in Redis when a client is given, otherwise in memory.
func BuildConversationService(ctx context.Context, cfg *appconfig.Config, oa *openai.Client, redisClient *redis.Client, logger *logging.Logger) (*conversation.Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	llm, model, err := BuildLLMClient(ctx, cfg, oa, logger)
	if err != nil {
		return nil, err
	}

	var history conversation.HistoryStore
	if redisClient != nil {
		history = conversation.NewRedisHistoryStore(redisClient, cfg.HistoryTTL, nil)
		logger.Info("conversation history stored in redis", "ttl", cfg.HistoryTTL.String())
	} else {
		history = conversation.NewMemoryHistoryStore(cfg.HistoryTTL)
		logger.Warn("no redis configured; conversation history kept in memory")
	}

	logger.Info("using LLM conversation service", "provider", cfg.LLMProvider, "model", model)
	return conversation.NewService(llm, history, model, logger,
		conversation.WithMaxHistory(cfg.MaxHistoryMessages),
	), nil
}

// BuildLLMClient returns the configured completion client and the model it uses.
// When LLM_FALLBACK_PROVIDER names a different provider, failures are retried once there.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, oa *openai.Client, logger *logging.Logger) (conversation.LLMClient, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	primaryName := strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if primaryName == "" {
		primaryName = providerOpenAI
	}
	primary, model, err := buildProvider(ctx, primaryName, cfg, oa)
	if err != nil {
		return nil, "", err
	}

	fallbackName := strings.ToLower(strings.TrimSpace(cfg.LLMFallbackProvider))
	if fallbackName == "" || fallbackName == primaryName {
		return primary, model, nil
	}
	fallback, fallbackModel, err := buildProvider(ctx, fallbackName, cfg, oa)
	if err != nil {
		logger.Warn("fallback LLM unavailable; continuing without it", "provider", fallbackName, "error", err)
		return primary, model, nil
	}
	logger.Info("LLM fallback enabled", "primary", primaryName, "fallback", fallbackName)
	return conversation.NewFallbackLLMClient(
		primaryName, conversation.PinModel(primary, model),
		fallbackName, conversation.PinModel(fallback, fallbackModel),
		logger,
	), model, nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, oa *openai.Client) (conversation.LLMClient, string, error) {
	switch name {
	case providerOpenAI:
		if oa == nil {
			return nil, "", fmt.Errorf("bootstrap: OPENAI_API_KEY is required for the openai provider")
		}
		return conversation.NewOpenAILLMClient(oa), cfg.OpenAIModel, nil
	case providerBedrock:
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			return nil, "", fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for the bedrock provider")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, "", fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)), model, nil
	case providerGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, "", fmt.Errorf("bootstrap: GEMINI_API_KEY is required for the gemini provider")
		}
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, "", err
		}
		model := strings.TrimSpace(cfg.GeminiModel)
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return client, model, nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}
