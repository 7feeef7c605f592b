package bootstrap

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/chat-relay/internal/config"
	"github.com/wolfman30/chat-relay/internal/moderation"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

// BuildModerationGate combines the enabled prompt checks. With none enabled every prompt passes.
func BuildModerationGate(cfg *appconfig.Config, oa *openai.Client, logger *logging.Logger) (moderation.Gate, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var gates []moderation.Gate
	if cfg.PromptGuardEnabled {
		gates = append(gates, moderation.PromptGuard{})
		logger.Info("prompt injection guard enabled")
	}
	if cfg.PromptModerationEnabled {
		if oa == nil {
			return nil, fmt.Errorf("bootstrap: OPENAI_API_KEY is required for prompt moderation")
		}
		gates = append(gates, moderation.NewOpenAIModerator(oa, "", cfg.PromptModerationBlacklistedCategories, logger))
		logger.Info("prompt moderation enabled", "categories", cfg.PromptModerationBlacklistedCategories)
	}
	return moderation.Combine(gates...), nil
}
