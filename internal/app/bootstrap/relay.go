package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/chat-relay/internal/config"
	"github.com/wolfman30/chat-relay/internal/conversation"
	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-relay/internal/relay"
	"github.com/wolfman30/chat-relay/internal/session"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

// Relay bundles everything the process entry point needs to serve.
type Relay struct {
	Pipeline     *relay.Pipeline
	Conversation *conversation.Service
	Messenger    messaging.ReplyMessenger
	Bridge       *messaging.BridgeClient
	Redis        *redis.Client
	Provider     string
}

// Close releases connections opened while building the relay.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Conversation != nil {
		errs = append(errs, r.Conversation.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}

// BuildRelay wires the reply pipeline and its collaborators from config.
func BuildRelay(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	relayMetrics := metrics.NewRelayMetrics(reg)
	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	oa := BuildOpenAIClient(cfg)

	convo, err := BuildConversationService(ctx, cfg, oa, redisClient, logger)
	if err != nil {
		return nil, err
	}
	gate, err := BuildModerationGate(cfg, oa, logger)
	if err != nil {
		return nil, err
	}

	messenger, bridge, provider := BuildOutboundMessenger(cfg, relayMetrics, logger)
	logger.Info("reply transport selected", "provider", provider)

	voicePipeline, err := BuildVoicePipeline(cfg, oa, messenger, relayMetrics, logger)
	if err != nil {
		return nil, err
	}

	pipeline := relay.NewPipeline(session.NewMemoryStore(), gate, convo, messenger, logger).
		WithPrePrompt(cfg.PrePrompt).
		WithPrefix(cfg.GPTPrefix).
		WithBackendTimeout(cfg.BackendTimeout).
		WithMetrics(relayMetrics)
	if cfg.SerializeSenders {
		pipeline.WithSenderLocks(session.NewSenderLocks())
	}
	if voicePipeline != nil {
		pipeline.WithVoice(voicePipeline)
	}

	return &Relay{
		Pipeline:     pipeline,
		Conversation: convo,
		Messenger:    messenger,
		Bridge:       bridge,
		Redis:        redisClient,
		Provider:     provider,
	}, nil
}
