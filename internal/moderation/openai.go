package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/chat-relay/pkg/logging"
)

var moderationTracer = otel.Tracer("relay.internal.moderation")

type moderationClient interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// OpenAIModerator rejects prompts the OpenAI moderation endpoint flags in a blacklisted category.
type OpenAIModerator struct {
	client    moderationClient
	model     string
	blacklist map[string]struct{}
	logger    *logging.Logger
}

// NewOpenAIModerator returns a moderator rejecting the given categories (e.g. "hate", "violence/graphic").
func NewOpenAIModerator(client moderationClient, model string, blacklist []string, logger *logging.Logger) *OpenAIModerator {
	if client == nil {
		panic("moderation: openai client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	set := make(map[string]struct{}, len(blacklist))
	for _, category := range blacklist {
		category = strings.ToLower(strings.TrimSpace(category))
		if category != "" {
			set[category] = struct{}{}
		}
	}
	return &OpenAIModerator{
		client:    client,
		model:     model,
		blacklist: set,
		logger:    logger,
	}
}

var _ Gate = (*OpenAIModerator)(nil)

// Check sends prompt to the moderation endpoint.
func (m *OpenAIModerator) Check(ctx context.Context, prompt string) (Verdict, error) {
	ctx, span := moderationTracer.Start(ctx, "moderation.openai")
	defer span.End()

	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{
		Input: prompt,
		Model: m.model,
	})
	if err != nil {
		span.RecordError(err)
		return Verdict{}, fmt.Errorf("moderation: openai request failed: %w", err)
	}

	var flagged []string
	for _, result := range resp.Results {
		if !result.Flagged {
			continue
		}
		categories, err := flaggedCategories(result.Categories)
		if err != nil {
			span.RecordError(err)
			return Verdict{}, err
		}
		for _, category := range categories {
			if _, ok := m.blacklist[category]; ok {
				flagged = append(flagged, category)
			}
		}
	}
	span.SetAttributes(attribute.Int("relay.moderation.flagged", len(flagged)))
	if len(flagged) == 0 {
		return Pass(), nil
	}
	flagged = dedupe(flagged)
	m.logger.Debug("prompt flagged", "categories", flagged)
	return Reject(fmt.Sprintf("Your prompt has been moderated for the following categories: %s", strings.Join(flagged, ", "))), nil
}

// flaggedCategories lists the wire names ("self-harm", "hate/threatening", ...) of the true categories.
func flaggedCategories(categories openai.ResultCategories) ([]string, error) {
	raw, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("moderation: encode categories: %w", err)
	}
	var byName map[string]bool
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("moderation: decode categories: %w", err)
	}
	var out []string
	for name, set := range byName {
		if set {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
