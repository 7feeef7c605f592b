// Package relay forwards inbound prompts to the conversation backend and replies with its answer.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/chat-relay/internal/conversation"
	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/internal/moderation"
	"github.com/wolfman30/chat-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-relay/internal/session"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

var tracer = otel.Tracer("relay.internal.relay")

// ErrorReplyPrefix starts every apology sent when an exchange fails.
const ErrorReplyPrefix = "An error occured, please contact the administrator."

// VoiceReplier sends a spoken version of an answer.
type VoiceReplier interface {
	SynthesizeAndReply(ctx context.Context, msg messaging.Inbound, text string) error
}

// Pipeline runs one prompt/answer exchange per inbound message.
type Pipeline struct {
	sessions  session.Store
	gate      moderation.Gate
	client    conversation.Client
	messenger messaging.ReplyMessenger
	voice     VoiceReplier
	locks     *session.SenderLocks

	prePrompt string
	prefix    string
	timeout   time.Duration

	metrics *metrics.RelayMetrics
	logger  *logging.Logger
	newSeed func() string
}

// NewPipeline builds the reply pipeline. A nil gate disables moderation; nil sessions,
// client or messenger panic.
func NewPipeline(sessions session.Store, gate moderation.Gate, client conversation.Client, messenger messaging.ReplyMessenger, logger *logging.Logger) *Pipeline {
	if sessions == nil {
		panic("relay: session store cannot be nil")
	}
	if client == nil {
		panic("relay: conversation client cannot be nil")
	}
	if messenger == nil {
		panic("relay: messenger cannot be nil")
	}
	if gate == nil {
		gate = moderation.Disabled{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		sessions:  sessions,
		gate:      gate,
		client:    client,
		messenger: messenger,
		logger:    logger.Component("gpt"),
		newSeed:   uuid.NewString,
	}
}

// WithPrePrompt sets the text prepended to the first prompt of every new conversation.
func (p *Pipeline) WithPrePrompt(prePrompt string) *Pipeline {
	p.prePrompt = prePrompt
	return p
}

// WithPrefix restricts handling to messages starting with prefix (e.g. "!gpt").
func (p *Pipeline) WithPrefix(prefix string) *Pipeline {
	p.prefix = strings.TrimSpace(prefix)
	return p
}

// WithBackendTimeout bounds each moderation and conversation call. Zero disables the bound.
func (p *Pipeline) WithBackendTimeout(d time.Duration) *Pipeline {
	p.timeout = d
	return p
}

// WithSenderLocks serializes exchanges from the same sender.
func (p *Pipeline) WithSenderLocks(locks *session.SenderLocks) *Pipeline {
	p.locks = locks
	return p
}

// WithVoice enables spoken replies after each text answer.
func (p *Pipeline) WithVoice(voice VoiceReplier) *Pipeline {
	p.voice = voice
	return p
}

// WithMetrics records inbound outcomes, reply sends and backend latency.
func (p *Pipeline) WithMetrics(m *metrics.RelayMetrics) *Pipeline {
	p.metrics = m
	return p
}

var _ messaging.InboundHandler = (*Pipeline)(nil)

// HandleMessage extracts the prompt from msg and runs the exchange. Messages without the
// configured prefix and empty prompts are ignored.
func (p *Pipeline) HandleMessage(ctx context.Context, msg messaging.Inbound) {
	prompt, ok := p.extractPrompt(msg.Body)
	if !ok {
		p.metrics.ObserveInbound(metrics.OutcomeIgnored)
		return
	}
	outcome, _ := p.reply(ctx, msg, prompt)
	p.metrics.ObserveInbound(outcome)
}

// Reply runs one exchange for prompt on behalf of msg's sender. Failures are reported to
// the sender as an apology and also returned.
func (p *Pipeline) Reply(ctx context.Context, msg messaging.Inbound, prompt string) error {
	_, err := p.reply(ctx, msg, prompt)
	return err
}

func (p *Pipeline) extractPrompt(body string) (string, bool) {
	prompt := strings.TrimSpace(body)
	if p.prefix != "" {
		if !strings.HasPrefix(prompt, p.prefix) {
			return "", false
		}
		prompt = strings.TrimSpace(strings.TrimPrefix(prompt, p.prefix))
	}
	return prompt, prompt != ""
}

func (p *Pipeline) reply(ctx context.Context, msg messaging.Inbound, prompt string) (string, error) {
	sender := msg.From
	if p.locks != nil {
		unlock := p.locks.Lock(sender)
		defer unlock()
	}

	ctx, span := tracer.Start(ctx, "relay.reply")
	defer span.End()

	conversationID, continuing := p.sessions.Get(ctx, sender)
	span.SetAttributes(attribute.Bool("relay.continuing", continuing))
	p.logger.Info("received prompt", "from", sender, "continuing", continuing)

	verdict, err := p.moderate(ctx, prompt)
	if err != nil {
		return p.fail(ctx, msg, err)
	}
	if !verdict.Allowed {
		p.logger.Info("prompt rejected by moderation", "from", sender)
		span.SetAttributes(attribute.Bool("relay.rejected", true))
		sendErr := p.messenger.SendReply(ctx, messaging.ReplyTo(msg, verdict.Reason))
		p.metrics.ObserveReply("moderation", sendErr)
		if sendErr != nil {
			p.logger.Warn("failed to deliver moderation notice", "from", sender, "error", sendErr)
		}
		return metrics.OutcomeRejected, nil
	}

	text := prompt
	opts := conversation.SendOptions{ConversationID: conversationID}
	if !continuing {
		text = composeFirstPrompt(p.prePrompt, prompt)
		opts.ConversationID = p.newSeed()
	}

	start := time.Now()
	answer, err := p.converse(ctx, text, opts)
	if err != nil {
		return p.fail(ctx, msg, err)
	}

	p.sessions.Set(ctx, sender, answer.ConversationID)
	if !continuing {
		p.logger.Info("new conversation", "from", sender, "conversation_id", answer.ConversationID)
	}
	p.logger.Info("answer ready", "from", sender, "conversation_id", answer.ConversationID, "elapsed_ms", time.Since(start).Milliseconds())

	err = p.messenger.SendReply(ctx, messaging.ReplyTo(msg, answer.Text))
	p.metrics.ObserveReply("text", err)
	if err != nil {
		return p.fail(ctx, msg, fmt.Errorf("relay: send reply: %w", err))
	}

	if p.voice != nil {
		if err := p.voice.SynthesizeAndReply(ctx, msg, answer.Text); err != nil {
			return p.fail(ctx, msg, err)
		}
	}
	return metrics.OutcomeReplied, nil
}

func (p *Pipeline) moderate(ctx context.Context, prompt string) (moderation.Verdict, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	verdict, err := p.gate.Check(ctx, prompt)
	p.metrics.ObserveBackendLatency("moderation", err, time.Since(start).Seconds())
	return verdict, err
}

func (p *Pipeline) converse(ctx context.Context, text string, opts conversation.SendOptions) (*conversation.Reply, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	answer, err := p.client.SendMessage(ctx, text, opts)
	if err == nil && answer == nil {
		err = errors.New("relay: conversation backend returned no reply")
	}
	p.metrics.ObserveBackendLatency("conversation", err, time.Since(start).Seconds())
	return answer, err
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// fail logs err and sends the sender a single apology carrying the error message.
func (p *Pipeline) fail(ctx context.Context, msg messaging.Inbound, err error) (string, error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)

	p.logger.Error("exchange failed", "from", msg.From, "error", err)
	apology := fmt.Sprintf("%s (%s)", ErrorReplyPrefix, err.Error())
	sendErr := p.messenger.SendReply(ctx, messaging.ReplyTo(msg, apology))
	p.metrics.ObserveReply("error", sendErr)
	if sendErr != nil {
		p.logger.Warn("failed to deliver error reply", "from", msg.From, "error", sendErr)
	}
	return metrics.OutcomeFailed, err
}

// composeFirstPrompt builds the text that opens a new conversation.
func composeFirstPrompt(prePrompt, prompt string) string {
	if strings.TrimSpace(prePrompt) == "" {
		return prompt
	}
	return prePrompt + "\n\n" + prompt + "\n\n"
}
