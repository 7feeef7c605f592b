package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/chat-relay/internal/messaging"
	"github.com/wolfman30/chat-relay/internal/observability/metrics"
	"github.com/wolfman30/chat-relay/pkg/logging"
)

var tracer = otel.Tracer("relay.internal.voice")

// Pipeline synthesizes a spoken version of an answer and sends it as a voice note.
type Pipeline struct {
	registry  *Registry
	mode      Mode
	messenger messaging.ReplyMessenger
	tempDir   string
	metrics   *metrics.RelayMetrics
	logger    *logging.Logger
	newName   func() string
}

// NewPipeline builds a voice pipeline that synthesizes with the registry's backend for mode
// and replies through messenger. It panics when registry or messenger is nil.
func NewPipeline(registry *Registry, mode Mode, messenger messaging.ReplyMessenger, logger *logging.Logger) *Pipeline {
	if registry == nil {
		panic("voice: registry cannot be nil")
	}
	if messenger == nil {
		panic("voice: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		registry:  registry,
		mode:      mode,
		messenger: messenger,
		tempDir:   os.TempDir(),
		logger:    logger.Component("tts"),
		newName:   uuid.NewString,
	}
}

// WithTempDir sets the directory audio files are staged in before sending.
func (p *Pipeline) WithTempDir(dir string) *Pipeline {
	if dir != "" {
		p.tempDir = dir
	}
	return p
}

// WithMetrics records synthesis latency and voice reply outcomes.
func (p *Pipeline) WithMetrics(m *metrics.RelayMetrics) *Pipeline {
	p.metrics = m
	return p
}

// SynthesizeAndReply voices text and replies to msg with the audio. When the backend
// produces no audio, the sender gets a short notice instead. The staged audio file is
// removed before returning, whatever the outcome.
func (p *Pipeline) SynthesizeAndReply(ctx context.Context, msg messaging.Inbound, text string) error {
	synth := p.registry.Select(p.mode)
	if synth == nil {
		return fmt.Errorf("voice: no synthesizer registered for mode %q", p.mode)
	}

	ctx, span := tracer.Start(ctx, "voice.synthesize_and_reply")
	defer span.End()
	span.SetAttributes(attribute.String("relay.tts_backend", synth.Name()))

	start := time.Now()
	audio, err := synth.Synthesize(ctx, text)
	p.metrics.ObserveBackendLatency("tts", err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("voice: %s synthesis: %w", synth.Name(), err)
	}

	if len(audio) == 0 {
		p.logger.Warn("no audio produced", "backend", synth.Name(), "to", msg.From)
		notice := fmt.Sprintf("[%s] couldn't generate audio, please contact the administrator.", synth.Name())
		err := p.messenger.SendReply(ctx, messaging.ReplyTo(msg, notice))
		p.metrics.ObserveReply("notice", err)
		if err != nil {
			return fmt.Errorf("voice: send notice: %w", err)
		}
		return nil
	}

	path := filepath.Join(p.tempDir, p.newName()+".opus")
	defer p.remove(path)

	if err := os.WriteFile(path, audio, 0o600); err != nil {
		span.RecordError(err)
		return fmt.Errorf("voice: stage audio: %w", err)
	}
	staged, err := os.ReadFile(path)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("voice: read staged audio: %w", err)
	}

	media := messaging.NewMedia(messaging.MimeTypeOpus, staged, filepath.Base(path))
	err = p.messenger.SendReply(ctx, messaging.MediaReplyTo(msg, media))
	p.metrics.ObserveReply("voice", err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("voice: send audio: %w", err)
	}
	p.logger.Debug("voice reply sent", "to", msg.From, "bytes", len(staged))
	return nil
}

func (p *Pipeline) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("failed to remove staged audio", "path", path, "error", err)
	}
}
