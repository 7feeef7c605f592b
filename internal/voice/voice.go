// Package voice turns a textual answer into a spoken reply.
package voice

import (
	"context"
	"strings"
	"sync"
)

// Mode selects a speech synthesis backend.
type Mode string

const (
	ModeSpeechAPI Mode = "speech-api"
	ModeOpenAI    Mode = "openai"

	DefaultMode = ModeSpeechAPI
)

// ParseMode normalizes a configured mode name. Unknown names are kept as-is and
// resolved to the default by Registry.Select.
func ParseMode(raw string) Mode {
	mode := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return DefaultMode
	}
	return mode
}

// Synthesizer converts text to Ogg/Opus audio. A nil or empty result means no audio
// could be produced; an error means the backend call failed.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Registry maps modes to synthesizers.
type Registry struct {
	mu          sync.RWMutex
	synths      map[Mode]Synthesizer
	defaultMode Mode
}

// NewRegistry returns an empty registry that falls back to defaultMode.
func NewRegistry(defaultMode Mode) *Registry {
	if defaultMode == "" {
		defaultMode = DefaultMode
	}
	return &Registry{
		synths:      make(map[Mode]Synthesizer),
		defaultMode: defaultMode,
	}
}

// Register installs synth for mode, replacing any previous entry.
func (r *Registry) Register(mode Mode, synth Synthesizer) *Registry {
	if synth == nil {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synths[mode] = synth
	return r
}

// Select returns the synthesizer for mode, or the default mode's synthesizer when mode
// is not registered. It returns nil only if neither is registered.
func (r *Registry) Select(mode Mode) Synthesizer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if synth, ok := r.synths[mode]; ok {
		return synth
	}
	return r.synths[r.defaultMode]
}
