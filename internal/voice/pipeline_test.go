package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/chat-relay/internal/messaging"
)

type stubSynth struct {
	name  string
	audio []byte
	err   error
	calls int
}

func (s *stubSynth) Name() string { return s.name }

func (s *stubSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

// fileCheckingMessenger records replies and whether the staged file existed at send time.
type fileCheckingMessenger struct {
	dir         string
	err         error
	replies     []messaging.OutboundReply
	existedPath string
}

func (m *fileCheckingMessenger) SendReply(ctx context.Context, reply messaging.OutboundReply) error {
	m.replies = append(m.replies, reply)
	if reply.Media != nil {
		path := filepath.Join(m.dir, reply.Media.Filename)
		if _, err := os.Stat(path); err == nil {
			m.existedPath = path
		}
	}
	return m.err
}

var testInbound = messaging.Inbound{ID: "msg-1", From: "alice", To: "bot", Body: "hi"}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestPipeline_SendsVoiceNoteAndRemovesFile(t *testing.T) {
	dir := t.TempDir()
	synth := &stubSynth{name: "SpeechAPI", audio: []byte("OggS-fake-audio")}
	messenger := &fileCheckingMessenger{dir: dir}
	p := NewPipeline(NewRegistry(ModeSpeechAPI).Register(ModeSpeechAPI, synth), ModeSpeechAPI, messenger, nil).
		WithTempDir(dir)
	p.newName = func() string { return "fixed" }

	require.NoError(t, p.SynthesizeAndReply(context.Background(), testInbound, "Hello there"))

	require.Len(t, messenger.replies, 1)
	reply := messenger.replies[0]
	assert.Equal(t, "alice", reply.To)
	assert.Equal(t, "msg-1", reply.ReplyTo)
	require.NotNil(t, reply.Media)
	assert.Equal(t, messaging.MimeTypeOpus, reply.Media.MimeType)
	assert.Equal(t, "fixed.opus", reply.Media.Filename)
	decoded, err := base64.StdEncoding.DecodeString(reply.Media.Data)
	require.NoError(t, err)
	assert.Equal(t, "OggS-fake-audio", string(decoded))

	assert.Equal(t, filepath.Join(dir, "fixed.opus"), messenger.existedPath, "file should exist while sending")
	assert.Empty(t, dirEntries(t, dir), "file should be removed after sending")
}

func TestPipeline_EmptyAudioSendsNoticeWithoutFile(t *testing.T) {
	dir := t.TempDir()
	messenger := &fileCheckingMessenger{dir: dir}
	p := NewPipeline(NewRegistry(ModeSpeechAPI).Register(ModeSpeechAPI, &stubSynth{name: "SpeechAPI"}), ModeSpeechAPI, messenger, nil).
		WithTempDir(dir)

	require.NoError(t, p.SynthesizeAndReply(context.Background(), testInbound, "Hello"))

	require.Len(t, messenger.replies, 1)
	assert.Nil(t, messenger.replies[0].Media)
	assert.Equal(t, "[SpeechAPI] couldn't generate audio, please contact the administrator.", messenger.replies[0].Body)
	assert.Empty(t, messenger.existedPath)
	assert.Empty(t, dirEntries(t, dir))
}

func TestPipeline_SendFailureRemovesFileAndPropagates(t *testing.T) {
	dir := t.TempDir()
	sendErr := errors.New("bridge offline")
	messenger := &fileCheckingMessenger{dir: dir, err: sendErr}
	p := NewPipeline(NewRegistry(ModeOpenAI).Register(ModeOpenAI, &stubSynth{name: "OpenAI", audio: []byte("audio")}), ModeOpenAI, messenger, nil).
		WithTempDir(dir)

	err := p.SynthesizeAndReply(context.Background(), testInbound, "Hello")
	require.ErrorIs(t, err, sendErr)
	assert.NotEmpty(t, messenger.existedPath)
	assert.Empty(t, dirEntries(t, dir))
}

func TestPipeline_SynthesisErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	synthErr := errors.New("speech backend down")
	messenger := &fileCheckingMessenger{dir: dir}
	p := NewPipeline(NewRegistry(ModeSpeechAPI).Register(ModeSpeechAPI, &stubSynth{name: "SpeechAPI", err: synthErr}), ModeSpeechAPI, messenger, nil).
		WithTempDir(dir)

	err := p.SynthesizeAndReply(context.Background(), testInbound, "Hello")
	require.ErrorIs(t, err, synthErr)
	assert.Empty(t, messenger.replies)
	assert.Empty(t, dirEntries(t, dir))
}

func TestPipeline_StagingFailureSendsNothing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	messenger := &fileCheckingMessenger{dir: missing}
	p := NewPipeline(NewRegistry(ModeSpeechAPI).Register(ModeSpeechAPI, &stubSynth{name: "SpeechAPI", audio: []byte("a")}), ModeSpeechAPI, messenger, nil).
		WithTempDir(missing)

	err := p.SynthesizeAndReply(context.Background(), testInbound, "Hello")
	require.Error(t, err)
	assert.Empty(t, messenger.replies)
}

func TestPipeline_NoSynthesizer(t *testing.T) {
	p := NewPipeline(NewRegistry(ModeSpeechAPI), ModeOpenAI, &fileCheckingMessenger{}, nil)
	assert.Error(t, p.SynthesizeAndReply(context.Background(), testInbound, "Hello"))
}
