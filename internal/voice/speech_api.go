package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxAudioBytes = 16 << 20

// ErrAudioTooLarge is returned when a backend answers with more than 16 MiB of audio.
var ErrAudioTooLarge = errors.New("voice: synthesized audio exceeds 16 MiB")

// readAudio reads a backend's audio body, refusing anything over maxAudioBytes
// rather than handing on a truncated Ogg stream.
func readAudio(r io.Reader) ([]byte, error) {
	audio, err := io.ReadAll(io.LimitReader(r, maxAudioBytes+1))
	if err != nil {
		return nil, err
	}
	if len(audio) > maxAudioBytes {
		return nil, ErrAudioTooLarge
	}
	return audio, nil
}

// SpeechAPIClient synthesizes audio through a self-hosted speech HTTP service.
// The service receives {"text": "..."} and answers with the raw Ogg/Opus bytes.
type SpeechAPIClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewSpeechAPIClient builds a client for the speech service at endpoint.
func NewSpeechAPIClient(endpoint, token string) *SpeechAPIClient {
	return &SpeechAPIClient{
		endpoint: strings.TrimSpace(endpoint),
		token:    strings.TrimSpace(token),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func (c *SpeechAPIClient) WithHTTPClient(client *http.Client) *SpeechAPIClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

var _ Synthesizer = (*SpeechAPIClient)(nil)

// Name labels the backend in notices sent to users.
func (c *SpeechAPIClient) Name() string { return "SpeechAPI" }

// Synthesize posts text to the speech service and returns the Ogg/Opus audio it answers with.
func (c *SpeechAPIClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.endpoint == "" {
		return nil, errors.New("voice: speech api url missing")
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("voice: encode speech request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("voice: build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/ogg")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice: speech api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("voice: speech api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	audio, err := readAudio(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voice: read speech audio: %w", err)
	}
	return audio, nil
}
