package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

const (
	elevenLabsBaseURL           = "https://api.elevenlabs.io"
	elevenLabsModelID           = "eleven_multilingual_v2"
	elevenLabsDefaultSampleRate = 24000
)

// ElevenLabsProvider synthesizes speech through the ElevenLabs voice-scoped
// endpoint. Unlike Google, the audio comes back as the raw response body.
type ElevenLabsProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewElevenLabsProvider(cfg config.ElevenLabsConfig, timeout time.Duration) *ElevenLabsProvider {
	return NewElevenLabsProviderWithBaseURL(cfg, timeout, elevenLabsBaseURL)
}

// NewElevenLabsProviderWithBaseURL exists so tests can point the provider at
// a fake server.
func NewElevenLabsProviderWithBaseURL(cfg config.ElevenLabsConfig, timeout time.Duration, baseURL string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *ElevenLabsProvider) Name() string { return models.ProviderElevenLabs }

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, req models.SpeechRequest) (models.SpeechResult, error) {
	if p.apiKey == "" {
		return models.SpeechResult{}, fmt.Errorf("%w: elevenlabs", ErrMissingCredential)
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = elevenLabsDefaultSampleRate
	}
	format := req.Format
	if format == "" {
		format = models.AudioFormatMP3
	}

	body := elevenLabsRequest{
		Text:    req.Text,
		ModelID: elevenLabsModelID,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("encoding elevenlabs request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		p.baseURL, url.PathEscape(req.VoiceID), elevenLabsOutputFormat(format, sampleRate))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return models.SpeechResult{}, NewProviderError(models.ProviderElevenLabs, resp.StatusCode, respBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("reading elevenlabs response: %w", err)
	}
	if len(audio) == 0 {
		return models.SpeechResult{}, fmt.Errorf("%w: elevenlabs", ErrEmptyAudio)
	}

	return models.SpeechResult{Audio: audio, Format: format, SampleRate: sampleRate}, nil
}

// elevenLabsOutputFormat maps format+rate onto the provider's output_format
// parameter, e.g. "mp3_24000_128" or "pcm_24000".
func elevenLabsOutputFormat(format string, sampleRate int) string {
	if format == models.AudioFormatPCM {
		return fmt.Sprintf("pcm_%d", sampleRate)
	}
	return fmt.Sprintf("mp3_%d_128", sampleRate)
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Compile-time check that ElevenLabsProvider implements Synthesizer.
var _ models.Synthesizer = (*ElevenLabsProvider)(nil)
