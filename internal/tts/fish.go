package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

const (
	fishBaseURL           = "https://api.fish.audio"
	fishDefaultSampleRate = 44100
)

// FishProvider synthesizes speech through the Fish Audio TTS endpoint. Fish
// only renders at 32000 or 44100 Hz; any other requested rate snaps to the
// default.
type FishProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewFishProvider(cfg config.FishConfig, timeout time.Duration) *FishProvider {
	return NewFishProviderWithBaseURL(cfg, timeout, fishBaseURL)
}

// NewFishProviderWithBaseURL exists so tests can point the provider at a
// fake server.
func NewFishProviderWithBaseURL(cfg config.FishConfig, timeout time.Duration, baseURL string) *FishProvider {
	return &FishProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *FishProvider) Name() string { return models.ProviderFish }

func (p *FishProvider) Synthesize(ctx context.Context, req models.SpeechRequest) (models.SpeechResult, error) {
	if p.apiKey == "" {
		return models.SpeechResult{}, fmt.Errorf("%w: fish", ErrMissingCredential)
	}

	sampleRate := fishSampleRate(req.SampleRate)
	format := req.Format
	if format == "" {
		format = models.AudioFormatMP3
	}

	body := fishRequest{
		Text:        req.Text,
		ReferenceID: req.VoiceID,
		Format:      format,
		SampleRate:  sampleRate,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("encoding fish request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/tts", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("fish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return models.SpeechResult{}, NewProviderError(models.ProviderFish, resp.StatusCode, respBody)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("reading fish response: %w", err)
	}
	if len(audio) == 0 {
		return models.SpeechResult{}, fmt.Errorf("%w: fish", ErrEmptyAudio)
	}

	return models.SpeechResult{Audio: audio, Format: format, SampleRate: sampleRate}, nil
}

// fishSampleRate clamps to the rates Fish accepts.
func fishSampleRate(requested int) int {
	switch requested {
	case 32000, 44100:
		return requested
	default:
		return fishDefaultSampleRate
	}
}

type fishRequest struct {
	Text        string `json:"text"`
	ReferenceID string `json:"reference_id"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sample_rate"`
}

// Compile-time check that FishProvider implements Synthesizer.
var _ models.Synthesizer = (*FishProvider)(nil)
