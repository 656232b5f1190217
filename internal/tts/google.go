package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

const (
	googleBaseURL           = "https://texttospeech.googleapis.com"
	googleDefaultSampleRate = 24000
)

// GoogleProvider synthesizes speech through the Cloud Text-to-Speech REST API.
// The response carries base64 audio inside a JSON envelope.
type GoogleProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGoogleProvider(cfg config.GoogleTTSConfig, timeout time.Duration) *GoogleProvider {
	return NewGoogleProviderWithBaseURL(cfg, timeout, googleBaseURL)
}

// NewGoogleProviderWithBaseURL exists so tests can point the provider at a
// fake server.
func NewGoogleProviderWithBaseURL(cfg config.GoogleTTSConfig, timeout time.Duration, baseURL string) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *GoogleProvider) Name() string { return models.ProviderGoogle }

func (p *GoogleProvider) Synthesize(ctx context.Context, req models.SpeechRequest) (models.SpeechResult, error) {
	if p.apiKey == "" {
		return models.SpeechResult{}, fmt.Errorf("%w: google", ErrMissingCredential)
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = googleDefaultSampleRate
	}
	format := req.Format
	if format == "" {
		format = models.AudioFormatMP3
	}

	body := googleSynthesizeRequest{
		Input: googleInput{Text: req.Text},
		Voice: googleVoice{
			LanguageCode: languageCodeFromVoice(req.VoiceID),
			Name:         req.VoiceID,
		},
		AudioConfig: googleAudioConfig{
			AudioEncoding:   googleEncoding(format),
			SampleRateHertz: sampleRate,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("encoding google request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/text:synthesize?key=%s", p.baseURL, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("google request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return models.SpeechResult{}, NewProviderError(models.ProviderGoogle, resp.StatusCode, respBody)
	}

	var synthResp googleSynthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&synthResp); err != nil {
		return models.SpeechResult{}, fmt.Errorf("%w: google response undecodable: %v", ErrEmptyAudio, err)
	}
	if synthResp.AudioContent == "" {
		return models.SpeechResult{}, fmt.Errorf("%w: google", ErrEmptyAudio)
	}

	audio, err := base64.StdEncoding.DecodeString(synthResp.AudioContent)
	if err != nil {
		return models.SpeechResult{}, fmt.Errorf("%w: google audio content undecodable: %v", ErrEmptyAudio, err)
	}
	if len(audio) == 0 {
		return models.SpeechResult{}, fmt.Errorf("%w: google", ErrEmptyAudio)
	}

	return models.SpeechResult{Audio: audio, Format: format, SampleRate: sampleRate}, nil
}

// languageCodeFromVoice derives the BCP-47 language code from a Google voice
// name such as "ja-JP-Neural2-B".
func languageCodeFromVoice(voiceID string) string {
	parts := strings.SplitN(voiceID, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}

func googleEncoding(format string) string {
	if format == models.AudioFormatPCM {
		return "LINEAR16"
	}
	return "MP3"
}

// --- Google API types ---

type googleSynthesizeRequest struct {
	Input       googleInput       `json:"input"`
	Voice       googleVoice       `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

type googleInput struct {
	Text string `json:"text"`
}

type googleVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type googleAudioConfig struct {
	AudioEncoding   string `json:"audioEncoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
}

type googleSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Compile-time check that GoogleProvider implements Synthesizer.
var _ models.Synthesizer = (*GoogleProvider)(nil)
