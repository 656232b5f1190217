package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

func newElevenLabsTestProvider(t *testing.T, baseURL string) *ElevenLabsProvider {
	t.Helper()
	return NewElevenLabsProviderWithBaseURL(config.ElevenLabsConfig{APIKey: "test-key"}, 5*time.Second, baseURL)
}

func TestElevenLabsSynthesize_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("unexpected api key header: %s", r.Header.Get("xi-api-key"))
		}
		if r.URL.Query().Get("output_format") != "mp3_24000_128" {
			t.Errorf("unexpected output_format: %s", r.URL.Query().Get("output_format"))
		}
		w.Write([]byte("raw-mp3-bytes"))
	}))
	defer ts.Close()

	p := newElevenLabsTestProvider(t, ts.URL)
	result, err := p.Synthesize(context.Background(), models.SpeechRequest{
		Text:    "hello there",
		VoiceID: "voice-123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Audio) != "raw-mp3-bytes" {
		t.Errorf("unexpected audio: %q", result.Audio)
	}
	if result.SampleRate != 24000 {
		t.Errorf("expected default sample rate 24000, got %d", result.SampleRate)
	}
}

func TestElevenLabsSynthesize_MissingCredential(t *testing.T) {
	p := NewElevenLabsProviderWithBaseURL(config.ElevenLabsConfig{}, 5*time.Second, "http://127.0.0.1:1")

	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got: %v", err)
	}
}

func TestElevenLabsSynthesize_HTTPErrorTruncatesBody(t *testing.T) {
	longBody := strings.Repeat("x", 2048)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(longBody))
	}))
	defer ts.Close()

	p := newElevenLabsTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got: %v", err)
	}
	if pe.StatusCode != http.StatusUnauthorized {
		t.Errorf("unexpected status: %d", pe.StatusCode)
	}
	if len(pe.Body) != maxBodyInError {
		t.Errorf("expected body truncated to %d bytes, got %d", maxBodyInError, len(pe.Body))
	}
}

func TestElevenLabsSynthesize_EmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := newElevenLabsTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got: %v", err)
	}
}

func TestElevenLabsOutputFormat(t *testing.T) {
	if got := elevenLabsOutputFormat(models.AudioFormatMP3, 44100); got != "mp3_44100_128" {
		t.Errorf("unexpected mp3 format: %s", got)
	}
	if got := elevenLabsOutputFormat(models.AudioFormatPCM, 24000); got != "pcm_24000" {
		t.Errorf("unexpected pcm format: %s", got)
	}
}
