package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

func newFishTestProvider(t *testing.T, baseURL string) *FishProvider {
	t.Helper()
	return NewFishProviderWithBaseURL(config.FishConfig{APIKey: "test-key"}, 5*time.Second, baseURL)
}

func TestFishSynthesize_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tts" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var req fishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.ReferenceID != "fish-voice-1" {
			t.Errorf("unexpected reference id: %s", req.ReferenceID)
		}
		if req.SampleRate != 32000 {
			t.Errorf("expected requested rate 32000 kept, got %d", req.SampleRate)
		}
		w.Write([]byte("fish-audio-bytes"))
	}))
	defer ts.Close()

	p := newFishTestProvider(t, ts.URL)
	result, err := p.Synthesize(context.Background(), models.SpeechRequest{
		Text:       "hello",
		VoiceID:    "fish-voice-1",
		SampleRate: 32000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Audio) != "fish-audio-bytes" {
		t.Errorf("unexpected audio: %q", result.Audio)
	}
	if result.SampleRate != 32000 {
		t.Errorf("expected sample rate 32000, got %d", result.SampleRate)
	}
}

func TestFishSynthesize_MissingCredential(t *testing.T) {
	p := NewFishProviderWithBaseURL(config.FishConfig{}, 5*time.Second, "http://127.0.0.1:1")

	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got: %v", err)
	}
}

func TestFishSynthesize_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer ts.Close()

	p := newFishTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got: %v", err)
	}
	if pe.Provider != models.ProviderFish {
		t.Errorf("unexpected provider: %s", pe.Provider)
	}
	if pe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("unexpected status: %d", pe.StatusCode)
	}
	if pe.Body != "rate limited" {
		t.Errorf("unexpected body: %q", pe.Body)
	}
}

func TestFishSynthesize_EmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := newFishTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got: %v", err)
	}
}

func TestFishSampleRate(t *testing.T) {
	cases := map[int]int{
		0:     44100,
		24000: 44100,
		32000: 32000,
		44100: 44100,
		48000: 44100,
	}
	for requested, want := range cases {
		if got := fishSampleRate(requested); got != want {
			t.Errorf("fishSampleRate(%d) = %d, want %d", requested, got, want)
		}
	}
}
