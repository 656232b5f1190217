package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

func newGoogleTestProvider(t *testing.T, baseURL string) *GoogleProvider {
	t.Helper()
	return NewGoogleProviderWithBaseURL(config.GoogleTTSConfig{APIKey: "test-key"}, 5*time.Second, baseURL)
}

func TestGoogleSynthesize_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text:synthesize" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("unexpected key param: %s", r.URL.Query().Get("key"))
		}

		var req googleSynthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Input.Text != "konnichiwa" {
			t.Errorf("unexpected text: %s", req.Input.Text)
		}
		if req.Voice.Name != "ja-JP-Neural2-B" {
			t.Errorf("unexpected voice name: %s", req.Voice.Name)
		}
		if req.Voice.LanguageCode != "ja-JP" {
			t.Errorf("unexpected language code: %s", req.Voice.LanguageCode)
		}
		if req.AudioConfig.AudioEncoding != "MP3" {
			t.Errorf("unexpected encoding: %s", req.AudioConfig.AudioEncoding)
		}
		if req.AudioConfig.SampleRateHertz != 24000 {
			t.Errorf("unexpected sample rate: %d", req.AudioConfig.SampleRateHertz)
		}

		resp := googleSynthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte("fake-mp3-bytes")),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	p := newGoogleTestProvider(t, ts.URL)
	result, err := p.Synthesize(context.Background(), models.SpeechRequest{
		Text:    "konnichiwa",
		VoiceID: "ja-JP-Neural2-B",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Audio) != "fake-mp3-bytes" {
		t.Errorf("unexpected audio: %q", result.Audio)
	}
	if result.SampleRate != 24000 {
		t.Errorf("expected default sample rate 24000, got %d", result.SampleRate)
	}
	if result.Format != models.AudioFormatMP3 {
		t.Errorf("expected mp3 format, got %s", result.Format)
	}
}

func TestGoogleSynthesize_MissingCredential(t *testing.T) {
	// Point at a dead address to prove no request is attempted.
	p := NewGoogleProviderWithBaseURL(config.GoogleTTSConfig{}, 5*time.Second, "http://127.0.0.1:1")

	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got: %v", err)
	}
}

func TestGoogleSynthesize_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"API key invalid"}}`))
	}))
	defer ts.Close()

	p := newGoogleTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if err == nil {
		t.Fatal("expected error for 403 response")
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got: %v", err)
	}
	if pe.Provider != models.ProviderGoogle {
		t.Errorf("unexpected provider: %s", pe.Provider)
	}
	if pe.StatusCode != http.StatusForbidden {
		t.Errorf("unexpected status: %d", pe.StatusCode)
	}
	if pe.Body == "" {
		t.Error("expected body to be captured")
	}
}

func TestGoogleSynthesize_EmptyAudioContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(googleSynthesizeResponse{AudioContent: ""})
	}))
	defer ts.Close()

	p := newGoogleTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got: %v", err)
	}
}

func TestGoogleSynthesize_UndecodableAudioContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(googleSynthesizeResponse{AudioContent: "%%not-base64%%"})
	}))
	defer ts.Close()

	p := newGoogleTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{Text: "hi", VoiceID: "v"})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got: %v", err)
	}
}

func TestGoogleSynthesize_PCMEncoding(t *testing.T) {
	var capturedEncoding string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req googleSynthesizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		capturedEncoding = req.AudioConfig.AudioEncoding
		json.NewEncoder(w).Encode(googleSynthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte("pcm")),
		})
	}))
	defer ts.Close()

	p := newGoogleTestProvider(t, ts.URL)
	_, err := p.Synthesize(context.Background(), models.SpeechRequest{
		Text: "hi", VoiceID: "v", Format: models.AudioFormatPCM,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedEncoding != "LINEAR16" {
		t.Errorf("expected LINEAR16 encoding, got %q", capturedEncoding)
	}
}

func TestLanguageCodeFromVoice(t *testing.T) {
	cases := map[string]string{
		"ja-JP-Neural2-B": "ja-JP",
		"en-US-Wavenet-D": "en-US",
		"de-DE-Standard":  "de-DE",
		"novoice":         "en-US",
		"":                "en-US",
	}
	for voice, want := range cases {
		if got := languageCodeFromVoice(voice); got != want {
			t.Errorf("languageCodeFromVoice(%q) = %q, want %q", voice, got, want)
		}
	}
}
