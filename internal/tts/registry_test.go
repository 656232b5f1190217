package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

type stubSynthesizer struct {
	name string
}

func (s *stubSynthesizer) Name() string { return s.name }

func (s *stubSynthesizer) Synthesize(_ context.Context, _ models.SpeechRequest) (models.SpeechResult, error) {
	return models.SpeechResult{Audio: []byte(s.name)}, nil
}

func TestRegistry_AllProvidersRegistered(t *testing.T) {
	r := NewRegistry(config.TTSConfig{RequestTimeout: 5 * time.Second})

	for _, name := range []string{models.ProviderGoogle, models.ProviderElevenLabs, models.ProviderFish} {
		p, err := r.ForProvider(name)
		if err != nil {
			t.Fatalf("ForProvider(%q): %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("provider registered under %q reports name %q", name, p.Name())
		}
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(config.TTSConfig{RequestTimeout: 5 * time.Second})

	_, err := r.ForProvider("espeak")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got: %v", err)
	}
}

func TestRegistry_WithProviders(t *testing.T) {
	r := NewRegistryWithProviders(&stubSynthesizer{name: "google"}, &stubSynthesizer{name: "fish"})

	p, err := r.ForProvider("google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "google" {
		t.Errorf("unexpected name: %s", p.Name())
	}

	if _, err := r.ForProvider("elevenlabs"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider for unregistered provider, got: %v", err)
	}
}
