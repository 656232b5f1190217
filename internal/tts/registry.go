package tts

import (
	"fmt"

	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

// Registry holds one Synthesizer per supported provider. Built once at server
// startup; voice resolution picks from here per utterance.
type Registry struct {
	providers map[string]models.Synthesizer
}

// NewRegistry constructs all providers from config. Providers with no
// credential are still registered; they fail fast on first use so that a
// half-configured deployment can serve the providers it has keys for.
func NewRegistry(cfg config.TTSConfig) *Registry {
	return &Registry{
		providers: map[string]models.Synthesizer{
			models.ProviderGoogle:     NewGoogleProvider(cfg.Google, cfg.RequestTimeout),
			models.ProviderElevenLabs: NewElevenLabsProvider(cfg.ElevenLabs, cfg.RequestTimeout),
			models.ProviderFish:       NewFishProvider(cfg.Fish, cfg.RequestTimeout),
		},
	}
}

// NewRegistryWithProviders builds a registry from explicit providers, keyed
// by Name(). Used by tests to inject mocks.
func NewRegistryWithProviders(providers ...models.Synthesizer) *Registry {
	m := make(map[string]models.Synthesizer, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// ForProvider returns the Synthesizer registered under name.
func (r *Registry) ForProvider(name string) (models.Synthesizer, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// DefaultSampleRate reports the rate a provider synthesizes at when a request
// leaves SampleRate zero.
func DefaultSampleRate(provider string) int {
	switch provider {
	case models.ProviderElevenLabs:
		return elevenLabsDefaultSampleRate
	case models.ProviderFish:
		return fishDefaultSampleRate
	default:
		return googleDefaultSampleRate
	}
}
