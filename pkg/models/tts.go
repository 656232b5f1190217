// Package models contains shared data models used across the Storycast codebase.
package models

import "context"

const (
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"
	ProviderFish       = "fish"
)

const (
	AudioFormatMP3 = "mp3"
	AudioFormatPCM = "pcm"
)

// KnownProvider reports whether name is one of the supported TTS providers.
func KnownProvider(name string) bool {
	switch name {
	case ProviderGoogle, ProviderElevenLabs, ProviderFish:
		return true
	}
	return false
}

// Synthesizer is the core interface all TTS integrations must implement.
// Never call specific providers directly; always inject this interface.
type Synthesizer interface {
	// Synthesize renders Text with the given voice and returns raw audio bytes.
	Synthesize(ctx context.Context, req SpeechRequest) (SpeechResult, error)
	// Name returns the provider identifier (e.g., "google", "elevenlabs").
	Name() string
}

// SpeechRequest is the input to a synthesis call. SampleRate and Format may
// be zero-valued, in which case the provider applies its own defaults.
type SpeechRequest struct {
	Text       string
	VoiceID    string
	SampleRate int
	Format     string
}

// SpeechResult holds the synthesized audio exactly as the provider returned
// it, plus the format and sample rate that were actually used.
type SpeechResult struct {
	Audio      []byte
	Format     string
	SampleRate int
}
