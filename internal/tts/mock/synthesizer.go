package mock

import (
	"context"

	"github.com/storycast/storycast/internal/tts"
	"github.com/storycast/storycast/pkg/models"
)

// Synthesizer satisfies models.Synthesizer for testing.
type Synthesizer struct {
	Name_          string
	SynthesizeFunc func(ctx context.Context, req models.SpeechRequest) (models.SpeechResult, error)
}

func (m *Synthesizer) Name() string {
	if m.Name_ == "" {
		return "mock"
	}
	return m.Name_
}

func (m *Synthesizer) Synthesize(ctx context.Context, req models.SpeechRequest) (models.SpeechResult, error) {
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}
	return models.SpeechResult{
		Audio:      []byte("mock-audio"),
		Format:     models.AudioFormatMP3,
		SampleRate: 24000,
	}, nil
}

// NewSynthesizer returns a Synthesizer that answers every request with a
// small fixed payload.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{Name_: "mock"}
}

// NewFailing returns a Synthesizer that always returns the given error.
func NewFailing(err error) *Synthesizer {
	return &Synthesizer{
		Name_: "mock-failing",
		SynthesizeFunc: func(_ context.Context, _ models.SpeechRequest) (models.SpeechResult, error) {
			return models.SpeechResult{}, err
		},
	}
}

// NewEmpty returns a Synthesizer that reports success with no audio bytes,
// which callers must treat as a failure.
func NewEmpty() *Synthesizer {
	return &Synthesizer{
		Name_: "mock-empty",
		SynthesizeFunc: func(_ context.Context, _ models.SpeechRequest) (models.SpeechResult, error) {
			return models.SpeechResult{}, tts.ErrEmptyAudio
		},
	}
}

// Compile-time check that Synthesizer implements models.Synthesizer.
var _ models.Synthesizer = (*Synthesizer)(nil)
