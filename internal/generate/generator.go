package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storycast/storycast/internal/audio"
	"github.com/storycast/storycast/internal/blob"
	"github.com/storycast/storycast/internal/store"
	"github.com/storycast/storycast/internal/tts"
	"github.com/storycast/storycast/internal/voice"
	"github.com/storycast/storycast/pkg/models"
)

// Item is one unit of generation work: an utterance with its voice already
// resolved by the caller.
type Item struct {
	Utterance  models.Utterance
	ProjectID  uuid.UUID
	Resolution voice.Resolution
}

// Outcome reports how one item ended. Generate never returns an error;
// failures land on the audio item row and come back as a message here, so a
// bad item cannot abort a surrounding batch.
type Outcome struct {
	Success      bool
	AudioItemID  uuid.UUID
	ErrorMessage string
}

// Generator runs the synthesize, upload, activate pipeline for a single
// utterance. Safe for concurrent use; the bulk runner calls it from parallel
// batch goroutines.
type Generator struct {
	store       store.Store
	blob        blob.Storage
	registry    *tts.Registry
	floor       time.Duration
	assumedKbps int
}

// NewGenerator creates a Generator. The duration floor differs per call site
// (bulk jobs use a higher floor than single regenerations), so each call site
// constructs its own Generator from config.
func NewGenerator(st store.Store, bl blob.Storage, registry *tts.Registry, floor time.Duration, assumedBitrateKbps int) *Generator {
	return &Generator{
		store:       st,
		blob:        bl,
		registry:    registry,
		floor:       floor,
		assumedKbps: assumedBitrateKbps,
	}
}

// Generate synthesizes audio for one utterance. A placeholder item row is
// inserted first so status pollers see in-flight work; every failure path
// marks that row failed and reports the message in the Outcome. Calling
// Generate twice for the same utterance creates two items; skip logic
// belongs to the caller.
func (g *Generator) Generate(ctx context.Context, item Item) Outcome {
	utt := item.Utterance

	now := time.Now().UTC()
	audioItem := &models.AudioItem{
		ID:          uuid.New(),
		SceneID:     utt.SceneID,
		UtteranceID: utt.ID,
		Provider:    item.Resolution.Provider,
		VoiceID:     item.Resolution.VoiceID,
		Format:      models.AudioFormatMP3,
		SampleRate:  tts.DefaultSampleRate(item.Resolution.Provider),
		SourceText:  utt.Text,
		Status:      models.AudioStatusGenerating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.CreateAudioItem(ctx, audioItem); err != nil {
		return Outcome{ErrorMessage: fmt.Sprintf("creating audio item: %v", err)}
	}

	if err := g.store.SetUtteranceAudio(ctx, utt.ID, audioItem.ID); err != nil {
		return g.fail(ctx, audioItem.ID, fmt.Sprintf("linking utterance: %v", err))
	}

	synth, err := g.registry.ForProvider(item.Resolution.Provider)
	if err != nil {
		return g.fail(ctx, audioItem.ID, err.Error())
	}

	result, err := synth.Synthesize(ctx, models.SpeechRequest{
		Text:    utt.Text,
		VoiceID: item.Resolution.VoiceID,
		Format:  models.AudioFormatMP3,
	})
	if err != nil {
		return g.fail(ctx, audioItem.ID, err.Error())
	}

	key := blob.AudioKey(item.ProjectID, utt.SceneID, audioItem.ID, time.Now().UTC())
	url, err := g.blob.Put(ctx, key, result.Audio, contentTypeFor(result.Format))
	if err != nil {
		return g.fail(ctx, audioItem.ID, fmt.Sprintf("uploading audio: %v", err))
	}

	d := audio.EstimateDuration(result.Audio, result.Format, result.SampleRate, audio.EstimateOptions{
		Floor:              g.floor,
		AssumedBitrateKbps: g.assumedKbps,
	})
	durationMs := int(d.Milliseconds())

	if err := g.store.MarkAudioCompleted(ctx, audioItem.ID, key, url, durationMs); err != nil {
		return g.fail(ctx, audioItem.ID, fmt.Sprintf("completing audio item: %v", err))
	}

	// Best-effort: the item is already completed and active.
	if err := g.store.SetUtteranceDuration(ctx, utt.ID, durationMs); err != nil {
		slog.Warn("updating utterance duration", "error", err, "utterance_id", utt.ID)
	}

	return Outcome{Success: true, AudioItemID: audioItem.ID}
}

// fail marks the item failed and shapes the failure outcome. The mark itself
// is best-effort; the original message survives either way.
func (g *Generator) fail(ctx context.Context, itemID uuid.UUID, message string) Outcome {
	if err := g.store.MarkAudioFailed(ctx, itemID, message); err != nil {
		slog.Error("marking audio item failed", "error", err, "audio_item_id", itemID)
	}
	return Outcome{AudioItemID: itemID, ErrorMessage: message}
}

func contentTypeFor(format string) string {
	if format == models.AudioFormatPCM {
		return "application/octet-stream"
	}
	return "audio/mpeg"
}

// ShouldSkip reports whether an utterance with the given latest audio status
// needs no new generation. Only a completed item short-circuits; failed and
// in-flight items are retried. force overrides the check entirely.
func ShouldSkip(latestStatus string, force bool) bool {
	if force {
		return false
	}
	return latestStatus == models.AudioStatusCompleted
}
