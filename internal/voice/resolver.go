package voice

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/storycast/storycast/internal/config"
	"github.com/storycast/storycast/pkg/models"
)

const (
	SourceCharacter      = "character"
	SourceProjectDefault = "project_default"
	SourceFallback       = "fallback"
)

// Resolution names the provider and voice chosen for one utterance, plus
// which priority tier supplied it. Never persisted.
type Resolution struct {
	Provider string
	VoiceID  string
	Source   string
}

// CharacterVoices looks up the configured voice preset for a character.
type CharacterVoices interface {
	GetCharacterVoice(ctx context.Context, projectID uuid.UUID, key string) (string, error)
}

// Resolver picks the voice for an utterance: character preset first, then the
// project's default narration voice, then the configured fallback. Resolution
// never fails; a missing or failed lookup degrades to the next tier.
type Resolver struct {
	voices           CharacterVoices
	fallbackProvider string
	fallbackVoiceID  string
}

func NewResolver(voices CharacterVoices, cfg config.BulkConfig) *Resolver {
	return &Resolver{
		voices:           voices,
		fallbackProvider: cfg.FallbackProvider,
		fallbackVoiceID:  cfg.FallbackVoiceID,
	}
}

// Resolve applies the priority chain. Character voice is only consulted for
// dialogue utterances that reference a character.
func (r *Resolver) Resolve(ctx context.Context, utt models.Utterance, projectID uuid.UUID, settings models.ProjectSettings) Resolution {
	if utt.Role == models.RoleDialogue && utt.CharacterKey != "" {
		preset, err := r.voices.GetCharacterVoice(ctx, projectID, utt.CharacterKey)
		if err == nil && preset != "" {
			provider, voiceID := DetectProvider(preset)
			return Resolution{Provider: provider, VoiceID: voiceID, Source: SourceCharacter}
		}
	}

	if settings.NarrationVoiceID != "" {
		provider, voiceID := DetectProvider(settings.NarrationVoiceID)
		if settings.NarrationProvider != "" {
			provider = settings.NarrationProvider
		}
		return Resolution{Provider: provider, VoiceID: voiceID, Source: SourceProjectDefault}
	}

	return Resolution{
		Provider: r.fallbackProvider,
		VoiceID:  r.fallbackVoiceID,
		Source:   SourceFallback,
	}
}

// DetectProvider sniffs the provider from a voice identifier. Scheme-style
// prefixes ("elevenlabs:", "fish:") are stripped from the returned id since
// the provider APIs expect the bare id; hyphen conventions ("el-", "fish-")
// are part of the id itself and kept.
func DetectProvider(voiceID string) (provider, cleaned string) {
	switch {
	case strings.HasPrefix(voiceID, "elevenlabs:"):
		return models.ProviderElevenLabs, strings.TrimPrefix(voiceID, "elevenlabs:")
	case strings.HasPrefix(voiceID, "el-"):
		return models.ProviderElevenLabs, voiceID
	case strings.HasPrefix(voiceID, "fish:"):
		return models.ProviderFish, strings.TrimPrefix(voiceID, "fish:")
	case strings.HasPrefix(voiceID, "fish-"):
		return models.ProviderFish, voiceID
	default:
		return models.ProviderGoogle, voiceID
	}
}
