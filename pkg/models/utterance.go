package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleNarration = "narration"
	RoleDialogue  = "dialogue"
)

// Utterance is one line of narration or character dialogue within a scene.
// Narration lines must not reference a character; dialogue lines must.
// LatestAudioID points at the audio item currently linked to this line.
// Regeneration repoints it; the previous item is kept for history.
type Utterance struct {
	ID            uuid.UUID  `db:"id"              json:"id"`
	SceneID       uuid.UUID  `db:"scene_id"        json:"scene_id"`
	Position      int        `db:"position"        json:"position"`
	Role          string     `db:"role"            json:"role"`
	CharacterKey  string     `db:"character_key"   json:"character_key,omitempty"`
	Text          string     `db:"text"            json:"text"`
	LatestAudioID *uuid.UUID `db:"latest_audio_id" json:"latest_audio_id,omitempty"`
	DurationMs    int        `db:"duration_ms"     json:"duration_ms"`
	CreatedAt     time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"      json:"updated_at"`
}
