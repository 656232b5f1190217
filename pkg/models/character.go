package models

import (
	"time"

	"github.com/google/uuid"
)

// Character is a named speaker within a project. Key is the stable handle
// dialogue utterances reference; VoicePreset is either a bare voice id or a
// provider-qualified one ("elevenlabs:pNIn..."), empty when unset.
type Character struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	ProjectID   uuid.UUID `db:"project_id"   json:"project_id"`
	Key         string    `db:"key"          json:"key"`
	Name        string    `db:"name"         json:"name"`
	VoicePreset string    `db:"voice_preset" json:"voice_preset"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
