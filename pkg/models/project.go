package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProjectStatusDraft    = "draft"
	ProjectStatusActive   = "active"
	ProjectStatusArchived = "archived"
)

// Project is a single video/comic production. Scenes, characters and audio
// jobs all hang off a project; every project belongs to an account.
type Project struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	AccountID uuid.UUID       `db:"account_id" json:"account_id"`
	Title     string          `db:"title"      json:"title"`
	Status    string          `db:"status"     json:"status"`
	Settings  ProjectSettings `db:"settings"   json:"settings"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ProjectSettings is the JSONB settings blob. The narration fields are the
// project-level voice defaults consulted when an utterance's character has no
// voice preset of its own.
type ProjectSettings struct {
	NarrationProvider string `json:"narration_provider,omitempty"`
	NarrationVoiceID  string `json:"narration_voice_id,omitempty"`
}
