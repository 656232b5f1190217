package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AudioStatusGenerating = "generating"
	AudioStatusCompleted  = "completed"
	AudioStatusFailed     = "failed"
)

// AudioItem is one synthesized audio asset for an utterance. A row is
// inserted in status "generating" before the provider is called, so partial
// failures stay visible. At most one item per scene is active at a time;
// completing an item deactivates its siblings in the same transaction.
type AudioItem struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	SceneID      uuid.UUID `db:"scene_id"      json:"scene_id"`
	UtteranceID  uuid.UUID `db:"utterance_id"  json:"utterance_id"`
	Provider     string    `db:"provider"      json:"provider"`
	VoiceID      string    `db:"voice_id"      json:"voice_id"`
	Format       string    `db:"format"        json:"format"`
	SampleRate   int       `db:"sample_rate"   json:"sample_rate"`
	SourceText   string    `db:"source_text"   json:"source_text"`
	Status       string    `db:"status"        json:"status"`
	BlobKey      *string   `db:"blob_key"      json:"blob_key,omitempty"`
	BlobURL      *string   `db:"blob_url"      json:"blob_url,omitempty"`
	DurationMs   int       `db:"duration_ms"   json:"duration_ms"`
	IsActive     bool      `db:"is_active"     json:"is_active"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}
