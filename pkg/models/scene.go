package models

import (
	"time"

	"github.com/google/uuid"
)

// Scene is one ordered unit of a project's storyboard. Script holds the
// legacy free-text narration; structured utterances are derived from it
// lazily the first time a scene's utterances are requested.
type Scene struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	Position  int       `db:"position"   json:"position"`
	Title     string    `db:"title"      json:"title"`
	Script    string    `db:"script"     json:"script"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
