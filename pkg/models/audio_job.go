package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCanceled  = "canceled"
)

const (
	JobModeMissing = "missing"
	JobModePending = "pending"
	JobModeAll     = "all"
)

// AudioJob tracks one bulk narration run for a project. The API returns a
// job_id on POST .../audio/bulk; clients poll the status endpoint until the
// job reaches a terminal state. At most one job per project may be queued or
// running at a time.
type AudioJob struct {
	ID                uuid.UUID        `db:"id"                 json:"id"`
	ProjectID         uuid.UUID        `db:"project_id"         json:"project_id"`
	Mode              string           `db:"mode"               json:"mode"`
	ForceRegenerate   bool             `db:"force_regenerate"   json:"force_regenerate"`
	NarrationProvider string           `db:"narration_provider" json:"narration_provider"`
	NarrationVoiceID  string           `db:"narration_voice_id" json:"narration_voice_id"`
	Status            string           `db:"status"             json:"status"`
	TotalItems        int              `db:"total_items"        json:"total_items"`
	ProcessedItems    int              `db:"processed_items"    json:"processed_items"`
	SuccessCount      int              `db:"success_count"      json:"success_count"`
	FailedCount       int              `db:"failed_count"       json:"failed_count"`
	SkippedCount      int              `db:"skipped_count"      json:"skipped_count"`
	ErrorDetails      []JobErrorDetail `db:"error_details"      json:"error_details,omitempty"`
	LastError         *string          `db:"last_error"         json:"last_error,omitempty"`
	StartedBy         string           `db:"started_by"         json:"started_by"`
	StartedAt         *time.Time       `db:"started_at"         json:"started_at,omitempty"`
	CompletedAt       *time.Time       `db:"completed_at"       json:"completed_at,omitempty"`
	CreatedAt         time.Time        `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at"         json:"updated_at"`
}

// JobErrorDetail is one per-item failure kept on the job row. The list is
// bounded; failures past the cap are counted but not recorded.
type JobErrorDetail struct {
	ItemID  uuid.UUID `json:"item_id"`
	SceneID uuid.UUID `json:"scene_id"`
	Message string    `json:"message"`
}

// Terminal reports whether the job has reached a final state.
func (j *AudioJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// ProgressPercent returns completion as an integer 0-100. A job with no
// items reports 0.
func (j *AudioJob) ProgressPercent() int {
	if j.TotalItems <= 0 {
		return 0
	}
	pct := j.ProcessedItems * 100 / j.TotalItems
	if pct > 100 {
		pct = 100
	}
	return pct
}
