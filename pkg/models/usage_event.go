package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	UsageKindBulkAudio   = "bulk_audio"
	UsageKindSingleAudio = "single_audio"
)

// UsageEvent is an append-only audit record of synthesis activity, written
// best-effort after a run finishes. Billing and reporting read from here;
// nothing in the pipeline depends on it.
type UsageEvent struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	AccountID    uuid.UUID  `db:"account_id"    json:"account_id"`
	ProjectID    uuid.UUID  `db:"project_id"    json:"project_id"`
	JobID        *uuid.UUID `db:"job_id"        json:"job_id,omitempty"`
	Kind         string     `db:"kind"          json:"kind"`
	Provider     string     `db:"provider"      json:"provider"`
	VoiceID      string     `db:"voice_id"      json:"voice_id"`
	ItemCount    int        `db:"item_count"    json:"item_count"`
	SuccessCount int        `db:"success_count" json:"success_count"`
	FailedCount  int        `db:"failed_count"  json:"failed_count"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
}

// UsageSummary is an aggregate over usage events for the admin report.
type UsageSummary struct {
	Kind         string `db:"kind"          json:"kind"`
	Provider     string `db:"provider"      json:"provider"`
	EventCount   int    `db:"event_count"   json:"event_count"`
	ItemCount    int    `db:"item_count"    json:"item_count"`
	SuccessCount int    `db:"success_count" json:"success_count"`
	FailedCount  int    `db:"failed_count"  json:"failed_count"`
}
