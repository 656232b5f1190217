package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// JobStatusKey names the mirror of a bulk job's status, refreshed
// between batch writes. The store row stays authoritative.
func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("audio:job:%s", jobID)
}

// RateLimitKey buckets request counters by API key prefix, so each key
// issued to an account carries its own quota.
func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
