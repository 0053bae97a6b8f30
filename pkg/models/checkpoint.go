package models

import "time"

// Checkpoint is a per-stage resumable cursor. The on-disk JSON file is
// authoritative; a copy is mirrored into Postgres for operator visibility.
type Checkpoint struct {
	Phase          string    `json:"phase"`
	LastItemID     string    `json:"last_item_id"`
	ProcessedCount int       `json:"processed_count"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	LastRunAt      time.Time `json:"last_run_at"`
}
