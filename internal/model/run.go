package model

import "time"

// WatermarkRecord is a per-stage cursor for idempotent incremental scans.
// A record is selected for work when it is newer than LastProcessedAt or when
// the recomputed content hash of its batch differs from ContentHash.
type WatermarkRecord struct {
	Stage           Stage     `json:"stage"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	ContentHash     string    `json:"content_hash"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RunStatus is the terminal status of a stage job run.
type RunStatus string

const (
	RunCompleted      RunStatus = "completed"
	RunAlreadyRunning RunStatus = "already_running" // run-lock held; not an error
	RunFailed         RunStatus = "failed"
)

// RunResult is the structured outcome every stage job returns.
type RunResult struct {
	Stage              Stage         `json:"stage"`
	Status             RunStatus     `json:"status"`
	RecordsProcessed   int           `json:"records_processed"`
	RecordsQuarantined int           `json:"records_quarantined"`
	Errors             []string      `json:"errors,omitempty"`
	Duration           time.Duration `json:"duration"`
	StartedAt          time.Time     `json:"started_at"`
}
