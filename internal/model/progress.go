package model

import "time"

// JobType names a kind of batch job. At most one job per type runs at a time.
type JobType string

const (
	JobTypePriceRefresh JobType = "price_refresh"
	JobTypeDiscovery    JobType = "discovery_sync"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypePriceRefresh, JobTypeDiscovery:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusPaused, JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// BatchProgress is the observable state of one job run.
type BatchProgress struct {
	RunID                 string     `json:"run_id,omitempty"`
	JobType               JobType    `json:"job_type"`
	TotalItems            int        `json:"total_items"`
	ProcessedItems        int        `json:"processed_items"`
	SucceededItems        int        `json:"succeeded_items"`
	FailedItems           int        `json:"failed_items"`
	CurrentBatchIndex     int        `json:"current_batch_index"`
	TotalBatches          int        `json:"total_batches"`
	Status                JobStatus  `json:"status"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	EstimatedCompletionAt *time.Time `json:"estimated_completion_at,omitempty"`
	FinishedAt            *time.Time `json:"finished_at,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
	CurrentItemLabel      string     `json:"current_item_label,omitempty"`
	ValuesCollected       int        `json:"values_collected"`
	AverageItemMillis     int64      `json:"average_item_ms"`
	HeartbeatAt           *time.Time `json:"heartbeat_at,omitempty"`
}

// IdleProgress is the snapshot reported before any run of jobType exists.
func IdleProgress(jobType JobType) BatchProgress {
	return BatchProgress{JobType: jobType, Status: JobStatusIdle}
}

// JobOptions are the caller-supplied parameters of a start request.
type JobOptions struct {
	BatchSize int `json:"batchSize"`
	MaxItems  int `json:"maxItems"`
	StartFrom int `json:"startFrom"`
}

// ScrapeTaskStatus is the outcome recorded for one scraped URL.
type ScrapeTaskStatus string

const (
	ScrapeTaskSucceeded ScrapeTaskStatus = "succeeded"
	ScrapeTaskFailed    ScrapeTaskStatus = "failed"
)

// ScrapeTask tracks the latest scrape of one URL for one source.
type ScrapeTask struct {
	Source    string           `json:"source"`
	URL       string           `json:"url"`
	RunID     string           `json:"run_id"`
	Status    ScrapeTaskStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	LastError string           `json:"last_error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}
