package models

import (
	"time"
)

// JobStatus represents the status of a video ingestion job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped" // lock contention: another worker owns the video
)

// IsTerminal returns true if the status admits no further transitions
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusSkipped
}

// VideoJob tracks one source video's passage through the pipeline.
// It is identified by a generated UUID distinct from its original filename.
type VideoJob struct {
	ID          string     `json:"id"`
	SourcePath  string     `json:"source_path"`
	Name        string     `json:"name"` // original filename
	DatasetID   string     `json:"dataset_id,omitempty"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"` // 0-100
	Segments    int        `json:"segments,omitempty"`
	Step        string     `json:"step,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// JobRequest carries a single-video pipeline invocation through the task queue
type JobRequest struct {
	ID           string `json:"id"` // pre-assigned job UUID, generated at submit time
	SourcePath   string `json:"source_path"`
	OriginalName string `json:"original_name,omitempty"`
	DatasetID    string `json:"dataset_id,omitempty"`
	Rubric       string `json:"rubric,omitempty"` // custom analysis dimensions
}

// JobResult is the outcome reported back by one pipeline run
type JobResult struct {
	JobID       string    `json:"job_id"`
	VideoName   string    `json:"video_name"`
	Status      JobStatus `json:"status"`
	DatasetID   string    `json:"dataset_id,omitempty"`
	Segments    int       `json:"segments"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
