package models

import "time"

// Segment is a time-bounded sub-range of a source video, materialized as an
// independent clip file. Immutable once produced by the segmenter.
type Segment struct {
	Index      int     `json:"index"` // 1-based, contiguous among surviving segments
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Duration   float64 `json:"duration"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	ClipPath   string  `json:"clip_path"`
}

// AnalysisResult is the outcome of describing one segment. A failed result is
// a recoverable value, not an error: the pipeline skips ingestion for the
// segment and moves on.
type AnalysisResult struct {
	Success     bool     `json:"success"`
	Description string   `json:"description,omitempty"`
	TokenUsage  int      `json:"token_usage"`
	FramePaths  []string `json:"frame_paths,omitempty"` // scratch artifacts, caller deletes
	Error       string   `json:"error,omitempty"`
}

// BatchRun aggregates one orchestrator pass over a video directory
type BatchRun struct {
	Results     []JobResult `json:"results"`
	BatchSize   int         `json:"batch_size"`
	Concurrency int         `json:"concurrency"`
	MaxRetries  int         `json:"max_retries"`
	Progress    float64     `json:"progress"` // (completed jobs / total) * 100
	StartedAt   time.Time   `json:"started_at"`
}
