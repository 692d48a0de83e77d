package model

import "time"

// JobStatus represents the state of a single generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// GenerationJob is one (model, strategy, task) cell of an experiment's job
// matrix. Exactly one job exists per combination.
type GenerationJob struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	Model        ModelRef  `json:"model"`
	Strategy     Strategy  `json:"strategy"`
	TaskID       string    `json:"task_id"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorDetail  string    `json:"error_detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GenerationResult is the immutable record of one generation attempt. Retries
// append new rows rather than mutating history; the row with Succeeded=true
// is the one that enters the evaluation pool.
type GenerationResult struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	ExperimentID string    `json:"experiment_id"`
	Attempt      int       `json:"attempt"`
	BlindID      string    `json:"blind_id"`
	Prompt       string    `json:"prompt"`
	Content      string    `json:"content"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	LatencyMS    float64   `json:"latency_ms"`
	Succeeded    bool      `json:"succeeded"`
	ErrorDetail  string    `json:"error_detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Progress is a point-in-time snapshot of generation progress for an
// experiment. It is computed in a single store query so a concurrent reader
// never observes a job counted in two states.
type Progress struct {
	ExperimentID   string  `json:"experiment_id"`
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Running        int     `json:"running"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalLatencyMS float64 `json:"total_latency_ms"`
}

// Done reports whether every job has reached a terminal state.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Succeeded+p.Failed == p.Total
}
