package models

import (
	"time"
)

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Job tracks one asynchronous analysis. The API returns it with status pending on
// POST /api/v1/analyses; clients poll GET /api/v1/analyses/{id} or listen on the
// realtime socket until it reaches completed or failed.
type Job struct {
	ID        string           `json:"id"`
	OrgID     string           `json:"org_id"`
	Status    JobStatus        `json:"status"`
	Context   AnalysisContext  `json:"context"`
	Options   *AnalysisOptions `json:"options,omitempty"`
	Result    *AnalysisResult  `json:"result,omitempty"`
	Error     *JobError        `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NotifyOnCompletion reports whether the creator asked for realtime notifications.
func (j *Job) NotifyOnCompletion() bool {
	return j.Options != nil && j.Options.NotifyOnCompletion
}

// AnalysisContext is the caller-supplied payload forwarded to the analyzer.
type AnalysisContext struct {
	ProjectID  string           `json:"project_id"`
	TestID     string           `json:"test_id"`
	Parameters map[string]any   `json:"parameters,omitempty"`
	Metadata   *ContextMetadata `json:"metadata,omitempty"`
}

type ContextMetadata struct {
	Environment string   `json:"environment"`
	Version     string   `json:"version"`
	Tags        []string `json:"tags,omitempty"`
}

// AnalysisOptions tunes how a job is run and reported.
type AnalysisOptions struct {
	Priority           string   `json:"priority"`
	NotifyOnCompletion bool     `json:"notify_on_completion"`
	AnalysisDepth      string   `json:"analysis_depth"`
	IncludeMetrics     []string `json:"include_metrics,omitempty"`
}

// JobError is captured from a failed background run.
type JobError struct {
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}
