package model

import "time"

// QueueStatus represents the lifecycle state of a queue item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// SubjectType identifies what kind of work a queue item refers to.
type SubjectType string

const (
	// SubjectPrompt queues a tracked prompt for multi-provider analysis.
	SubjectPrompt SubjectType = "prompt"
	// SubjectResponse queues a provider result for sentiment scoring.
	SubjectResponse SubjectType = "response"
)

// QueueItem is one unit of deferred pipeline work. Items are claimed by
// workers, which increment Attempts as a side effect of the claim. An item
// is eligible for claim while its status is pending or failed and Attempts
// is below the configured maximum; a failed item with attempts exhausted is
// terminal and requires manual re-enqueue.
type QueueItem struct {
	ID           string      `json:"id"`
	SubjectID    string      `json:"subject_id"`
	SubjectType  SubjectType `json:"subject_type"`
	ProjectID    string      `json:"project_id"`
	Status       QueueStatus `json:"status"`
	Attempts     int         `json:"attempts"`
	BatchID      string      `json:"batch_id"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// JobStatus represents the state of a fan-out analysis job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// AnalysisJob tracks one fan-out session for a single prompt: how many
// providers were targeted and how many have finished either way. The job
// completes as soon as at least one provider succeeded; it fails only when
// every provider failed.
type AnalysisJob struct {
	ID              string     `json:"id"`
	PromptID        string     `json:"prompt_id"`
	ProjectID       string     `json:"project_id"`
	ProvidersTotal  int        `json:"providers_total"`
	ProvidersDone   int        `json:"providers_done"`
	ProvidersFailed int        `json:"providers_failed"`
	Status          JobStatus  `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
