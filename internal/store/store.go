// Package store persists the work queue and every record the pipeline
// derives from provider answers. It is the only shared mutable state in the
// system; workers coordinate exclusively through it.
package store

import (
	"context"
	"time"

	"github.com/signalworks/visibility-cli/internal/model"
)

// QueueFilter specifies criteria for listing queue items.
type QueueFilter struct {
	Status    model.QueueStatus `json:"status,omitempty"`
	ProjectID string            `json:"project_id,omitempty"`
	BatchID   string            `json:"batch_id,omitempty"`
	Limit     int               `json:"limit,omitempty"`
}

// JobFilter specifies criteria for listing analysis jobs.
type JobFilter struct {
	ProjectID string          `json:"project_id,omitempty"`
	Status    model.JobStatus `json:"status,omitempty"`
	Limit     int             `json:"limit,omitempty"`
}

// ResultFilter specifies criteria for listing provider results.
type ResultFilter struct {
	PromptID  string             `json:"prompt_id,omitempty"`
	ProjectID string             `json:"project_id,omitempty"`
	Provider  string             `json:"provider,omitempty"`
	Status    model.ResultStatus `json:"status,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
}

// RecordFilter specifies criteria for listing citations and sentiments.
type RecordFilter struct {
	ResultID   string `json:"result_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityName string `json:"entity_name,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// QueueCounts summarizes the queue by status.
type QueueCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Queue. Claiming marks matched items processing and increments their
	// attempt counter in one atomic statement, so two workers can never
	// walk away with the same item.
	Enqueue(ctx context.Context, items []model.QueueItem) (batchID string, err error)
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]model.QueueItem, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	ResetStale(ctx context.Context, olderThan time.Duration) (int, error)
	CountEligible(ctx context.Context, maxAttempts int) (int, error)
	ListQueueItems(ctx context.Context, filter QueueFilter) ([]model.QueueItem, error)
	CountQueueByStatus(ctx context.Context) (*QueueCounts, error)

	// Analysis jobs
	CreateJob(ctx context.Context, promptID, projectID string, providersTotal int) (*model.AnalysisJob, error)
	FinishJob(ctx context.Context, jobID string, done, failed int, status model.JobStatus) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error)

	// Provider results
	CreateResult(ctx context.Context, r *model.ProviderResult) error
	UpdateResult(ctx context.Context, r *model.ProviderResult) error
	FindResult(ctx context.Context, promptID, provider string, status model.ResultStatus) (*model.ProviderResult, error)
	GetResult(ctx context.Context, id string) (*model.ProviderResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.ProviderResult, error)

	// Derived records, append-only
	InsertCitations(ctx context.Context, citations []model.Citation) error
	InsertSentiment(ctx context.Context, s *model.Sentiment) error
	HasSentiment(ctx context.Context, resultID, entityName string) (bool, error)
	ListCitations(ctx context.Context, filter RecordFilter) ([]model.Citation, error)
	ListSentiments(ctx context.Context, filter RecordFilter) ([]model.Sentiment, error)

	// Source of truth: projects, prompts, competitors
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context, activeOnly bool) ([]model.Project, error)
	CreatePrompt(ctx context.Context, p *model.Prompt) error
	GetPrompt(ctx context.Context, id string) (*model.Prompt, error)
	ListUnprocessedPrompts(ctx context.Context, projectID string, limit, offset int) ([]model.Prompt, error)
	TouchPromptAnalyzed(ctx context.Context, promptID string) error
	CreateCompetitor(ctx context.Context, c *model.Competitor) error
	ListCompetitors(ctx context.Context, projectID string, activeOnly bool) ([]model.Competitor, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
