// Package analysis contains the unit-of-work executors: fanning one prompt
// out to every provider, and scoring sentiment for one provider response.
package analysis

import (
	"context"

	"github.com/signalworks/visibility-cli/internal/model"
	"github.com/signalworks/visibility-cli/internal/store"
)

// Store is the slice of the persistence interface the executors use.
// store.Store satisfies it.
type Store interface {
	GetPrompt(ctx context.Context, id string) (*model.Prompt, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListCompetitors(ctx context.Context, projectID string, activeOnly bool) ([]model.Competitor, error)
	TouchPromptAnalyzed(ctx context.Context, promptID string) error

	CreateJob(ctx context.Context, promptID, projectID string, providersTotal int) (*model.AnalysisJob, error)
	FinishJob(ctx context.Context, jobID string, done, failed int, status model.JobStatus) error

	CreateResult(ctx context.Context, r *model.ProviderResult) error
	UpdateResult(ctx context.Context, r *model.ProviderResult) error
	FindResult(ctx context.Context, promptID, provider string, status model.ResultStatus) (*model.ProviderResult, error)
	GetResult(ctx context.Context, id string) (*model.ProviderResult, error)

	InsertCitations(ctx context.Context, citations []model.Citation) error
	InsertSentiment(ctx context.Context, s *model.Sentiment) error
	HasSentiment(ctx context.Context, resultID, entityName string) (bool, error)

	Enqueue(ctx context.Context, items []model.QueueItem) (string, error)
}

var _ Store = (store.Store)(nil)
