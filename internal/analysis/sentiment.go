package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalworks/visibility-cli/internal/extraction"
	"github.com/signalworks/visibility-cli/internal/model"
)

// SentimentExecutor scores sentiment for every tracked entity against one
// provider result's text. A response with zero entity mentions is a valid
// completion, not an error.
type SentimentExecutor struct {
	store  Store
	engine *extraction.Engine
}

// NewSentimentExecutor creates a sentiment executor.
func NewSentimentExecutor(s Store, engine *extraction.Engine) *SentimentExecutor {
	if engine == nil {
		engine = extraction.NewEngine(nil)
	}
	return &SentimentExecutor{store: s, engine: engine}
}

// Execute scores one queued provider response. Entities that already hold a
// sentiment row for this result are skipped, which makes a retried item a
// no-op for the work it finished before crashing.
func (s *SentimentExecutor) Execute(ctx context.Context, item model.QueueItem) error {
	if item.SubjectType != model.SubjectResponse {
		return eris.Errorf("analysis: unexpected subject type %q for sentiment executor", item.SubjectType)
	}

	result, err := s.store.GetResult(ctx, item.SubjectID)
	if err != nil {
		return eris.Wrap(err, "analysis: load result")
	}
	if result.Status != model.ResultStatusSuccess {
		zap.L().Warn("sentiment item refers to a non-success result, skipping",
			zap.String("result_id", result.ID),
			zap.String("status", string(result.Status)),
		)
		return nil
	}

	project, err := s.store.GetProject(ctx, result.ProjectID)
	if err != nil {
		return eris.Wrap(err, "analysis: load project")
	}
	competitors, err := s.store.ListCompetitors(ctx, project.ID, true)
	if err != nil {
		return eris.Wrap(err, "analysis: load competitors")
	}
	entities := model.Entities(project, competitors)

	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}

	scored := 0
	for i, entity := range entities {
		done, err := s.store.HasSentiment(ctx, result.ID, entity.Name)
		if err != nil {
			return eris.Wrap(err, "analysis: check sentiment")
		}
		if done {
			continue
		}

		others := make([]string, 0, len(names)-1)
		others = append(others, names[:i]...)
		others = append(others, names[i+1:]...)

		score := s.engine.ScoreSentiment(result.Text, entity.Name, others)
		if !score.Mentioned {
			continue
		}

		sentiment := &model.Sentiment{
			ID:            uuid.New().String(),
			ResultID:      result.ID,
			ProjectID:     project.ID,
			EntityName:    entity.Name,
			Label:         score.Label,
			Score:         score.Score,
			PositiveAttrs: score.PositiveAttrs,
			NegativeAttrs: score.NegativeAttrs,
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.store.InsertSentiment(ctx, sentiment); err != nil {
			return eris.Wrap(err, "analysis: insert sentiment")
		}
		scored++
	}

	zap.L().Debug("sentiment scored",
		zap.String("result_id", result.ID),
		zap.String("provider", result.Provider),
		zap.Int("entities_scored", scored),
	)
	return nil
}
