package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalworks/visibility-cli/internal/extraction"
	"github.com/signalworks/visibility-cli/internal/model"
	"github.com/signalworks/visibility-cli/internal/provider"
)

// PromptExecutor fans one prompt out to every enabled provider, records a
// ProviderResult per provider, extracts citations from the successful
// answers, and enqueues one sentiment item per successful result.
type PromptExecutor struct {
	store    Store
	registry *provider.Registry
	engine   *extraction.Engine
}

// NewPromptExecutor creates a prompt executor.
func NewPromptExecutor(s Store, registry *provider.Registry, engine *extraction.Engine) *PromptExecutor {
	if engine == nil {
		engine = extraction.NewEngine(nil)
	}
	return &PromptExecutor{store: s, registry: registry, engine: engine}
}

// providerOutcome is one provider's settled slot in a fan-out.
type providerOutcome struct {
	provider string
	result   *model.ProviderResult
	err      error
}

// Execute runs the full analysis for one queued prompt. Every targeted
// provider settles before the job is finished; the job completes when at
// least one provider succeeded and fails only when all of them did. A
// retried item skips providers that already hold a success result, so
// re-execution never duplicates provider spend.
func (p *PromptExecutor) Execute(ctx context.Context, item model.QueueItem) error {
	if item.SubjectType != model.SubjectPrompt {
		return eris.Errorf("analysis: unexpected subject type %q for prompt executor", item.SubjectType)
	}

	prompt, err := p.store.GetPrompt(ctx, item.SubjectID)
	if err != nil {
		return eris.Wrap(err, "analysis: load prompt")
	}
	project, err := p.store.GetProject(ctx, prompt.ProjectID)
	if err != nil {
		return eris.Wrap(err, "analysis: load project")
	}
	competitors, err := p.store.ListCompetitors(ctx, project.ID, true)
	if err != nil {
		return eris.Wrap(err, "analysis: load competitors")
	}
	entities := model.Entities(project, competitors)

	targets, skipped, err := p.resolveTargets(ctx, prompt, project)
	if err != nil {
		return err
	}
	if len(targets) == 0 && len(skipped) == 0 {
		return eris.Errorf("analysis: no configured providers for project %s", project.ID)
	}

	log := zap.L().With(
		zap.String("prompt_id", prompt.ID),
		zap.String("project_id", project.ID),
	)

	job, err := p.store.CreateJob(ctx, prompt.ID, project.ID, len(targets)+len(skipped))
	if err != nil {
		return eris.Wrap(err, "analysis: create job")
	}
	log.Info("analysis job started",
		zap.String("job_id", job.ID),
		zap.Strings("providers", targets),
		zap.Int("already_done", len(skipped)),
	)

	outcomes := make([]providerOutcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range targets {
		g.Go(func() error {
			outcomes[i] = p.runProvider(gctx, prompt, project, name)
			return nil
		})
	}
	_ = g.Wait() // goroutines report through outcomes, never the group error

	succeeded := skipped
	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			log.Warn("provider call failed",
				zap.String("provider", o.provider),
				zap.Error(o.err),
			)
			continue
		}
		succeeded = append(succeeded, o.result)
	}

	status := model.JobStatusCompleted
	if len(succeeded) == 0 {
		status = model.JobStatusFailed
	}
	if err := p.store.FinishJob(ctx, job.ID, len(succeeded), failed, status); err != nil {
		return eris.Wrap(err, "analysis: finish job")
	}

	if len(succeeded) == 0 {
		var firstErr error
		for _, o := range outcomes {
			if o.err != nil {
				firstErr = o.err
				break
			}
		}
		return eris.Wrapf(firstErr, "analysis: all %d providers failed for prompt %s", len(targets), prompt.ID)
	}

	// Citations and the sentiment fan-out only cover results from this
	// invocation; skipped providers were handled when they first succeeded.
	fresh := succeeded[len(skipped):]
	if err := p.recordCitations(ctx, project, entities, fresh); err != nil {
		return err
	}
	if err := p.enqueueSentiment(ctx, project.ID, fresh); err != nil {
		return err
	}

	if err := p.store.TouchPromptAnalyzed(ctx, prompt.ID); err != nil {
		return eris.Wrap(err, "analysis: touch prompt")
	}

	log.Info("analysis job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("succeeded", len(succeeded)),
		zap.Int("failed", failed),
	)
	return nil
}

// resolveTargets intersects the project's enabled providers with the
// registry and splits off providers that already have a success result for
// this prompt.
func (p *PromptExecutor) resolveTargets(ctx context.Context, prompt *model.Prompt, project *model.Project) (targets []string, skipped []*model.ProviderResult, err error) {
	enabled := project.Providers
	if len(enabled) == 0 {
		enabled = p.registry.List()
	}
	sort.Strings(enabled)

	for _, name := range enabled {
		if p.registry.Get(name) == nil {
			zap.L().Debug("provider enabled but not configured",
				zap.String("provider", name),
				zap.String("project_id", project.ID),
			)
			continue
		}
		existing, err := p.store.FindResult(ctx, prompt.ID, name, model.ResultStatusSuccess)
		if err != nil {
			return nil, nil, eris.Wrap(err, "analysis: check existing result")
		}
		if existing != nil {
			skipped = append(skipped, existing)
			continue
		}
		targets = append(targets, name)
	}
	return targets, skipped, nil
}

// runProvider records the result row before the upstream call goes out, so
// an in-flight call is visible as a processing row, then settles it.
func (p *PromptExecutor) runProvider(ctx context.Context, prompt *model.Prompt, project *model.Project, name string) providerOutcome {
	result := &model.ProviderResult{
		ID:        uuid.New().String(),
		PromptID:  prompt.ID,
		ProjectID: project.ID,
		Provider:  name,
		Status:    model.ResultStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.CreateResult(ctx, result); err != nil {
		return providerOutcome{provider: name, err: eris.Wrap(err, "analysis: create result")}
	}

	answer, err := p.registry.Get(name).Complete(ctx, provider.Request{Prompt: prompt.Text})
	if err != nil {
		result.Status = model.ResultStatusError
		result.ErrorMessage = err.Error()
		if uerr := p.store.UpdateResult(ctx, result); uerr != nil {
			zap.L().Error("failed to record provider error",
				zap.String("provider", name),
				zap.String("result_id", result.ID),
				zap.Error(uerr),
			)
		}
		return providerOutcome{provider: name, err: err}
	}

	result.Status = model.ResultStatusSuccess
	result.Text = answer.Text
	result.TokensUsed = answer.TokensUsed
	result.CostUSD = answer.CostUSD
	result.LatencyMs = answer.LatencyMs
	result.SourceURLs = answer.SourceURLs
	result.UsedWebSearch = answer.UsedWebSearch
	if err := p.store.UpdateResult(ctx, result); err != nil {
		return providerOutcome{provider: name, err: eris.Wrap(err, "analysis: update result")}
	}
	return providerOutcome{provider: name, result: result}
}

func (p *PromptExecutor) recordCitations(ctx context.Context, project *model.Project, entities []model.Entity, results []*model.ProviderResult) error {
	var citations []model.Citation
	for _, r := range results {
		for _, c := range p.engine.ExtractCitations(r.Text, entities, r.SourceURLs) {
			c.ID = uuid.New().String()
			c.ResultID = r.ID
			c.ProjectID = project.ID
			c.CreatedAt = time.Now().UTC()
			citations = append(citations, c)
		}
	}
	if len(citations) == 0 {
		return nil
	}
	if err := p.store.InsertCitations(ctx, citations); err != nil {
		return eris.Wrap(err, "analysis: insert citations")
	}
	return nil
}

// enqueueSentiment queues one response item per fresh success so sentiment
// scoring runs as its own retryable unit of work.
func (p *PromptExecutor) enqueueSentiment(ctx context.Context, projectID string, results []*model.ProviderResult) error {
	if len(results) == 0 {
		return nil
	}
	items := make([]model.QueueItem, 0, len(results))
	for _, r := range results {
		items = append(items, model.QueueItem{
			SubjectID:   r.ID,
			SubjectType: model.SubjectResponse,
			ProjectID:   projectID,
		})
	}
	if _, err := p.store.Enqueue(ctx, items); err != nil {
		return eris.Wrap(err, "analysis: enqueue sentiment items")
	}
	return nil
}
