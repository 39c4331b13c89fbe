package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalworks/visibility-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func enqueueN(t *testing.T, s *SQLiteStore, n int) string {
	t.Helper()

	items := make([]model.QueueItem, n)
	for i := range items {
		items[i] = model.QueueItem{
			SubjectID:   "prompt-" + string(rune('a'+i)),
			SubjectType: model.SubjectPrompt,
			ProjectID:   "proj-1",
		}
	}
	batchID, err := s.Enqueue(context.Background(), items)
	require.NoError(t, err)
	require.NotEmpty(t, batchID)
	return batchID
}

func TestEnqueueAndClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batchID := enqueueN(t, s, 3)

	pending, err := s.ListQueueItems(ctx, QueueFilter{Status: model.QueueStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for _, item := range pending {
		assert.Equal(t, 0, item.Attempts)
		assert.Equal(t, batchID, item.BatchID)
	}

	claimed, err := s.ClaimBatch(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	for _, item := range claimed {
		assert.Equal(t, model.QueueStatusProcessing, item.Status)
		assert.Equal(t, 1, item.Attempts)
	}

	rest, err := s.ClaimBatch(ctx, 5, 3)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	empty, err := s.ClaimBatch(ctx, 5, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAttemptsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueN(t, s, 1)

	var last int
	for i := 1; i <= 3; i++ {
		claimed, err := s.ClaimBatch(ctx, 1, 3)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Greater(t, claimed[0].Attempts, last)
		last = claimed[0].Attempts
		require.NoError(t, s.MarkFailed(ctx, claimed[0].ID, "provider exploded"))
	}
	assert.Equal(t, 3, last)
}

func TestExhaustedItemNeverReclaimed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	maxAttempts := 3

	enqueueN(t, s, 1)

	for i := 0; i < maxAttempts; i++ {
		claimed, err := s.ClaimBatch(ctx, 1, maxAttempts)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, s.MarkFailed(ctx, claimed[0].ID, "still broken"))
	}

	count, err := s.CountEligible(ctx, maxAttempts)
	require.NoError(t, err)
	assert.Zero(t, count)

	claimed, err := s.ClaimBatch(ctx, 1, maxAttempts)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	failed, err := s.ListQueueItems(ctx, QueueFilter{Status: model.QueueStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "still broken", failed[0].ErrorMessage)
}

func TestFailedBelowMaxIsReclaimable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueN(t, s, 1)

	claimed, err := s.ClaimBatch(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, s.MarkFailed(ctx, claimed[0].ID, "transient"))

	again, err := s.ClaimBatch(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, claimed[0].ID, again[0].ID)
	assert.Equal(t, 2, again[0].Attempts)
}

func TestResetStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueN(t, s, 1)
	claimed, err := s.ClaimBatch(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Age the processing item past the staleness window.
	_, err = s.db.ExecContext(ctx,
		`UPDATE queue_items SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-10*time.Minute), claimed[0].ID,
	)
	require.NoError(t, err)

	n, err := s.ResetStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := s.ListQueueItems(ctx, QueueFilter{Status: model.QueueStatusPending})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, claimed[0].Attempts, items[0].Attempts, "reset must not change attempts")
}

func TestResetStaleIgnoresFreshItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueN(t, s, 1)
	_, err := s.ClaimBatch(ctx, 1, 3)
	require.NoError(t, err)

	n, err := s.ResetStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkCompleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueN(t, s, 1)
	claimed, err := s.ClaimBatch(ctx, 1, 3)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, claimed[0].ID))

	count, err := s.CountEligible(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, count)

	counts, err := s.CountQueueByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Completed)
	assert.Zero(t, counts.Pending)
}

func TestMarkCompletedNotFound(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.MarkCompleted(context.Background(), "missing"))
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, "prompt-1", "proj-1", 4)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, 4, job.ProvidersTotal)

	require.NoError(t, s.FinishJob(ctx, job.ID, 2, 2, model.JobStatusCompleted))

	jobs, err := s.ListJobs(ctx, JobFilter{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobStatusCompleted, jobs[0].Status)
	assert.Equal(t, 2, jobs[0].ProvidersDone)
	assert.Equal(t, 2, jobs[0].ProvidersFailed)
	assert.NotNil(t, jobs[0].CompletedAt)
}

func TestResultLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &model.ProviderResult{
		PromptID:  "prompt-1",
		ProjectID: "proj-1",
		Provider:  "openai",
		Status:    model.ResultStatusProcessing,
	}
	require.NoError(t, s.CreateResult(ctx, r))
	require.NotEmpty(t, r.ID)

	r.Status = model.ResultStatusSuccess
	r.Text = "Acme leads the market."
	r.TokensUsed = 500
	r.CostUSD = 0.004
	r.LatencyMs = 1200
	r.SourceURLs = []string{"https://a.com/x", "https://b.com/y"}
	r.UsedWebSearch = true
	require.NoError(t, s.UpdateResult(ctx, r))

	got, err := s.GetResult(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResultStatusSuccess, got.Status)
	assert.Equal(t, "Acme leads the market.", got.Text)
	assert.Equal(t, []string{"https://a.com/x", "https://b.com/y"}, got.SourceURLs)
	assert.True(t, got.UsedWebSearch)

	found, err := s.FindResult(ctx, "prompt-1", "openai", model.ResultStatusSuccess)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, r.ID, found.ID)

	missing, err := s.FindResult(ctx, "prompt-1", "gemini", model.ResultStatusSuccess)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSentimentIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.Sentiment{
		ResultID:      "result-1",
		ProjectID:     "proj-1",
		EntityName:    "Acme",
		Label:         model.SentimentPositive,
		Score:         0.8,
		PositiveAttrs: []string{"best"},
	}
	require.NoError(t, s.InsertSentiment(ctx, first))

	dup := &model.Sentiment{
		ResultID:   "result-1",
		ProjectID:  "proj-1",
		EntityName: "Acme",
		Label:      model.SentimentNegative,
	}
	require.NoError(t, s.InsertSentiment(ctx, dup))

	sentiments, err := s.ListSentiments(ctx, RecordFilter{ResultID: "result-1"})
	require.NoError(t, err)
	require.Len(t, sentiments, 1)
	assert.Equal(t, model.SentimentPositive, sentiments[0].Label)
	assert.Equal(t, []string{"best"}, sentiments[0].PositiveAttrs)

	exists, err := s.HasSentiment(ctx, "result-1", "Acme")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.HasSentiment(ctx, "result-1", "Globex")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCitations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	citations := []model.Citation{
		{
			ResultID: "result-1", ProjectID: "proj-1",
			EntityName: "Acme", EntityType: model.EntityBrand,
			MatchedText: "Acme is great.", Position: 0, Confidence: 0.9,
			SourceURL: "https://a.com/x", SourceDomain: "a.com",
		},
		{
			ResultID: "result-1", ProjectID: "proj-1",
			EntityName: "Globex", EntityType: model.EntityCompetitor,
			MatchedText: "Globex trails.", Position: 1, Confidence: 0.9,
		},
	}
	require.NoError(t, s.InsertCitations(ctx, citations))
	require.NoError(t, s.InsertCitations(ctx, nil))

	got, err := s.ListCitations(ctx, RecordFilter{ResultID: "result-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	acme, err := s.ListCitations(ctx, RecordFilter{ResultID: "result-1", EntityName: "Acme"})
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.Equal(t, "a.com", acme[0].SourceDomain)
}

func TestProjectsPromptsCompetitors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj := &model.Project{Name: "Acme Visibility", BrandName: "Acme", Providers: []string{"openai", "gemini"}, Active: true}
	require.NoError(t, s.CreateProject(ctx, proj))

	got, err := s.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.BrandName)
	assert.Equal(t, []string{"openai", "gemini"}, got.Providers)

	require.NoError(t, s.CreateCompetitor(ctx, &model.Competitor{ProjectID: proj.ID, Name: "Globex", Active: true}))
	require.NoError(t, s.CreateCompetitor(ctx, &model.Competitor{ProjectID: proj.ID, Name: "Initech", Active: false}))

	active, err := s.ListCompetitors(ctx, proj.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Globex", active[0].Name)

	all, err := s.ListCompetitors(ctx, proj.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListUnprocessedPrompts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj := &model.Project{Name: "Acme", BrandName: "Acme", Active: true}
	require.NoError(t, s.CreateProject(ctx, proj))

	p1 := &model.Prompt{ProjectID: proj.ID, Text: "best crm?", Active: true}
	p2 := &model.Prompt{ProjectID: proj.ID, Text: "best erp?", Active: true}
	p3 := &model.Prompt{ProjectID: proj.ID, Text: "retired question", Active: false}
	require.NoError(t, s.CreatePrompt(ctx, p1))
	require.NoError(t, s.CreatePrompt(ctx, p2))
	require.NoError(t, s.CreatePrompt(ctx, p3))

	// p1 already has a queue item, so only p2 is unprocessed.
	_, err := s.Enqueue(ctx, []model.QueueItem{
		{SubjectID: p1.ID, SubjectType: model.SubjectPrompt, ProjectID: proj.ID},
	})
	require.NoError(t, err)

	prompts, err := s.ListUnprocessedPrompts(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, p2.ID, prompts[0].ID)

	// Scoped to another project there is nothing.
	none, err := s.ListUnprocessedPrompts(ctx, "other-project", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.TouchPromptAnalyzed(ctx, p1.ID))
	got, err := s.GetPrompt(ctx, p1.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastAnalyzedAt)
}
