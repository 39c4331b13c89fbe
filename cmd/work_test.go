package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalworks/visibility-cli/internal/model"
	"github.com/signalworks/visibility-cli/internal/provider"
)

// stubAdapter answers every prompt with canned text.
type stubAdapter struct{}

func (stubAdapter) Name() string { return "openai" }

func (stubAdapter) Complete(_ context.Context, _ provider.Request) (*provider.Answer, error) {
	return &provider.Answer{Text: "Acme is a fine choice.", TokensUsed: 10, LatencyMs: 1}, nil
}

func TestForegroundWorkerDrainsBeyondBatchBudget(t *testing.T) {
	env := testEnv(t)
	env.Registry.Register(stubAdapter{})
	ctx := context.Background()

	require.NoError(t, env.Store.CreateProject(ctx, &model.Project{
		ID: "proj-1", Name: "Acme tracking", BrandName: "Acme", Active: true, CreatedAt: time.Now().UTC(),
	}))

	items := make([]model.QueueItem, 0, 12)
	for i := 0; i < 12; i++ {
		p := &model.Prompt{
			ID:        fmt.Sprintf("prompt-%02d", i),
			ProjectID: "proj-1",
			Text:      "What is the best CRM?",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, env.Store.CreatePrompt(ctx, p))
		items = append(items, model.QueueItem{SubjectID: p.ID, SubjectType: model.SubjectPrompt, ProjectID: "proj-1"})
	}
	_, err := env.Store.Enqueue(ctx, items)
	require.NoError(t, err)

	// Batch budget covers 10 of the 12 prompt items; the rest, plus the
	// sentiment items the prompt executor enqueues, must drain through
	// successor generations before Run returns.
	cfg.Worker.MaxGenerations = 10
	require.NoError(t, foregroundWorker(ctx, env).Run(ctx, 0))

	counts, err := env.Store.CountQueueByStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Pending)
	assert.Zero(t, counts.Processing)
	assert.Zero(t, counts.Failed)
	assert.Equal(t, 24, counts.Completed, "12 prompt items and 12 sentiment follow-ons")
}
