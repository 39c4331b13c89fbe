package worker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/internal/model"
)

// DispatchStore is the slice of the persistence interface the dispatcher
// uses. store.Store satisfies it.
type DispatchStore interface {
	ListUnprocessedPrompts(ctx context.Context, projectID string, limit, offset int) ([]model.Prompt, error)
	Enqueue(ctx context.Context, items []model.QueueItem) (string, error)
}

// Dispatcher is the pipeline entry point: it scans for active prompts with
// no queue item yet, enqueues them in chunks, and launches the first
// generation of workers. Running it twice in a row is safe because the scan
// only sees prompts that have never been enqueued.
type Dispatcher struct {
	store  DispatchStore
	worker *Worker
	cfg    config.DispatchConfig
}

// NewDispatcher creates a dispatcher that feeds the given worker.
func NewDispatcher(s DispatchStore, w *Worker, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{store: s, worker: w, cfg: cfg}
}

// Run scans every active project. It returns the number of prompts enqueued.
func (d *Dispatcher) Run(ctx context.Context) (int, error) {
	return d.run(ctx, "")
}

// RunForProject scans a single project.
func (d *Dispatcher) RunForProject(ctx context.Context, projectID string) (int, error) {
	return d.run(ctx, projectID)
}

func (d *Dispatcher) run(ctx context.Context, projectID string) (int, error) {
	prompts, err := d.scan(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if len(prompts) == 0 {
		zap.L().Info("dispatch found no unprocessed prompts",
			zap.String("project_id", projectID),
		)
		return 0, nil
	}

	enqueued := d.enqueueChunked(ctx, prompts)
	zap.L().Info("dispatch enqueued prompts",
		zap.Int("scanned", len(prompts)),
		zap.Int("enqueued", enqueued),
		zap.Int("workers", d.cfg.Workers),
	)
	if enqueued == 0 {
		return 0, eris.New("dispatch: every enqueue chunk failed")
	}

	d.launchWorkers(ctx)
	return enqueued, nil
}

// scan pages through unprocessed prompts until a short page ends the scan.
func (d *Dispatcher) scan(ctx context.Context, projectID string) ([]model.Prompt, error) {
	var prompts []model.Prompt
	for offset := 0; ; offset += d.cfg.PageSize {
		page, err := d.store.ListUnprocessedPrompts(ctx, projectID, d.cfg.PageSize, offset)
		if err != nil {
			return nil, eris.Wrap(err, "dispatch: scan prompts")
		}
		prompts = append(prompts, page...)
		if len(page) < d.cfg.PageSize {
			return prompts, nil
		}
	}
}

// enqueueChunked inserts queue items in chunks. A failed chunk is logged
// and skipped; its prompts stay unprocessed and the next dispatch run picks
// them up again.
func (d *Dispatcher) enqueueChunked(ctx context.Context, prompts []model.Prompt) int {
	enqueued := 0
	for start := 0; start < len(prompts); start += d.cfg.ChunkSize {
		end := min(start+d.cfg.ChunkSize, len(prompts))

		items := make([]model.QueueItem, 0, end-start)
		for _, p := range prompts[start:end] {
			items = append(items, model.QueueItem{
				SubjectID:   p.ID,
				SubjectType: model.SubjectPrompt,
				ProjectID:   p.ProjectID,
			})
		}

		batchID, err := d.store.Enqueue(ctx, items)
		if err != nil {
			zap.L().Warn("enqueue chunk failed, prompts stay unprocessed",
				zap.Int("chunk_start", start),
				zap.Int("chunk_size", len(items)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Debug("enqueued chunk",
			zap.String("batch_id", batchID),
			zap.Int("count", len(items)),
		)
		enqueued += len(items)
	}
	return enqueued
}

// launchWorkers runs the first worker generation. Workers race on the
// claim, not on the dispatcher, so launching them concurrently is safe.
func (d *Dispatcher) launchWorkers(ctx context.Context) {
	n := d.cfg.Workers
	if n < 1 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := d.worker.Run(gctx, 0); err != nil {
				zap.L().Error("worker invocation failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
