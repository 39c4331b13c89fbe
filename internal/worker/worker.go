// Package worker implements the claim/execute/update loop and its
// self-chaining generations, plus the dispatcher that feeds the queue.
// Workers hold no state between invocations; the queue table is the only
// coordination point, so any number of them can run against the same store.
package worker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/internal/model"
	"github.com/signalworks/visibility-cli/internal/resilience"
)

// Executor runs one claimed queue item to completion.
type Executor interface {
	Execute(ctx context.Context, item model.QueueItem) error
}

// Store is the queue slice of the persistence interface the worker uses.
// store.Store satisfies it.
type Store interface {
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]model.QueueItem, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	ResetStale(ctx context.Context, olderThan time.Duration) (int, error)
	CountEligible(ctx context.Context, maxAttempts int) (int, error)
}

// Invoker launches a successor worker invocation. The default invoker runs
// the successor in a detached goroutine; tests inject a synchronous one.
type Invoker func(generation int)

// Worker drains the queue in bounded batches. One invocation claims at most
// MaxBatchesPerInvocation batches and then, if eligible work remains and
// the generation budget allows, fires exactly one successor invocation.
type Worker struct {
	store     Store
	executors map[model.SubjectType]Executor
	cfg       config.WorkerConfig
	invoke    Invoker
}

// Option configures a Worker.
type Option func(*Worker)

// WithInvoker overrides how successor invocations are launched.
func WithInvoker(fn Invoker) Option {
	return func(w *Worker) { w.invoke = fn }
}

// New creates a worker. Executors are keyed by the subject type they handle.
func New(s Store, cfg config.WorkerConfig, executors map[model.SubjectType]Executor, opts ...Option) *Worker {
	w := &Worker{
		store:     s,
		executors: executors,
		cfg:       cfg,
	}
	w.invoke = func(generation int) {
		go func() {
			if err := w.Run(context.Background(), generation); err != nil {
				zap.L().Error("successor worker invocation failed",
					zap.Int("generation", generation),
					zap.Error(err),
				)
			}
		}()
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run is one worker invocation. It recovers stuck items first, then claims
// and executes batches until the queue drains, the batch budget runs out,
// or the context is cancelled.
func (w *Worker) Run(ctx context.Context, generation int) error {
	log := zap.L().With(zap.Int("generation", generation))

	recovered, err := w.store.ResetStale(ctx, w.cfg.StaleAfter())
	if err != nil {
		return eris.Wrap(err, "worker: reset stale items")
	}
	if recovered > 0 {
		log.Warn("recovered stuck queue items", zap.Int("count", recovered))
	}

	processed := 0
	for batch := 0; batch < w.cfg.MaxBatchesPerInvocation; batch++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "worker: context cancelled")
		}

		items, err := w.store.ClaimBatch(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts)
		if err != nil {
			return eris.Wrap(err, "worker: claim batch")
		}
		if len(items) == 0 {
			break
		}

		w.runBatch(ctx, items)
		processed += len(items)

		if delay := w.cfg.InterBatchDelay(); delay > 0 && batch+1 < w.cfg.MaxBatchesPerInvocation {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "worker: context cancelled")
			}
		}
	}

	remaining, err := w.store.CountEligible(ctx, w.cfg.MaxAttempts)
	if err != nil {
		return eris.Wrap(err, "worker: count eligible")
	}
	log.Info("worker invocation finished",
		zap.Int("processed", processed),
		zap.Int("remaining", remaining),
	)

	if remaining > 0 && generation+1 < w.cfg.MaxGenerations {
		w.invoke(generation + 1)
	}
	return nil
}

// runBatch executes the claimed items concurrently and settles each one.
// Item failures are recorded on the item, never propagated: one bad item
// must not poison the rest of the batch.
func (w *Worker) runBatch(ctx context.Context, items []model.QueueItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.BatchSize)
	for _, item := range items {
		g.Go(func() error {
			w.runItem(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Worker) runItem(ctx context.Context, item model.QueueItem) {
	log := zap.L().With(
		zap.String("item_id", item.ID),
		zap.String("subject_type", string(item.SubjectType)),
		zap.String("subject_id", item.SubjectID),
		zap.Int("attempt", item.Attempts),
	)

	exec, ok := w.executors[item.SubjectType]
	if !ok {
		log.Error("no executor for subject type")
		w.settleFailed(ctx, item.ID, eris.Errorf("worker: no executor for subject type %q", item.SubjectType), log)
		return
	}

	if err := exec.Execute(ctx, item); err != nil {
		// Rate limits share the retry budget but deserve their own log
		// line, so quota exhaustion reads differently from an outage.
		if resilience.IsRateLimit(err) {
			log.Warn("item execution rate limited", zap.Error(err))
		} else {
			log.Warn("item execution failed", zap.Error(err))
		}
		w.settleFailed(ctx, item.ID, err, log)
		return
	}

	if err := w.store.MarkCompleted(ctx, item.ID); err != nil {
		log.Error("failed to mark item completed", zap.Error(err))
		return
	}
	log.Debug("item completed")
}

// settleFailed marks the item failed. The item stays eligible for a later
// claim while its attempts are below the maximum.
func (w *Worker) settleFailed(ctx context.Context, id string, cause error, log *zap.Logger) {
	if err := w.store.MarkFailed(ctx, id, cause.Error()); err != nil {
		log.Error("failed to mark item failed", zap.Error(err))
	}
}
