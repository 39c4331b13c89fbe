package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalworks/visibility-cli/internal/analysis"
	"github.com/signalworks/visibility-cli/internal/extraction"
	"github.com/signalworks/visibility-cli/internal/model"
	"github.com/signalworks/visibility-cli/internal/provider"
	"github.com/signalworks/visibility-cli/internal/resilience"
	"github.com/signalworks/visibility-cli/internal/store"
	"github.com/signalworks/visibility-cli/internal/worker"
)

// pipelineEnv holds the store, provider registry, and the wired worker and
// dispatcher used by the dispatch/work/schedule/serve commands.
type pipelineEnv struct {
	Store      store.Store
	Registry   *provider.Registry
	Executors  map[model.SubjectType]worker.Executor
	Worker     *worker.Worker
	Dispatcher *worker.Dispatcher
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// foregroundWorker returns a worker whose successor generations run
// synchronously. One-shot commands must chain in the foreground; a process
// that detached its successors would exit with work still in flight.
func foregroundWorker(ctx context.Context, env *pipelineEnv) *worker.Worker {
	var w *worker.Worker
	w = worker.New(env.Store, cfg.Worker, env.Executors,
		worker.WithInvoker(func(generation int) {
			if err := w.Run(ctx, generation); err != nil {
				zap.L().Error("successor invocation failed",
					zap.Int("generation", generation),
					zap.Error(err),
				)
			}
		}))
	return w
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "visibility.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, builds the provider registry from configured
// credentials, and wires the executors into a worker and dispatcher.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	// Cold starts race the database coming up; retry the migration rather
	// than failing the whole invocation.
	migrateRetry := resilience.DefaultRetryConfig()
	migrateRetry.InitialBackoff = time.Second
	migrateRetry.ShouldRetry = func(error) bool { return true }
	if err := resilience.Do(ctx, migrateRetry, "store migrate", st.Migrate); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry, err := provider.FromConfig(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if len(registry.List()) == 0 {
		zap.L().Warn("no provider credentials configured, prompt analysis will fail")
	}

	lex, err := extraction.LoadLexicon(cfg.Extraction.LexiconPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load sentiment lexicon")
	}
	engine := extraction.NewEngine(lex)

	executors := map[model.SubjectType]worker.Executor{
		model.SubjectPrompt:   analysis.NewPromptExecutor(st, registry, engine),
		model.SubjectResponse: analysis.NewSentimentExecutor(st, engine),
	}
	w := worker.New(st, cfg.Worker, executors)
	d := worker.NewDispatcher(st, w, cfg.Dispatch)

	return &pipelineEnv{
		Store:      st,
		Registry:   registry,
		Executors:  executors,
		Worker:     w,
		Dispatcher: d,
	}, nil
}
