package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalworks/visibility-cli/internal/analysis"
	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/internal/extraction"
	"github.com/signalworks/visibility-cli/internal/model"
	"github.com/signalworks/visibility-cli/internal/provider"
	"github.com/signalworks/visibility-cli/internal/store"
	"github.com/signalworks/visibility-cli/internal/worker"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	cfg = &config.Config{
		Worker:   config.WorkerConfig{BatchSize: 5, MaxBatchesPerInvocation: 2, MaxAttempts: 3, MaxGenerations: 2},
		Dispatch: config.DispatchConfig{PageSize: 50, ChunkSize: 10, Workers: 1},
		Server:   config.ServerConfig{Port: 0},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	registry := provider.NewRegistry()
	engine := extraction.NewEngine(nil)
	executors := map[model.SubjectType]worker.Executor{
		model.SubjectPrompt:   analysis.NewPromptExecutor(st, registry, engine),
		model.SubjectResponse: analysis.NewSentimentExecutor(st, engine),
	}
	w := worker.New(st, cfg.Worker, executors)

	return &pipelineEnv{
		Store:      st,
		Registry:   registry,
		Executors:  executors,
		Worker:     w,
		Dispatcher: worker.NewDispatcher(st, w, cfg.Dispatch),
	}
}

func TestServeHealth(t *testing.T) {
	env := testEnv(t)
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServeQueueEndpoint(t *testing.T) {
	env := testEnv(t)
	_, err := env.Store.Enqueue(context.Background(), []model.QueueItem{
		{SubjectID: "prompt-1", SubjectType: model.SubjectPrompt, ProjectID: "proj-1"},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/queue")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeDispatchAccepted(t *testing.T) {
	env := testEnv(t)
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/dispatch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Give the background dispatch a beat to finish before the store closes.
	time.Sleep(50 * time.Millisecond)
}

func TestRunServerDrainsInFlightRequests(t *testing.T) {
	// Grab a free port for the real ListenAndServe path.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	started := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: addr, Handler: mux}
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv) }()

	reqDone := make(chan int, 1)
	go func() {
		var resp *http.Response
		var rerr error
		for i := 0; i < 50; i++ {
			resp, rerr = http.Get("http://" + addr + "/slow")
			if rerr == nil {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		if rerr != nil {
			reqDone <- 0
			return
		}
		defer resp.Body.Close()
		reqDone <- resp.StatusCode
	}()

	// Cancel while the request is in flight; the drain must let it finish.
	<-started
	cancel()

	assert.Equal(t, http.StatusOK, <-reqDone, "in-flight request completes during shutdown")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}

func TestServeResultNotFound(t *testing.T) {
	env := testEnv(t)
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/results/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeProjectsEndpoint(t *testing.T) {
	env := testEnv(t)
	require.NoError(t, env.Store.CreateProject(context.Background(), &model.Project{
		ID: "proj-1", Name: "Acme tracking", BrandName: "Acme", Active: true, CreatedAt: time.Now().UTC(),
	}))

	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/projects?active=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
