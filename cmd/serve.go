package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalworks/visibility-cli/internal/model"
	"github.com/signalworks/visibility-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API: dispatch trigger plus read accessors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		zap.L().Info("starting server", zap.Int("port", port))
		return runServer(ctx, srv)
	},
}

// shutdownTimeout bounds in-flight request draining on exit.
const shutdownTimeout = 10 * time.Second

// runServer serves until ctx is cancelled, then drains in-flight requests.
// The drain gets a fresh context: the signal context is already cancelled
// by the time it fires, which would turn Shutdown into an immediate close.
func runServer(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown incomplete", zap.Error(err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := env.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/dispatch", handleDispatch(env))
		r.Get("/queue", handleQueue(env))
		r.Get("/jobs", handleJobs(env))
		r.Get("/results", handleResults(env))
		r.Get("/results/{id}", handleResult(env))
		r.Get("/results/{id}/citations", handleCitations(env))
		r.Get("/results/{id}/sentiments", handleSentiments(env))
		r.Get("/projects", handleProjects(env))
	})

	return r
}

// handleDispatch kicks off a scan/enqueue/work cycle in the background.
// Nothing from the pipeline raises back to the HTTP caller; progress is
// visible through the queue and job records.
func handleDispatch(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProjectID string `json:"project_id"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		// Detached from the request context: the dispatch outlives the 202.
		go func() {
			ctx := context.Background()
			var enqueued int
			var err error
			if req.ProjectID != "" {
				enqueued, err = env.Dispatcher.RunForProject(ctx, req.ProjectID)
			} else {
				enqueued, err = env.Dispatcher.Run(ctx)
			}
			if err != nil {
				zap.L().Error("dispatch via api failed", zap.Error(err))
				return
			}
			zap.L().Info("dispatch via api complete", zap.Int("enqueued", enqueued))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func handleQueue(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := env.Store.CountQueueByStatus(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		items, err := env.Store.ListQueueItems(r.Context(), store.QueueFilter{
			Status:    queueStatusParam(r),
			ProjectID: r.URL.Query().Get("project_id"),
			BatchID:   r.URL.Query().Get("batch_id"),
			Limit:     limitParam(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"counts": counts, "items": items})
	}
}

func handleJobs(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := env.Store.ListJobs(r.Context(), store.JobFilter{
			ProjectID: r.URL.Query().Get("project_id"),
			Limit:     limitParam(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func handleResults(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := env.Store.ListResults(r.Context(), store.ResultFilter{
			PromptID:  r.URL.Query().Get("prompt_id"),
			ProjectID: r.URL.Query().Get("project_id"),
			Provider:  r.URL.Query().Get("provider"),
			Limit:     limitParam(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func handleResult(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := env.Store.GetResult(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "result not found"})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleCitations(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		citations, err := env.Store.ListCitations(r.Context(), store.RecordFilter{
			ResultID: chi.URLParam(r, "id"),
			Limit:    limitParam(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, citations)
	}
}

func handleSentiments(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sentiments, err := env.Store.ListSentiments(r.Context(), store.RecordFilter{
			ResultID: chi.URLParam(r, "id"),
			Limit:    limitParam(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sentiments)
	}
}

func handleProjects(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := env.Store.ListProjects(r.Context(), r.URL.Query().Get("active") == "true")
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("api request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func queueStatusParam(r *http.Request) model.QueueStatus {
	return model.QueueStatus(r.URL.Query().Get("status"))
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
