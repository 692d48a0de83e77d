// Package server exposes the experiment pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/PedramNavid/styleval/internal/config"
	"github.com/PedramNavid/styleval/internal/evaluate"
	"github.com/PedramNavid/styleval/internal/generate"
	"github.com/PedramNavid/styleval/internal/provider"
	"github.com/PedramNavid/styleval/internal/store"
	"github.com/PedramNavid/styleval/internal/tasks"
)

// Server wires the pipeline components behind a chi router.
type Server struct {
	store        store.Store
	catalog      *tasks.Catalog
	orchestrator *generate.Orchestrator
	sequencer    *evaluate.Sequencer
	registry     *provider.Registry
	providers    []string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates a Server.
func New(st store.Store, catalog *tasks.Catalog, orch *generate.Orchestrator, seq *evaluate.Sequencer, reg *provider.Registry) *Server {
	return &Server{
		store:        st,
		catalog:      catalog,
		orchestrator: orch,
		sequencer:    seq,
		registry:     reg,
		providers:    reg.Names(),
		running:      make(map[string]context.CancelFunc),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks", s.handleListTasks)
		r.Post("/providers/test", s.handleTestProviders)

		r.Route("/experiments", func(r chi.Router) {
			r.Post("/", s.handleCreateExperiment)
			r.Get("/", s.handleListExperiments)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetExperiment)
				r.Post("/generate", s.handleGenerate)
				r.Post("/cancel", s.handleCancel)
				r.Get("/progress", s.handleProgress)

				r.Get("/evaluations/next", s.handleNextEvaluation)
				r.Get("/evaluations/progress", s.handleEvaluationProgress)

				r.Get("/analysis/summary", s.handleSummary)
				r.Get("/analysis/by-model", s.handleByModel)
				r.Get("/analysis/by-strategy", s.handleByStrategy)
				r.Get("/analysis/by-task", s.handleByTask)
				r.Get("/analysis/heatmap", s.handleHeatmap)

				r.Get("/export.csv", s.handleExportCSV)
				r.Get("/export.xlsx", s.handleExportXLSX)
			})
		})

		r.Post("/evaluations", s.handleSubmitEvaluation)
		r.Get("/evaluations/{blindID}/reveal", s.handleReveal)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.Int("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// requestLogger logs each request with the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
