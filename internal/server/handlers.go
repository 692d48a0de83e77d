package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/PedramNavid/styleval/internal/analysis"
	"github.com/PedramNavid/styleval/internal/generate"
	"github.com/PedramNavid/styleval/internal/model"
	"github.com/PedramNavid/styleval/internal/provider"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.All())
}

// pingModels is the cheap model used to probe each provider's connectivity.
var pingModels = map[string]string{
	"anthropic": "claude-haiku-4-5-20251001",
	"openai":    "gpt-4o-mini",
	"google":    "gemini-2.0-flash",
}

func (s *Server) handleTestProviders(w http.ResponseWriter, r *http.Request) {
	names := append([]string(nil), s.providers...)
	sort.Strings(names)

	connections := make(map[string]bool, len(names))
	connected := 0
	for _, name := range names {
		err := s.pingProvider(r.Context(), name)
		connections[name] = err == nil
		if err == nil {
			connected++
		} else {
			zap.L().Warn("provider connectivity check failed",
				zap.String("provider", name), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"connections": connections,
		"summary":     fmt.Sprintf("%d/%d providers connected", connected, len(names)),
	})
}

// pingProvider issues a minimal one-token generation against the provider.
func (s *Server) pingProvider(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := s.registry.Acquire(ctx, name)
	if err != nil {
		return err
	}
	_, err = client.Generate(ctx, provider.GenerateRequest{
		Model:     pingModels[name],
		Prompt:    "Hi",
		MaxTokens: 1,
	})
	return err
}

type createExperimentRequest struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	StyleSamples []string         `json:"style_samples"`
	Models       []model.ModelRef `json:"models"`
	Strategies   []model.Strategy `json:"strategies"`
	Tasks        []string         `json:"tasks"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "invalid JSON: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, model.NewValidationError("name", "name is required"))
		return
	}

	exp := &model.Experiment{
		Name:         req.Name,
		Description:  req.Description,
		StyleSamples: req.StyleSamples,
		Models:       req.Models,
		Strategies:   req.Strategies,
		Tasks:        req.Tasks,
	}
	// Validate selections up front so a bad experiment is never persisted.
	if err := generate.ValidateSelections(s.catalog, s.providers, exp); err != nil {
		writeError(w, err)
		return
	}

	if err := s.store.CreateExperiment(r.Context(), exp); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListExperiments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.GetExperiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, exp)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exp, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	jobs, err := s.store.ListJobs(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(jobs) == 0 {
		if _, err := generate.BuildMatrix(r.Context(), s.store, s.catalog, s.providers, exp); err != nil {
			writeError(w, err)
			return
		}
	} else if !hasPending(jobs) {
		// Every job is terminal; re-running would walk the experiment status
		// backwards. Failed jobs go through the single-job retry path.
		writeError(w, model.NewValidationError("experiment", "experiment %s has no pending jobs", id))
		return
	}

	s.mu.Lock()
	if _, busy := s.running[id]; busy {
		s.mu.Unlock()
		writeError(w, model.NewValidationError("experiment", "generation already running for %s", id))
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.running[id] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, id)
			s.mu.Unlock()
			cancel()
		}()
		if err := s.orchestrator.Run(runCtx, id); err != nil {
			zap.L().Error("generation run failed", zap.String("experiment_id", id), zap.Error(err))
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":        "accepted",
		"experiment_id": id,
	})
}

func hasPending(jobs []model.GenerationJob) bool {
	for _, j := range jobs {
		if j.Status == model.JobStatusPending {
			return true
		}
	}
	return false
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		writeError(w, model.NewValidationError("experiment", "no generation running for %s", id))
		return
	}

	cancel()
	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "cancelling",
		"experiment_id": id,
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetExperiment(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.store.Progress(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleNextEvaluation(w http.ResponseWriter, r *http.Request) {
	item, err := s.sequencer.Next(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if item == nil {
		respondJSON(w, http.StatusOK, map[string]any{"done": true})
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleSubmitEvaluation(w http.ResponseWriter, r *http.Request) {
	var entry model.EvaluationEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, model.NewValidationError("body", "invalid JSON: %v", err))
		return
	}
	if entry.BlindID == "" {
		writeError(w, model.NewValidationError("blind_id", "blind_id is required"))
		return
	}
	if err := s.sequencer.Submit(r.Context(), &entry); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleEvaluationProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetExperiment(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.sequencer.EvalProgress(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	rev, err := s.sequencer.RevealItem(r.Context(), chi.URLParam(r, "blindID"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rev)
}

func (s *Server) collect(w http.ResponseWriter, r *http.Request) ([]analysis.Record, bool) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetExperiment(r.Context(), id); err != nil {
		writeError(w, err)
		return nil, false
	}
	records, err := analysis.Collect(r.Context(), s.store, id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return records, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	records, ok := s.collect(w, r)
	if !ok {
		return
	}
	opts := analysis.Options{RequireComplete: r.URL.Query().Get("complete") == "true"}
	summary, err := analysis.Summarize(chi.URLParam(r, "id"), records, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleByModel(w http.ResponseWriter, r *http.Request) {
	if records, ok := s.collect(w, r); ok {
		respondJSON(w, http.StatusOK, analysis.ByModel(records))
	}
}

func (s *Server) handleByStrategy(w http.ResponseWriter, r *http.Request) {
	if records, ok := s.collect(w, r); ok {
		respondJSON(w, http.StatusOK, analysis.ByStrategy(records))
	}
}

func (s *Server) handleByTask(w http.ResponseWriter, r *http.Request) {
	if records, ok := s.collect(w, r); ok {
		respondJSON(w, http.StatusOK, analysis.ByTask(records))
	}
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if records, ok := s.collect(w, r); ok {
		respondJSON(w, http.StatusOK, analysis.ByModelStrategy(records))
	}
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	records, ok := s.collect(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="experiment-%s.csv"`, id))
	if err := analysis.ExportCSV(w, records); err != nil {
		zap.L().Error("csv export failed", zap.String("experiment_id", id), zap.Error(err))
	}
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	records, ok := s.collect(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	tmp, err := exportXLSXTemp(id, records)
	if err != nil {
		writeError(w, err)
		return
	}
	defer tmp.cleanup()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="experiment-%s.xlsx"`, id))
	http.ServeFile(w, r, tmp.path)
}

type tempExport struct {
	path string
	dir  string
}

func (t tempExport) cleanup() {
	os.RemoveAll(t.dir) //nolint:errcheck
}

// exportXLSXTemp writes the workbook to a temp file; the xlsx writer needs a
// seekable target, so the response is served from disk.
func exportXLSXTemp(id string, records []analysis.Record) (tempExport, error) {
	dir, err := os.MkdirTemp("", "styleval-export")
	if err != nil {
		return tempExport{}, eris.Wrap(err, "server: create temp dir")
	}
	path := filepath.Join(dir, fmt.Sprintf("experiment-%s.xlsx", id))
	if err := analysis.ExportXLSX(path, records); err != nil {
		os.RemoveAll(dir) //nolint:errcheck
		return tempExport{}, err
	}
	return tempExport{path: path, dir: dir}, nil
}

// respondJSON writes v as a JSON response.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateEvaluation):
		status = http.StatusConflict
	case errors.Is(err, model.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
