// Package generate builds the job matrix for an experiment and drives
// generation across providers with bounded concurrency and retries.
package generate

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/PedramNavid/styleval/internal/model"
	"github.com/PedramNavid/styleval/internal/store"
	"github.com/PedramNavid/styleval/internal/tasks"
)

// BuildMatrix validates the experiment's selections and persists one pending
// job per (model, strategy, task) combination in a single transaction.
// Building is rejected when jobs already exist for the experiment.
func BuildMatrix(ctx context.Context, st store.Store, catalog *tasks.Catalog, knownProviders []string, exp *model.Experiment) ([]model.GenerationJob, error) {
	if err := ValidateSelections(catalog, knownProviders, exp); err != nil {
		return nil, err
	}

	existing, err := st.ListJobs(ctx, exp.ID)
	if err != nil {
		return nil, eris.Wrap(err, "generate: list jobs")
	}
	if len(existing) > 0 {
		return nil, model.NewValidationError("experiment", "experiment %s already has %d jobs", exp.ID, len(existing))
	}

	jobs := make([]model.GenerationJob, 0, exp.MatrixSize())
	for _, ref := range exp.Models {
		for _, strategy := range exp.Strategies {
			for _, taskID := range exp.Tasks {
				jobs = append(jobs, model.GenerationJob{
					ExperimentID: exp.ID,
					Model:        ref,
					Strategy:     strategy,
					TaskID:       taskID,
				})
			}
		}
	}

	if err := st.CreateJobs(ctx, jobs); err != nil {
		return nil, eris.Wrap(err, "generate: create jobs")
	}
	return jobs, nil
}

// ValidateSelections checks an experiment's model, strategy, task, and sample
// selections without touching the store.
func ValidateSelections(catalog *tasks.Catalog, knownProviders []string, exp *model.Experiment) error {
	if len(exp.Models) == 0 {
		return model.NewValidationError("models", "at least one model is required")
	}
	if len(exp.Strategies) == 0 {
		return model.NewValidationError("strategies", "at least one strategy is required")
	}
	if len(exp.Tasks) == 0 {
		return model.NewValidationError("tasks", "at least one task is required")
	}
	if n := len(exp.StyleSamples); n < 2 || n > 3 {
		return model.NewValidationError("style_samples", "expected 2-3 style samples, got %d", n)
	}

	providers := make(map[string]bool, len(knownProviders))
	for _, p := range knownProviders {
		providers[p] = true
	}
	seenModels := make(map[model.ModelRef]bool, len(exp.Models))
	for _, ref := range exp.Models {
		if !providers[ref.Provider] {
			return model.NewValidationError("models", "unknown provider %q", ref.Provider)
		}
		if ref.Model == "" {
			return model.NewValidationError("models", "model id is required for provider %q", ref.Provider)
		}
		if seenModels[ref] {
			return model.NewValidationError("models", "duplicate model %q", ref.String())
		}
		seenModels[ref] = true
	}

	known := make(map[model.Strategy]bool, len(model.Strategies))
	for _, s := range model.Strategies {
		known[s] = true
	}
	seenStrategies := make(map[model.Strategy]bool, len(exp.Strategies))
	for _, s := range exp.Strategies {
		if !known[s] {
			return model.NewValidationError("strategies", "unknown strategy %q", s)
		}
		if seenStrategies[s] {
			return model.NewValidationError("strategies", "duplicate strategy %q", s)
		}
		seenStrategies[s] = true
	}

	seenTasks := make(map[string]bool, len(exp.Tasks))
	for _, id := range exp.Tasks {
		if _, ok := catalog.Get(id); !ok {
			return model.NewValidationError("tasks", "unknown task id %q", id)
		}
		if seenTasks[id] {
			return model.NewValidationError("tasks", "duplicate task id %q", id)
		}
		seenTasks[id] = true
	}
	return nil
}
