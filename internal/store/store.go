// Package store is the single source of truth for experiments, jobs, results,
// and evaluations. All mutations are applied atomically per row so concurrent
// progress reads never observe a job in two states at once.
package store

import (
	"context"

	"github.com/PedramNavid/styleval/internal/model"
)

// Store defines the persistence interface for the evaluation pipeline.
type Store interface {
	// Experiments
	CreateExperiment(ctx context.Context, exp *model.Experiment) error
	GetExperiment(ctx context.Context, id string) (*model.Experiment, error)
	ListExperiments(ctx context.Context) ([]model.Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status model.ExperimentStatus) error

	// Jobs. CreateJobs inserts the full matrix in one transaction; a partial
	// matrix is never visible.
	CreateJobs(ctx context.Context, jobs []model.GenerationJob) error
	GetJob(ctx context.Context, id string) (*model.GenerationJob, error)
	ListJobs(ctx context.Context, experimentID string) ([]model.GenerationJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, attempts int, errKind, errDetail string) error

	// Results are append-only attempt records.
	CreateResult(ctx context.Context, res *model.GenerationResult) error
	ListResults(ctx context.Context, experimentID string) ([]model.GenerationResult, error)
	ListSucceededResults(ctx context.Context, experimentID string) ([]model.GenerationResult, error)
	GetResultByBlindID(ctx context.Context, blindID string) (*model.GenerationResult, error)

	// Evaluations are write-once per result; a second insert for the same
	// result fails with model.ErrDuplicateEvaluation.
	CreateEvaluation(ctx context.Context, ev *model.EvaluationEntry) error
	ListEvaluations(ctx context.Context, experimentID string) ([]model.EvaluationEntry, error)

	// Progress returns a consistent snapshot of job counts and running cost
	// and latency totals for an experiment.
	Progress(ctx context.Context, experimentID string) (*model.Progress, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
