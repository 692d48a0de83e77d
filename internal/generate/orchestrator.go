package generate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PedramNavid/styleval/internal/config"
	"github.com/PedramNavid/styleval/internal/model"
	"github.com/PedramNavid/styleval/internal/prompt"
	"github.com/PedramNavid/styleval/internal/provider"
	"github.com/PedramNavid/styleval/internal/resilience"
	"github.com/PedramNavid/styleval/internal/store"
	"github.com/PedramNavid/styleval/internal/tasks"
)

// Orchestrator runs an experiment's pending jobs against provider APIs with
// bounded concurrency. Every attempt writes an immutable result row; the job
// row tracks only current status and attempt count.
type Orchestrator struct {
	store    store.Store
	registry *provider.Registry
	catalog  *tasks.Catalog
	cfg      config.GenerateConfig
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(st store.Store, reg *provider.Registry, catalog *tasks.Catalog, cfg config.GenerateConfig) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.TimeoutSecs <= 0 {
		cfg.TimeoutSecs = 60
	}
	return &Orchestrator{store: st, registry: reg, catalog: catalog, cfg: cfg}
}

// Run dispatches all pending jobs of the experiment and blocks until every
// dispatched job reaches a terminal state or ctx is cancelled. Cancellation
// skips undispatched jobs and keeps completed successes; the experiment is
// moved to a terminal status only when all jobs are terminal.
func (o *Orchestrator) Run(ctx context.Context, experimentID string) error {
	exp, err := o.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return err
	}

	jobs, err := o.store.ListJobs(ctx, experimentID)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return model.NewValidationError("experiment", "experiment %s has no jobs; build the matrix first", experimentID)
	}

	if err := o.store.UpdateExperimentStatus(ctx, experimentID, model.ExperimentStatusGenerating); err != nil {
		return err
	}

	zap.L().Info("starting generation",
		zap.String("experiment_id", experimentID),
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", o.cfg.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i := range jobs {
		job := jobs[i]
		if job.Status != model.JobStatusPending {
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			o.runJob(gctx, exp, &job)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return o.finalize(context.WithoutCancel(ctx), experimentID)
}

// RetryJob re-runs a single failed job without rebuilding the matrix.
func (o *Orchestrator) RetryJob(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusFailed {
		return model.NewValidationError("job", "job %s is %s; only failed jobs can be retried", jobID, job.Status)
	}

	exp, err := o.store.GetExperiment(ctx, job.ExperimentID)
	if err != nil {
		return err
	}
	if err := o.store.UpdateExperimentStatus(ctx, exp.ID, model.ExperimentStatusGenerating); err != nil {
		return err
	}

	o.runJob(ctx, exp, job)
	return o.finalize(ctx, job.ExperimentID)
}

// finalize moves the experiment to a terminal status once every job is done.
func (o *Orchestrator) finalize(ctx context.Context, experimentID string) error {
	p, err := o.store.Progress(ctx, experimentID)
	if err != nil {
		return err
	}
	if !p.Done() {
		return nil
	}

	status := model.ExperimentStatusFailed
	if p.Succeeded > 0 {
		status = model.ExperimentStatusReadyForEvaluation
	}
	zap.L().Info("generation finished",
		zap.String("experiment_id", experimentID),
		zap.Int("succeeded", p.Succeeded),
		zap.Int("failed", p.Failed),
		zap.Float64("total_cost_usd", p.TotalCostUSD),
	)
	return o.store.UpdateExperimentStatus(ctx, experimentID, status)
}

// runJob drives one job through its attempts. Failures in bookkeeping writes
// are logged rather than returned: a lost status update must not cancel
// sibling jobs.
func (o *Orchestrator) runJob(ctx context.Context, exp *model.Experiment, job *model.GenerationJob) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("model", job.Model.String()),
		zap.String("strategy", string(job.Strategy)),
		zap.String("task_id", job.TaskID),
	)

	task, ok := o.catalog.Get(job.TaskID)
	if !ok {
		o.failJob(ctx, log, job, 0, string(provider.KindInvalidRequest), "unknown task id "+job.TaskID)
		return
	}
	text, err := prompt.Build(task, job.Strategy, exp.StyleSamples)
	if err != nil {
		o.failJob(ctx, log, job, 0, string(provider.KindInvalidRequest), err.Error())
		return
	}

	// Bookkeeping writes use a non-cancellable context so a cancelled run
	// still records the outcome of attempts that already happened.
	writeCtx := context.WithoutCancel(ctx)

	if err := o.store.UpdateJobStatus(writeCtx, job.ID, model.JobStatusRunning, job.Attempts, "", ""); err != nil {
		log.Error("mark job running", zap.Error(err))
		return
	}

	policy := resilience.RetryPolicy{
		MaxAttempts:    o.cfg.MaxAttempts,
		InitialBackoff: time.Duration(o.cfg.BackoffMS) * time.Millisecond,
		OnRetry:        resilience.RetryLogger(job.Model.Provider, "generate"),
	}

	attempts := 0
	_, err = resilience.DoVal(ctx, policy, func(ctx context.Context) (*provider.GenerateResult, error) {
		attempts++
		res, attemptErr := o.attempt(ctx, text, job)

		row := &model.GenerationResult{
			JobID:        job.ID,
			ExperimentID: job.ExperimentID,
			Attempt:      attempts,
			BlindID:      newBlindID(),
			Prompt:       text,
		}
		if attemptErr != nil {
			row.ErrorDetail = attemptErr.Error()
		} else {
			row.Content = res.Text
			row.InputTokens = res.InputTokens
			row.OutputTokens = res.OutputTokens
			row.CostUSD = res.CostUSD
			row.LatencyMS = float64(res.Latency.Milliseconds())
			row.Succeeded = true
		}
		if werr := o.store.CreateResult(writeCtx, row); werr != nil {
			log.Error("write result row", zap.Error(werr))
		}
		return res, attemptErr
	})
	if err != nil {
		o.failJob(writeCtx, log, job, attempts, string(provider.KindOf(err)), err.Error())
		return
	}

	if err := o.store.UpdateJobStatus(writeCtx, job.ID, model.JobStatusSucceeded, attempts, "", ""); err != nil {
		log.Error("mark job succeeded", zap.Error(err))
		return
	}
	log.Info("job succeeded", zap.Int("attempts", attempts))
}

// attempt performs one rate-limited provider call under the per-attempt
// timeout. A child context keeps the deadline local so the retry loop still
// sees the parent as live.
func (o *Orchestrator) attempt(ctx context.Context, text string, job *model.GenerationJob) (*provider.GenerateResult, error) {
	client, err := o.registry.Acquire(ctx, job.Model.Provider)
	if err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	return client.Generate(attemptCtx, provider.GenerateRequest{
		Model:       job.Model.Model,
		Prompt:      text,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
}

func (o *Orchestrator) failJob(ctx context.Context, log *zap.Logger, job *model.GenerationJob, attempts int, kind, detail string) {
	log.Warn("job failed", zap.Int("attempts", attempts), zap.String("error_kind", kind), zap.String("detail", detail))
	if err := o.store.UpdateJobStatus(ctx, job.ID, model.JobStatusFailed, attempts, kind, detail); err != nil {
		log.Error("mark job failed", zap.Error(err))
	}
}

// newBlindID returns an opaque 8-character code with no relation to the job's
// provider, model, or strategy.
func newBlindID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(eris.Wrap(err, "generate: read random"))
	}
	return hex.EncodeToString(b[:])
}
