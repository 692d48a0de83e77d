package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/PedramNavid/styleval/internal/model"
)

// Pool abstracts pgxpool.Pool so PostgresStore can be unit-tested with pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS experiments (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	style_samples JSONB NOT NULL,
	models        JSONB NOT NULL,
	strategies    JSONB NOT NULL,
	tasks         JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS generation_jobs (
	id            TEXT PRIMARY KEY,
	experiment_id TEXT NOT NULL REFERENCES experiments(id),
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	task_id       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	attempts      INTEGER NOT NULL DEFAULT 0,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_detail  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (experiment_id, provider, model, strategy, task_id)
);

CREATE TABLE IF NOT EXISTS generation_results (
	id            TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL REFERENCES generation_jobs(id),
	experiment_id TEXT NOT NULL REFERENCES experiments(id),
	attempt       INTEGER NOT NULL,
	blind_id      TEXT NOT NULL UNIQUE,
	prompt        TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	latency_ms    DOUBLE PRECISION NOT NULL DEFAULT 0,
	succeeded     BOOLEAN NOT NULL DEFAULT false,
	error_detail  TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS evaluations (
	id            TEXT PRIMARY KEY,
	result_id     TEXT NOT NULL UNIQUE REFERENCES generation_results(id),
	experiment_id TEXT NOT NULL REFERENCES experiments(id),
	blind_id      TEXT NOT NULL,
	voice_match   INTEGER NOT NULL,
	coherence     INTEGER NOT NULL,
	engagement    INTEGER NOT NULL,
	brief_fit     INTEGER NOT NULL,
	overall       INTEGER NOT NULL,
	verdict       TEXT NOT NULL,
	edit_minutes  INTEGER NOT NULL DEFAULT 0,
	notes         TEXT NOT NULL DEFAULT '',
	eval_seconds  INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_experiment ON generation_jobs(experiment_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON generation_jobs(experiment_id, status);
CREATE INDEX IF NOT EXISTS idx_results_experiment ON generation_results(experiment_id);
CREATE INDEX IF NOT EXISTS idx_results_job ON generation_results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_blind ON generation_results(blind_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_experiment ON evaluations(experiment_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateExperiment(ctx context.Context, exp *model.Experiment) error {
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	exp.CreatedAt = now
	exp.UpdatedAt = now
	if exp.Status == "" {
		exp.Status = model.ExperimentStatusDraft
	}

	samples, err := json.Marshal(exp.StyleSamples)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal samples")
	}
	models, err := json.Marshal(exp.Models)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal models")
	}
	strategies, err := json.Marshal(exp.Strategies)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal strategies")
	}
	taskIDs, err := json.Marshal(exp.Tasks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tasks")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO experiments (id, name, description, style_samples, models, strategies, tasks, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		exp.ID, exp.Name, exp.Description, samples, models, strategies, taskIDs, string(exp.Status), now, now,
	)
	return eris.Wrap(err, "postgres: insert experiment")
}

func scanExperiment(row pgx.Row) (*model.Experiment, error) {
	var e model.Experiment
	var samples, models, strategies, taskIDs []byte

	err := row.Scan(&e.ID, &e.Name, &e.Description, &samples, &models, &strategies, &taskIDs, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(model.ErrNotFound, "postgres: experiment")
		}
		return nil, eris.Wrap(err, "postgres: scan experiment")
	}

	if err := json.Unmarshal(samples, &e.StyleSamples); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal samples")
	}
	if err := json.Unmarshal(models, &e.Models); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal models")
	}
	if err := json.Unmarshal(strategies, &e.Strategies); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal strategies")
	}
	if err := json.Unmarshal(taskIDs, &e.Tasks); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal tasks")
	}
	return &e, nil
}

const selectExperiment = `SELECT id, name, description, style_samples, models, strategies, tasks, status, created_at, updated_at FROM experiments`

func (s *PostgresStore) GetExperiment(ctx context.Context, id string) (*model.Experiment, error) {
	return scanExperiment(s.pool.QueryRow(ctx, selectExperiment+` WHERE id = $1`, id))
}

func (s *PostgresStore) ListExperiments(ctx context.Context) ([]model.Experiment, error) {
	rows, err := s.pool.Query(ctx, selectExperiment+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list experiments")
	}
	defer rows.Close()

	var out []model.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list experiments")
}

func (s *PostgresStore) UpdateExperimentStatus(ctx context.Context, id string, status model.ExperimentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE experiments SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update experiment status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: experiment %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateJobs(ctx context.Context, jobs []model.GenerationJob) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for i := range jobs {
		j := &jobs[i]
		if j.ID == "" {
			j.ID = uuid.New().String()
		}
		j.Status = model.JobStatusPending
		j.CreatedAt = now
		j.UpdatedAt = now

		_, err := tx.Exec(ctx,
			`INSERT INTO generation_jobs (id, experiment_id, provider, model, strategy, task_id, status, attempts, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			j.ID, j.ExperimentID, j.Model.Provider, j.Model.Model, string(j.Strategy), j.TaskID, string(j.Status), 0, now, now,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert job")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit jobs")
}

const selectJob = `SELECT id, experiment_id, provider, model, strategy, task_id, status, attempts, error_kind, error_detail, created_at, updated_at FROM generation_jobs`

func scanJob(row pgx.Row) (*model.GenerationJob, error) {
	var j model.GenerationJob
	err := row.Scan(&j.ID, &j.ExperimentID, &j.Model.Provider, &j.Model.Model, &j.Strategy, &j.TaskID, &j.Status, &j.Attempts, &j.ErrorKind, &j.ErrorDetail, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(model.ErrNotFound, "postgres: job")
		}
		return nil, eris.Wrap(err, "postgres: scan job")
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.GenerationJob, error) {
	return scanJob(s.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, id))
}

func (s *PostgresStore) ListJobs(ctx context.Context, experimentID string) ([]model.GenerationJob, error) {
	rows, err := s.pool.Query(ctx, selectJob+` WHERE experiment_id = $1 ORDER BY provider, model, strategy, task_id`, experimentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var out []model.GenerationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list jobs")
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, attempts int, errKind, errDetail string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE generation_jobs SET status = $1, attempts = $2, error_kind = $3, error_detail = $4, updated_at = $5 WHERE id = $6`,
		string(status), attempts, errKind, errDetail, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: job %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateResult(ctx context.Context, res *model.GenerationResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	res.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO generation_results (id, job_id, experiment_id, attempt, blind_id, prompt, content, input_tokens, output_tokens, cost_usd, latency_ms, succeeded, error_detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		res.ID, res.JobID, res.ExperimentID, res.Attempt, res.BlindID, res.Prompt, res.Content,
		res.InputTokens, res.OutputTokens, res.CostUSD, res.LatencyMS, res.Succeeded, res.ErrorDetail, res.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert result")
}

const selectResult = `SELECT id, job_id, experiment_id, attempt, blind_id, prompt, content, input_tokens, output_tokens, cost_usd, latency_ms, succeeded, error_detail, created_at FROM generation_results`

func scanResult(row pgx.Row) (*model.GenerationResult, error) {
	var r model.GenerationResult
	err := row.Scan(&r.ID, &r.JobID, &r.ExperimentID, &r.Attempt, &r.BlindID, &r.Prompt, &r.Content,
		&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.LatencyMS, &r.Succeeded, &r.ErrorDetail, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(model.ErrNotFound, "postgres: result")
		}
		return nil, eris.Wrap(err, "postgres: scan result")
	}
	return &r, nil
}

func (s *PostgresStore) listResults(ctx context.Context, query string, args ...any) ([]model.GenerationResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.GenerationResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results")
}

func (s *PostgresStore) ListResults(ctx context.Context, experimentID string) ([]model.GenerationResult, error) {
	return s.listResults(ctx, selectResult+` WHERE experiment_id = $1 ORDER BY created_at`, experimentID)
}

func (s *PostgresStore) ListSucceededResults(ctx context.Context, experimentID string) ([]model.GenerationResult, error) {
	return s.listResults(ctx, selectResult+` WHERE experiment_id = $1 AND succeeded ORDER BY created_at`, experimentID)
}

func (s *PostgresStore) GetResultByBlindID(ctx context.Context, blindID string) (*model.GenerationResult, error) {
	return scanResult(s.pool.QueryRow(ctx, selectResult+` WHERE blind_id = $1`, blindID))
}

func (s *PostgresStore) CreateEvaluation(ctx context.Context, ev *model.EvaluationEntry) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO evaluations (id, result_id, experiment_id, blind_id, voice_match, coherence, engagement, brief_fit, overall, verdict, edit_minutes, notes, eval_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ev.ID, ev.ResultID, ev.ExperimentID, ev.BlindID,
		ev.Scores.VoiceMatch, ev.Scores.Coherence, ev.Scores.Engagement, ev.Scores.BriefFit, ev.Scores.Overall,
		string(ev.Verdict), ev.EditMinutes, ev.Notes, ev.EvalSeconds, ev.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrap(model.ErrDuplicateEvaluation, "postgres: insert evaluation")
		}
		return eris.Wrap(err, "postgres: insert evaluation")
	}
	return nil
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, experimentID string) ([]model.EvaluationEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, result_id, experiment_id, blind_id, voice_match, coherence, engagement, brief_fit, overall, verdict, edit_minutes, notes, eval_seconds, created_at
		 FROM evaluations WHERE experiment_id = $1 ORDER BY created_at`, experimentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evaluations")
	}
	defer rows.Close()

	var out []model.EvaluationEntry
	for rows.Next() {
		var ev model.EvaluationEntry
		err := rows.Scan(&ev.ID, &ev.ResultID, &ev.ExperimentID, &ev.BlindID,
			&ev.Scores.VoiceMatch, &ev.Scores.Coherence, &ev.Scores.Engagement, &ev.Scores.BriefFit, &ev.Scores.Overall,
			&ev.Verdict, &ev.EditMinutes, &ev.Notes, &ev.EvalSeconds, &ev.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan evaluation")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list evaluations")
}

// Progress computes the snapshot in a single statement so job counts and
// running totals come from one consistent read.
func (s *PostgresStore) Progress(ctx context.Context, experimentID string) (*model.Progress, error) {
	p := model.Progress{ExperimentID: experimentID}

	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'succeeded'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			(SELECT COALESCE(SUM(cost_usd), 0) FROM generation_results WHERE experiment_id = $1),
			(SELECT COALESCE(SUM(latency_ms), 0) FROM generation_results WHERE experiment_id = $1)
		 FROM generation_jobs WHERE experiment_id = $1`,
		experimentID,
	).Scan(&p.Total, &p.Pending, &p.Running, &p.Succeeded, &p.Failed, &p.TotalCostUSD, &p.TotalLatencyMS)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: progress")
	}
	return &p, nil
}
