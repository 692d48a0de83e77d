package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/PedramNavid/styleval/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS experiments (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	style_samples TEXT NOT NULL,
	models        TEXT NOT NULL,
	strategies    TEXT NOT NULL,
	tasks         TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'draft',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
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
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
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
	cost_usd      REAL NOT NULL DEFAULT 0,
	latency_ms    REAL NOT NULL DEFAULT 0,
	succeeded     INTEGER NOT NULL DEFAULT 0,
	error_detail  TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
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
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_experiment ON generation_jobs(experiment_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON generation_jobs(experiment_id, status);
CREATE INDEX IF NOT EXISTS idx_results_experiment ON generation_results(experiment_id);
CREATE INDEX IF NOT EXISTS idx_results_job ON generation_results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_blind ON generation_results(blind_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_experiment ON evaluations(experiment_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *model.Experiment) error {
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
		return eris.Wrap(err, "sqlite: marshal samples")
	}
	models, err := json.Marshal(exp.Models)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal models")
	}
	strategies, err := json.Marshal(exp.Strategies)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal strategies")
	}
	taskIDs, err := json.Marshal(exp.Tasks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tasks")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, description, style_samples, models, strategies, tasks, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Description, string(samples), string(models), string(strategies), string(taskIDs), string(exp.Status), now, now,
	)
	return eris.Wrap(err, "sqlite: insert experiment")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteExperiment(row scannable) (*model.Experiment, error) {
	var e model.Experiment
	var samples, models, strategies, taskIDs string

	err := row.Scan(&e.ID, &e.Name, &e.Description, &samples, &models, &strategies, &taskIDs, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(model.ErrNotFound, "sqlite: experiment")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan experiment")
	}

	if err := json.Unmarshal([]byte(samples), &e.StyleSamples); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal samples")
	}
	if err := json.Unmarshal([]byte(models), &e.Models); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal models")
	}
	if err := json.Unmarshal([]byte(strategies), &e.Strategies); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal strategies")
	}
	if err := json.Unmarshal([]byte(taskIDs), &e.Tasks); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal tasks")
	}
	return &e, nil
}

const sqliteSelectExperiment = `SELECT id, name, description, style_samples, models, strategies, tasks, status, created_at, updated_at FROM experiments`

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*model.Experiment, error) {
	return scanSQLiteExperiment(s.db.QueryRowContext(ctx, sqliteSelectExperiment+` WHERE id = ?`, id))
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]model.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectExperiment+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list experiments")
	}
	defer rows.Close()

	var out []model.Experiment
	for rows.Next() {
		e, err := scanSQLiteExperiment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list experiments iterate")
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, status model.ExperimentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update experiment status %s", id)
	}
	return checkRowsAffected(res, "experiment", id)
}

func (s *SQLiteStore) CreateJobs(ctx context.Context, jobs []model.GenerationJob) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range jobs {
		j := &jobs[i]
		if j.ID == "" {
			j.ID = uuid.New().String()
		}
		j.Status = model.JobStatusPending
		j.CreatedAt = now
		j.UpdatedAt = now

		_, err := tx.ExecContext(ctx,
			`INSERT INTO generation_jobs (id, experiment_id, provider, model, strategy, task_id, status, attempts, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.ExperimentID, j.Model.Provider, j.Model.Model, string(j.Strategy), j.TaskID, string(j.Status), 0, now, now,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert job")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit jobs")
}

const sqliteSelectJob = `SELECT id, experiment_id, provider, model, strategy, task_id, status, attempts, error_kind, error_detail, created_at, updated_at FROM generation_jobs`

func scanSQLiteJob(row scannable) (*model.GenerationJob, error) {
	var j model.GenerationJob
	err := row.Scan(&j.ID, &j.ExperimentID, &j.Model.Provider, &j.Model.Model, &j.Strategy, &j.TaskID, &j.Status, &j.Attempts, &j.ErrorKind, &j.ErrorDetail, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(model.ErrNotFound, "sqlite: job")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.GenerationJob, error) {
	return scanSQLiteJob(s.db.QueryRowContext(ctx, sqliteSelectJob+` WHERE id = ?`, id))
}

func (s *SQLiteStore) ListJobs(ctx context.Context, experimentID string) ([]model.GenerationJob, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectJob+` WHERE experiment_id = ? ORDER BY provider, model, strategy, task_id`, experimentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var out []model.GenerationJob
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, attempts int, errKind, errDetail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_jobs SET status = ?, attempts = ?, error_kind = ?, error_detail = ?, updated_at = ? WHERE id = ?`,
		string(status), attempts, errKind, errDetail, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) CreateResult(ctx context.Context, r *model.GenerationResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_results (id, job_id, experiment_id, attempt, blind_id, prompt, content, input_tokens, output_tokens, cost_usd, latency_ms, succeeded, error_detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobID, r.ExperimentID, r.Attempt, r.BlindID, r.Prompt, r.Content,
		r.InputTokens, r.OutputTokens, r.CostUSD, r.LatencyMS, r.Succeeded, r.ErrorDetail, r.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert result")
}

const sqliteSelectResult = `SELECT id, job_id, experiment_id, attempt, blind_id, prompt, content, input_tokens, output_tokens, cost_usd, latency_ms, succeeded, error_detail, created_at FROM generation_results`

func scanSQLiteResult(row scannable) (*model.GenerationResult, error) {
	var r model.GenerationResult
	err := row.Scan(&r.ID, &r.JobID, &r.ExperimentID, &r.Attempt, &r.BlindID, &r.Prompt, &r.Content,
		&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.LatencyMS, &r.Succeeded, &r.ErrorDetail, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(model.ErrNotFound, "sqlite: result")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan result")
	}
	return &r, nil
}

func (s *SQLiteStore) listResults(ctx context.Context, query string, args ...any) ([]model.GenerationResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var out []model.GenerationResult
	for rows.Next() {
		r, err := scanSQLiteResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) ListResults(ctx context.Context, experimentID string) ([]model.GenerationResult, error) {
	return s.listResults(ctx, sqliteSelectResult+` WHERE experiment_id = ? ORDER BY created_at, id`, experimentID)
}

func (s *SQLiteStore) ListSucceededResults(ctx context.Context, experimentID string) ([]model.GenerationResult, error) {
	return s.listResults(ctx, sqliteSelectResult+` WHERE experiment_id = ? AND succeeded = 1 ORDER BY created_at, id`, experimentID)
}

func (s *SQLiteStore) GetResultByBlindID(ctx context.Context, blindID string) (*model.GenerationResult, error) {
	return scanSQLiteResult(s.db.QueryRowContext(ctx, sqliteSelectResult+` WHERE blind_id = ?`, blindID))
}

func (s *SQLiteStore) CreateEvaluation(ctx context.Context, ev *model.EvaluationEntry) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	ev.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, result_id, experiment_id, blind_id, voice_match, coherence, engagement, brief_fit, overall, verdict, edit_minutes, notes, eval_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ResultID, ev.ExperimentID, ev.BlindID,
		ev.Scores.VoiceMatch, ev.Scores.Coherence, ev.Scores.Engagement, ev.Scores.BriefFit, ev.Scores.Overall,
		string(ev.Verdict), ev.EditMinutes, ev.Notes, ev.EvalSeconds, ev.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return eris.Wrap(model.ErrDuplicateEvaluation, "sqlite: insert evaluation")
		}
		return eris.Wrap(err, "sqlite: insert evaluation")
	}
	return nil
}

func (s *SQLiteStore) ListEvaluations(ctx context.Context, experimentID string) ([]model.EvaluationEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, result_id, experiment_id, blind_id, voice_match, coherence, engagement, brief_fit, overall, verdict, edit_minutes, notes, eval_seconds, created_at
		 FROM evaluations WHERE experiment_id = ? ORDER BY created_at, id`, experimentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evaluations")
	}
	defer rows.Close()

	var out []model.EvaluationEntry
	for rows.Next() {
		var ev model.EvaluationEntry
		err := rows.Scan(&ev.ID, &ev.ResultID, &ev.ExperimentID, &ev.BlindID,
			&ev.Scores.VoiceMatch, &ev.Scores.Coherence, &ev.Scores.Engagement, &ev.Scores.BriefFit, &ev.Scores.Overall,
			&ev.Verdict, &ev.EditMinutes, &ev.Notes, &ev.EvalSeconds, &ev.CreatedAt)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evaluation")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list evaluations iterate")
}

func (s *SQLiteStore) Progress(ctx context.Context, experimentID string) (*model.Progress, error) {
	p := model.Progress{ExperimentID: experimentID}

	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			(SELECT COALESCE(SUM(cost_usd), 0) FROM generation_results WHERE experiment_id = ?),
			(SELECT COALESCE(SUM(latency_ms), 0) FROM generation_results WHERE experiment_id = ?)
		 FROM generation_jobs WHERE experiment_id = ?`,
		experimentID, experimentID, experimentID,
	).Scan(&p.Total, &p.Pending, &p.Running, &p.Succeeded, &p.Failed, &p.TotalCostUSD, &p.TotalLatencyMS)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: progress")
	}
	return &p, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
