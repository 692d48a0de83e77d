package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PedramNavid/styleval/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetExperiment_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, description, style_samples, models, strategies, tasks, status, created_at, updated_at FROM experiments WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetExperiment(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateExperiment(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO experiments`).
		WithArgs(pgxmock.AnyArg(), "voice study", "baseline", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "draft", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	exp := &model.Experiment{
		Name:         "voice study",
		Description:  "baseline",
		StyleSamples: []string{"a", "b"},
		Models:       []model.ModelRef{{Provider: "anthropic", Model: "claude-haiku-4-5-20251001"}},
		Strategies:   []model.Strategy{model.StrategyStructured},
		Tasks:        []string{"task-a"},
	}
	err := s.CreateExperiment(context.Background(), exp)
	require.NoError(t, err)
	assert.NotEmpty(t, exp.ID)
	assert.Equal(t, model.ExperimentStatusDraft, exp.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateExperimentStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE experiments SET status = \$1`).
		WithArgs("generating", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateExperimentStatus(context.Background(), "missing", model.ExperimentStatusGenerating)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJobs_SingleTransaction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO generation_jobs`).
		WithArgs(pgxmock.AnyArg(), "exp-1", "anthropic", "claude-haiku-4-5-20251001", "structured", "task-a",
			"pending", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO generation_jobs`).
		WithArgs(pgxmock.AnyArg(), "exp-1", "openai", "gpt-4o-mini", "example_based", "task-b",
			"pending", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	jobs := []model.GenerationJob{
		{ExperimentID: "exp-1", Model: model.ModelRef{Provider: "anthropic", Model: "claude-haiku-4-5-20251001"}, Strategy: model.StrategyStructured, TaskID: "task-a"},
		{ExperimentID: "exp-1", Model: model.ModelRef{Provider: "openai", Model: "gpt-4o-mini"}, Strategy: model.StrategyExampleBased, TaskID: "task-b"},
	}
	err := s.CreateJobs(context.Background(), jobs)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJobs_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO generation_jobs`).
		WithArgs(pgxmock.AnyArg(), "exp-1", "anthropic", "m", "structured", "task-a",
			"pending", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	jobs := []model.GenerationJob{
		{ExperimentID: "exp-1", Model: model.ModelRef{Provider: "anthropic", Model: "m"}, Strategy: model.StrategyStructured, TaskID: "task-a"},
	}
	err := s.CreateJobs(context.Background(), jobs)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateEvaluation_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO evaluations`).
		WithArgs(pgxmock.AnyArg(), "res-1", "exp-1", "blind-1",
			4, 4, 3, 5, 4, "yes", 0, "", 60, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	ev := &model.EvaluationEntry{
		ResultID:     "res-1",
		ExperimentID: "exp-1",
		BlindID:      "blind-1",
		Scores:       model.Scores{VoiceMatch: 4, Coherence: 4, Engagement: 3, BriefFit: 5, Overall: 4},
		Verdict:      model.PublishYes,
		EvalSeconds:  60,
	}
	err := s.CreateEvaluation(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateEvaluation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResultByBlindID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM generation_results WHERE blind_id = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetResultByBlindID(context.Background(), "unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Progress(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"total", "pending", "running", "succeeded", "failed", "cost", "latency"}).
		AddRow(36, 4, 2, 28, 2, 0.42, 31250.0)
	mock.ExpectQuery(`SELECT`).
		WithArgs("exp-1").
		WillReturnRows(rows)

	p, err := s.Progress(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, 36, p.Total)
	assert.Equal(t, 28, p.Succeeded)
	assert.Equal(t, 2, p.Failed)
	assert.InDelta(t, 0.42, p.TotalCostUSD, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("plain")))
}
