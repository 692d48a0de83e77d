package evaluate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PedramNavid/styleval/internal/model"
	"github.com/PedramNavid/styleval/internal/store"
	"github.com/PedramNavid/styleval/internal/tasks"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newSequencer(t *testing.T, st *store.SQLiteStore) *Sequencer {
	t.Helper()
	catalog, err := tasks.Load("")
	require.NoError(t, err)
	return NewSequencer(st, catalog)
}

// seedPool creates an experiment with n succeeded results spread over tasks
// A and B, plus one failed result that must never enter the pool.
func seedPool(t *testing.T, st *store.SQLiteStore, n int) *model.Experiment {
	t.Helper()
	ctx := context.Background()

	exp := &model.Experiment{
		Name:         "blind pool",
		StyleSamples: []string{"one", "two"},
		Models:       []model.ModelRef{{Provider: "anthropic", Model: "claude-haiku-4-5-20251001"}},
		Strategies:   []model.Strategy{model.StrategyStructured},
		Tasks:        []string{"A", "B"},
	}
	require.NoError(t, st.CreateExperiment(ctx, exp))

	var jobs []model.GenerationJob
	for i := 0; i < n; i++ {
		taskID := "A"
		if i%2 == 1 {
			taskID = "B"
		}
		jobs = append(jobs, model.GenerationJob{
			ExperimentID: exp.ID,
			Model:        model.ModelRef{Provider: "anthropic", Model: fmt.Sprintf("model-%d", i)},
			Strategy:     model.StrategyStructured,
			TaskID:       taskID,
		})
	}
	require.NoError(t, st.CreateJobs(ctx, jobs))

	persisted, err := st.ListJobs(ctx, exp.ID)
	require.NoError(t, err)
	for i, j := range persisted {
		require.NoError(t, st.CreateResult(ctx, &model.GenerationResult{
			JobID:        j.ID,
			ExperimentID: exp.ID,
			Attempt:      1,
			BlindID:      fmt.Sprintf("blind-%02d", i),
			Prompt:       "p",
			Content:      fmt.Sprintf("content %d", i),
			Succeeded:    true,
			CostUSD:      0.001,
		}))
	}
	// A failed attempt row stays out of the pool.
	require.NoError(t, st.CreateResult(ctx, &model.GenerationResult{
		JobID:        persisted[0].ID,
		ExperimentID: exp.ID,
		Attempt:      2,
		BlindID:      "blind-fail",
		Prompt:       "p",
		Succeeded:    false,
		ErrorDetail:  "overloaded",
	}))

	require.NoError(t, st.UpdateExperimentStatus(ctx, exp.ID, model.ExperimentStatusReadyForEvaluation))
	return exp
}

func validEntry(blindID string) *model.EvaluationEntry {
	return &model.EvaluationEntry{
		BlindID: blindID,
		Scores:  model.Scores{VoiceMatch: 4, Coherence: 4, Engagement: 3, BriefFit: 5, Overall: 4},
		Verdict: model.PublishYes,
	}
}

func TestSequencer_NextIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 4)
	seq := newSequencer(t, st)
	ctx := context.Background()

	first, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 4, first.Remaining)

	// Peeking again without submitting returns the same item.
	again, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.BlindID, again.BlindID)
	assert.Equal(t, first.Position, again.Position)
}

func TestSequencer_FirstNextMovesToEvaluating(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 2)
	seq := newSequencer(t, st)
	ctx := context.Background()

	_, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)

	fetched, err := st.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExperimentStatusEvaluating, fetched.Status)
}

func TestSequencer_OrderStableAcrossRebuilds(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 6)
	ctx := context.Background()

	var order []string
	seq := newSequencer(t, st)
	for {
		item, err := seq.Next(ctx, exp.ID)
		require.NoError(t, err)
		if item == nil {
			break
		}
		order = append(order, item.BlindID)
		require.NoError(t, seq.Submit(ctx, validEntry(item.BlindID)))
		// A fresh sequencer (simulating a restart) agrees on the next item.
		seq = newSequencer(t, st)
	}
	require.Len(t, order, 6)

	seen := make(map[string]bool)
	for _, id := range order {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.False(t, seen["blind-fail"], "failed results must not be served")
}

func TestSequencer_DeIdentification(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 2)
	seq := newSequencer(t, st)

	item, err := seq.Next(context.Background(), exp.ID)
	require.NoError(t, err)
	require.NotNil(t, item)

	// The item exposes task context and content only.
	assert.NotEmpty(t, item.Content)
	assert.NotEmpty(t, item.TaskTitle)
	assert.NotEmpty(t, item.TaskBrief)
	assert.NotEmpty(t, item.ContentType)
	assert.NotContains(t, item.BlindID, "anthropic")
}

func TestSequencer_SubmitDuplicate(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 3)
	seq := newSequencer(t, st)
	ctx := context.Background()

	item, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NoError(t, seq.Submit(ctx, validEntry(item.BlindID)))

	err = seq.Submit(ctx, validEntry(item.BlindID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateEvaluation))
}

func TestSequencer_SubmitUnknownBlindID(t *testing.T) {
	st := newTestStore(t)
	seedPool(t, st, 2)
	seq := newSequencer(t, st)

	err := seq.Submit(context.Background(), validEntry("no-such-id"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSequencer_SubmitValidation(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 2)
	seq := newSequencer(t, st)
	ctx := context.Background()

	item, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)

	outOfRange := validEntry(item.BlindID)
	outOfRange.Scores.Overall = 6
	err = seq.Submit(ctx, outOfRange)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	badVerdict := validEntry(item.BlindID)
	badVerdict.Verdict = "maybe"
	err = seq.Submit(ctx, badVerdict)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	negative := validEntry(item.BlindID)
	negative.EditMinutes = -1
	err = seq.Submit(ctx, negative)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestSequencer_LastSubmitMovesToAnalyzed(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 2)
	seq := newSequencer(t, st)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		item, err := seq.Next(ctx, exp.ID)
		require.NoError(t, err)
		require.NotNil(t, item)
		require.NoError(t, seq.Submit(ctx, validEntry(item.BlindID)))
	}

	item, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, item, "pool is exhausted")

	fetched, err := st.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExperimentStatusAnalyzed, fetched.Status)
}

func TestSequencer_EvalProgress(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 4)
	seq := newSequencer(t, st)
	ctx := context.Background()

	p, err := seq.EvalProgress(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, 0, p.Evaluated)

	item, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)
	require.NoError(t, seq.Submit(ctx, validEntry(item.BlindID)))

	p, err = seq.EvalProgress(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Evaluated)
	assert.Equal(t, 3, p.Remaining)
}

func TestSequencer_Reveal(t *testing.T) {
	st := newTestStore(t)
	exp := seedPool(t, st, 2)
	seq := newSequencer(t, st)
	ctx := context.Background()

	item, err := seq.Next(ctx, exp.ID)
	require.NoError(t, err)

	// Reveal before evaluation is refused.
	_, err = seq.RevealItem(ctx, item.BlindID)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	require.NoError(t, seq.Submit(ctx, validEntry(item.BlindID)))

	rev, err := seq.RevealItem(ctx, item.BlindID)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", rev.Model.Provider)
	assert.NotEmpty(t, rev.Model.Model)
	assert.Equal(t, model.StrategyStructured, rev.Strategy)
	assert.Equal(t, model.PublishYes, rev.Entry.Verdict)
}

func TestSequencer_NextBeforeGenerationDone(t *testing.T) {
	st := newTestStore(t)
	seq := newSequencer(t, st)
	ctx := context.Background()

	exp := &model.Experiment{
		Name:         "early",
		StyleSamples: []string{"one", "two"},
		Models:       []model.ModelRef{{Provider: "anthropic", Model: "m"}},
		Strategies:   []model.Strategy{model.StrategyStructured},
		Tasks:        []string{"A"},
	}
	require.NoError(t, st.CreateExperiment(ctx, exp))

	_, err := seq.Next(ctx, exp.ID)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}
