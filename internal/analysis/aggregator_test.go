package analysis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PedramNavid/styleval/internal/model"
)

// rec builds a scored record for the given combination.
func rec(provider, modelID string, strategy model.Strategy, taskID string, scores model.Scores, verdict model.PublishVerdict, editMin int, cost, latency float64) Record {
	jobID := fmt.Sprintf("%s-%s-%s-%s", provider, modelID, strategy, taskID)
	return Record{
		Job: model.GenerationJob{
			ID:       jobID,
			Model:    model.ModelRef{Provider: provider, Model: modelID},
			Strategy: strategy,
			TaskID:   taskID,
			Status:   model.JobStatusSucceeded,
			Attempts: 1,
		},
		Result: &model.GenerationResult{
			ID:        jobID + "-res",
			JobID:     jobID,
			BlindID:   jobID + "-blind",
			CostUSD:   cost,
			LatencyMS: latency,
			Succeeded: true,
		},
		Eval: &model.EvaluationEntry{
			ResultID:    jobID + "-res",
			Scores:      scores,
			Verdict:     verdict,
			EditMinutes: editMin,
		},
	}
}

func failedRec(provider, modelID string, strategy model.Strategy, taskID, kind string) Record {
	return Record{
		Job: model.GenerationJob{
			ID:        fmt.Sprintf("failed-%s-%s", modelID, taskID),
			Model:     model.ModelRef{Provider: provider, Model: modelID},
			Strategy:  strategy,
			TaskID:    taskID,
			Status:    model.JobStatusFailed,
			Attempts:  3,
			ErrorKind: kind,
		},
	}
}

func allFives() model.Scores {
	return model.Scores{VoiceMatch: 5, Coherence: 5, Engagement: 5, BriefFit: 5, Overall: 5}
}

func allThrees() model.Scores {
	return model.Scores{VoiceMatch: 3, Coherence: 3, Engagement: 3, BriefFit: 3, Overall: 3}
}

func TestSummarize_NoEvaluations(t *testing.T) {
	records := []Record{failedRec("anthropic", "m", model.StrategyStructured, "A", "timeout")}

	_, err := Summarize("exp-1", records, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInsufficientData))
}

func TestSummarize_Basic(t *testing.T) {
	records := []Record{
		rec("anthropic", "haiku", model.StrategyStructured, "A", allFives(), model.PublishYes, 0, 0.002, 800),
		rec("anthropic", "haiku", model.StrategyStructured, "B", allThrees(), model.PublishNo, 0, 0.002, 1200),
		rec("openai", "gpt-4o-mini", model.StrategyExampleBased, "A", allThrees(), model.PublishWithEdits, 15, 0.001, 600),
		failedRec("google", "gemini-2.0-flash", model.StrategyStructured, "A", "auth_failed"),
	}

	s, err := Summarize("exp-1", records, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalJobs)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.Evaluated)
	assert.False(t, s.Partial)
	assert.InDelta(t, (5.0+3+3)/3, s.Means.Overall, 1e-9)
	assert.InDelta(t, 2.0/3, s.PublishRate, 1e-9) // yes + with_edits
	assert.InDelta(t, 0.005, s.TotalCostUSD, 1e-9)

	require.NotNil(t, s.Best)
	assert.Equal(t, "anthropic/haiku|structured", s.Best.Key)
	require.NotNil(t, s.Worst)
	assert.Equal(t, "openai/gpt-4o-mini|example_based", s.Worst.Key)
}

func TestSummarize_PartialPool(t *testing.T) {
	scored := rec("anthropic", "haiku", model.StrategyStructured, "A", allFives(), model.PublishYes, 0, 0.002, 800)
	unscored := rec("anthropic", "haiku", model.StrategyStructured, "B", allFives(), model.PublishYes, 0, 0.002, 800)
	unscored.Eval = nil
	records := []Record{scored, unscored}

	s, err := Summarize("exp-1", records, Options{})
	require.NoError(t, err)
	assert.True(t, s.Partial)

	_, err = Summarize("exp-1", records, Options{RequireComplete: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInsufficientData))
}

func TestRanking_TieBreaks(t *testing.T) {
	// Same composite everywhere. Combo B wins on fewer edit minutes; between
	// A and C (equal edits) the cheaper one ranks higher.
	records := []Record{
		rec("anthropic", "combo-a", model.StrategyStructured, "A", allThrees(), model.PublishYes, 10, 0.004, 500),
		rec("anthropic", "combo-b", model.StrategyStructured, "A", allThrees(), model.PublishYes, 5, 0.004, 500),
		rec("anthropic", "combo-c", model.StrategyStructured, "A", allThrees(), model.PublishYes, 10, 0.002, 500),
	}

	ranked := ByModelStrategy(records)
	require.Len(t, ranked, 3)
	assert.Equal(t, "anthropic/combo-b|structured", ranked[0].Key)
	assert.Equal(t, "anthropic/combo-c|structured", ranked[1].Key)
	assert.Equal(t, "anthropic/combo-a|structured", ranked[2].Key)
}

func TestGroupings_Deterministic(t *testing.T) {
	records := []Record{
		rec("anthropic", "haiku", model.StrategyStructured, "A", allFives(), model.PublishYes, 0, 0.002, 800),
		rec("anthropic", "haiku", model.StrategyExampleBased, "A", allThrees(), model.PublishNo, 0, 0.002, 800),
		rec("openai", "gpt-4o-mini", model.StrategyStructured, "B", allThrees(), model.PublishYes, 0, 0.001, 400),
	}

	first := ByModel(records)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ByModel(records))
	}

	strategies := ByStrategy(records)
	require.Len(t, strategies, 2)
	assert.Equal(t, "structured", strategies[0].Key)

	heat := ByModelStrategy(records)
	assert.Len(t, heat, 3)
}

func TestByTask(t *testing.T) {
	records := []Record{
		rec("anthropic", "haiku", model.StrategyStructured, "A", allFives(), model.PublishYes, 0, 0.002, 800),
		rec("openai", "gpt-4o-mini", model.StrategyStructured, "A", allThrees(), model.PublishNo, 0, 0.001, 400),
		rec("anthropic", "haiku", model.StrategyStructured, "B", allThrees(), model.PublishWithEdits, 5, 0.002, 800),
	}

	byTask := ByTask(records)
	require.Len(t, byTask, 2)
	assert.Equal(t, "A", byTask[0].TaskID)
	assert.Equal(t, 2, byTask[0].Evaluated)
	require.NotNil(t, byTask[0].Best)
	assert.Equal(t, "anthropic/haiku|structured", byTask[0].Best.Key)
	assert.InDelta(t, 0.5, byTask[0].PublishRate, 1e-9)
	assert.InDelta(t, 1.0, byTask[1].PublishRate, 1e-9)
}

func TestCorrelate(t *testing.T) {
	// Composite rises exactly with cost: perfect positive correlation.
	// Latency falls as composite rises: perfect negative correlation.
	records := []Record{
		rec("a", "m1", model.StrategyStructured, "A", model.Scores{VoiceMatch: 1, Coherence: 1, Engagement: 1, BriefFit: 1, Overall: 1}, model.PublishNo, 0, 0.001, 900),
		rec("a", "m2", model.StrategyStructured, "A", allThrees(), model.PublishNo, 0, 0.003, 700),
		rec("a", "m3", model.StrategyStructured, "A", allFives(), model.PublishYes, 0, 0.005, 500),
	}

	c := Correlate(records)
	assert.Equal(t, 3, c.N)
	assert.InDelta(t, 1.0, c.CompositeCost, 1e-9)
	assert.InDelta(t, -1.0, c.CompositeLatency, 1e-9)
}

func TestCorrelate_NoVariance(t *testing.T) {
	records := []Record{
		rec("a", "m1", model.StrategyStructured, "A", allThrees(), model.PublishNo, 0, 0.001, 500),
		rec("a", "m2", model.StrategyStructured, "A", allThrees(), model.PublishNo, 0, 0.002, 600),
	}

	c := Correlate(records)
	assert.Zero(t, c.CompositeCost)
	assert.Zero(t, c.CompositeLatency)
}

func TestPearson_Degenerate(t *testing.T) {
	assert.Zero(t, pearson(nil, nil))
	assert.Zero(t, pearson([]float64{1}, []float64{2}))
	assert.Zero(t, pearson([]float64{1, 2}, []float64{3}))
}
