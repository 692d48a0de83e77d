// Package evaluate serves generated content for blind review. Items are
// de-identified and delivered in a per-experiment shuffled order so the
// reviewer can never infer which model or strategy produced a piece.
package evaluate

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sort"

	"github.com/PedramNavid/styleval/internal/model"
	"github.com/PedramNavid/styleval/internal/store"
	"github.com/PedramNavid/styleval/internal/tasks"
)

// Progress summarizes how far evaluation has advanced for an experiment.
type Progress struct {
	ExperimentID string `json:"experiment_id"`
	Total        int    `json:"total"`
	Evaluated    int    `json:"evaluated"`
	Remaining    int    `json:"remaining"`
}

// Reveal is the post-evaluation provenance of a blind item.
type Reveal struct {
	BlindID  string                `json:"blind_id"`
	Model    model.ModelRef        `json:"model"`
	Strategy model.Strategy        `json:"strategy"`
	TaskID   string                `json:"task_id"`
	CostUSD  float64               `json:"cost_usd"`
	Entry    model.EvaluationEntry `json:"evaluation"`
}

// Sequencer orders an experiment's succeeded results for blind evaluation.
// The order is a permutation seeded by the experiment id, so it is stable
// across process restarts and repeated peeks.
type Sequencer struct {
	store   store.Store
	catalog *tasks.Catalog
}

// NewSequencer creates a sequencer.
func NewSequencer(st store.Store, catalog *tasks.Catalog) *Sequencer {
	return &Sequencer{store: st, catalog: catalog}
}

// permute returns the experiment's evaluation pool in presentation order.
func permute(experimentID string, results []model.GenerationResult) []model.GenerationResult {
	// Stable base order independent of query plan.
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	h := fnv.New64a()
	h.Write([]byte(experimentID)) //nolint:errcheck
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed))
	rng.Shuffle(len(results), func(i, j int) {
		results[i], results[j] = results[j], results[i]
	})
	return results
}

func (s *Sequencer) pool(ctx context.Context, experimentID string) ([]model.GenerationResult, map[string]model.EvaluationEntry, error) {
	results, err := s.store.ListSucceededResults(ctx, experimentID)
	if err != nil {
		return nil, nil, err
	}
	results = permute(experimentID, results)

	evals, err := s.store.ListEvaluations(ctx, experimentID)
	if err != nil {
		return nil, nil, err
	}
	byResult := make(map[string]model.EvaluationEntry, len(evals))
	for _, ev := range evals {
		byResult[ev.ResultID] = ev
	}
	return results, byResult, nil
}

// Next returns the first unevaluated item in presentation order, or nil when
// the pool is exhausted. Calling Next repeatedly without submitting returns
// the same item. The first call moves the experiment into evaluating.
func (s *Sequencer) Next(ctx context.Context, experimentID string) (*model.BlindItem, error) {
	exp, err := s.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	switch exp.Status {
	case model.ExperimentStatusReadyForEvaluation, model.ExperimentStatusEvaluating, model.ExperimentStatusAnalyzed:
	default:
		return nil, model.NewValidationError("experiment", "experiment %s is %s; generation must finish first", experimentID, exp.Status)
	}

	results, evaluated, err := s.pool(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	remaining := 0
	var next *model.GenerationResult
	position := 0
	for i := range results {
		if _, done := evaluated[results[i].ID]; done {
			continue
		}
		remaining++
		if next == nil {
			next = &results[i]
			position = i + 1
		}
	}
	if next == nil {
		return nil, nil
	}

	if exp.Status == model.ExperimentStatusReadyForEvaluation {
		if err := s.store.UpdateExperimentStatus(ctx, experimentID, model.ExperimentStatusEvaluating); err != nil {
			return nil, err
		}
	}

	job, err := s.store.GetJob(ctx, next.JobID)
	if err != nil {
		return nil, err
	}
	task, ok := s.catalog.Get(job.TaskID)
	if !ok {
		return nil, model.NewValidationError("task", "unknown task id %q", job.TaskID)
	}

	return &model.BlindItem{
		BlindID:     next.BlindID,
		Content:     next.Content,
		TaskTitle:   task.Title,
		TaskBrief:   task.Brief,
		ContentType: string(task.ContentType),
		Position:    position,
		Remaining:   remaining,
	}, nil
}

// Submit records an evaluation for a blind item. The entry's scores must all
// be in [1,5] and the verdict must be valid. A second submission for the same
// item fails with ErrDuplicateEvaluation; submitting the final item moves the
// experiment to analyzed.
func (s *Sequencer) Submit(ctx context.Context, entry *model.EvaluationEntry) error {
	if !entry.Scores.InRange() {
		return model.NewValidationError("scores", "all scores must be between 1 and 5")
	}
	if !entry.Verdict.Valid() {
		return model.NewValidationError("verdict", "unknown verdict %q", entry.Verdict)
	}
	if entry.EditMinutes < 0 {
		return model.NewValidationError("edit_minutes", "edit minutes cannot be negative")
	}
	if entry.EvalSeconds < 0 {
		return model.NewValidationError("evaluation_seconds", "evaluation seconds cannot be negative")
	}

	res, err := s.store.GetResultByBlindID(ctx, entry.BlindID)
	if err != nil {
		return err
	}
	if !res.Succeeded {
		return model.NewValidationError("blind_id", "result %s is not part of the evaluation pool", entry.BlindID)
	}

	entry.ResultID = res.ID
	entry.ExperimentID = res.ExperimentID
	if err := s.store.CreateEvaluation(ctx, entry); err != nil {
		return err
	}

	p, err := s.EvalProgress(ctx, res.ExperimentID)
	if err != nil {
		return err
	}
	if p.Remaining == 0 {
		return s.store.UpdateExperimentStatus(ctx, res.ExperimentID, model.ExperimentStatusAnalyzed)
	}
	return nil
}

// EvalProgress reports how many pool items have been evaluated.
func (s *Sequencer) EvalProgress(ctx context.Context, experimentID string) (*Progress, error) {
	results, evaluated, err := s.pool(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	done := 0
	for _, r := range results {
		if _, ok := evaluated[r.ID]; ok {
			done++
		}
	}
	return &Progress{
		ExperimentID: experimentID,
		Total:        len(results),
		Evaluated:    done,
		Remaining:    len(results) - done,
	}, nil
}

// RevealItem returns the provenance and scores for an evaluated blind item.
// Unevaluated items stay blind: revealing before submission would let a
// reviewer score with knowledge of the source.
func (s *Sequencer) RevealItem(ctx context.Context, blindID string) (*Reveal, error) {
	res, err := s.store.GetResultByBlindID(ctx, blindID)
	if err != nil {
		return nil, err
	}

	evals, err := s.store.ListEvaluations(ctx, res.ExperimentID)
	if err != nil {
		return nil, err
	}
	var entry *model.EvaluationEntry
	for i := range evals {
		if evals[i].ResultID == res.ID {
			entry = &evals[i]
			break
		}
	}
	if entry == nil {
		return nil, model.NewValidationError("blind_id", "item %s has not been evaluated yet", blindID)
	}

	job, err := s.store.GetJob(ctx, res.JobID)
	if err != nil {
		return nil, err
	}
	return &Reveal{
		BlindID:  blindID,
		Model:    job.Model,
		Strategy: job.Strategy,
		TaskID:   job.TaskID,
		CostUSD:  res.CostUSD,
		Entry:    *entry,
	}, nil
}
