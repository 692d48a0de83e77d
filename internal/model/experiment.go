package model

import "time"

// ExperimentStatus represents the lifecycle state of an experiment.
type ExperimentStatus string

const (
	ExperimentStatusDraft              ExperimentStatus = "draft"
	ExperimentStatusGenerating         ExperimentStatus = "generating"
	ExperimentStatusReadyForEvaluation ExperimentStatus = "ready_for_evaluation"
	ExperimentStatusEvaluating         ExperimentStatus = "evaluating"
	ExperimentStatusAnalyzed           ExperimentStatus = "analyzed"
	ExperimentStatusFailed             ExperimentStatus = "failed"
)

// Strategy is a prompt-construction policy applied uniformly across tasks.
type Strategy string

const (
	StrategyStructured   Strategy = "structured"
	StrategyExampleBased Strategy = "example_based"
)

// Strategies lists all known prompt strategies.
var Strategies = []Strategy{StrategyStructured, StrategyExampleBased}

// ModelRef identifies a generation model at a specific provider.
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// String returns "provider/model" for logging and grouping keys.
func (m ModelRef) String() string {
	return m.Provider + "/" + m.Model
}

// Experiment is a user-defined comparison run over models, strategies, and
// tasks against a fixed set of writing-style samples.
type Experiment struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	StyleSamples []string         `json:"style_samples"`
	Models       []ModelRef       `json:"models"`
	Strategies   []Strategy       `json:"strategies"`
	Tasks        []string         `json:"tasks"`
	Status       ExperimentStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// MatrixSize returns the expected number of generation jobs.
func (e *Experiment) MatrixSize() int {
	return len(e.Models) * len(e.Strategies) * len(e.Tasks)
}
