// Package prompt composes the text sent to providers. Construction is a pure
// function of (task, strategy, samples) so a retried job always sends the
// identical prompt.
package prompt

import (
	"strings"

	"github.com/PedramNavid/styleval/internal/model"
)

// Build returns the prompt for the given task and strategy.
//
// Structured uses the task's standalone prompt as written. ExampleBased fills
// the task's template with the first two style samples; the caller guarantees
// at least two samples exist (experiment validation enforces 2-3).
func Build(task model.Task, strategy model.Strategy, samples []string) (string, error) {
	switch strategy {
	case model.StrategyStructured:
		return strings.TrimSpace(task.StructuredPrompt), nil

	case model.StrategyExampleBased:
		if len(samples) < 2 {
			return "", model.NewValidationError("style_samples", "example_based strategy needs at least 2 samples, got %d", len(samples))
		}
		p := task.ExampleTemplate
		p = strings.ReplaceAll(p, "{sample1}", strings.TrimSpace(samples[0]))
		p = strings.ReplaceAll(p, "{sample2}", strings.TrimSpace(samples[1]))
		return strings.TrimSpace(p), nil

	default:
		return "", model.NewValidationError("strategy", "unknown strategy %q", strategy)
	}
}
