package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PedramNavid/styleval/internal/model"
)

var testTask = model.Task{
	ID:               "A",
	Title:            "Test task",
	Brief:            "Write a thing.",
	StructuredPrompt: "  Write a structured thing.  ",
	ExampleTemplate:  "Voice samples:\n{sample1}\n---\n{sample2}\nNow write.",
}

func TestBuild_Structured(t *testing.T) {
	p, err := Build(testTask, model.StrategyStructured, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, "Write a structured thing.", p)
}

func TestBuild_ExampleBased(t *testing.T) {
	p, err := Build(testTask, model.StrategyExampleBased, []string{"first sample", "second sample", "third sample"})
	require.NoError(t, err)
	assert.Contains(t, p, "first sample")
	assert.Contains(t, p, "second sample")
	assert.NotContains(t, p, "third sample")
	assert.NotContains(t, p, "{sample1}")
	assert.NotContains(t, p, "{sample2}")
}

func TestBuild_Deterministic(t *testing.T) {
	samples := []string{"one", "two", "three"}
	a, err := Build(testTask, model.StrategyExampleBased, samples)
	require.NoError(t, err)
	b, err := Build(testTask, model.StrategyExampleBased, samples)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuild_ExampleBased_TooFewSamples(t *testing.T) {
	_, err := Build(testTask, model.StrategyExampleBased, []string{"only one"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestBuild_UnknownStrategy(t *testing.T) {
	_, err := Build(testTask, model.Strategy("freestyle"), []string{"s1", "s2"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}
