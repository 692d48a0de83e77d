package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct{ name string }

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Generate(_ context.Context, _ GenerateRequest) (*GenerateResult, error) {
	return &GenerateResult{Text: "ok"}, nil
}

func TestRegistry_Acquire(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubClient{name: "openai"}, 0)

	c, err := r.Acquire(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

func TestRegistry_Acquire_Unknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Acquire(context.Background(), "cohere")
	require.Error(t, err)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestRegistry_RateLimitApplies(t *testing.T) {
	r := NewRegistry()
	// 10 rps, burst 1: the second acquire must wait ~100ms.
	r.Register(&stubClient{name: "anthropic"}, 10)

	ctx := context.Background()
	_, err := r.Acquire(ctx, "anthropic")
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Acquire(ctx, "anthropic")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRegistry_Acquire_CancelledWhileWaiting(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubClient{name: "google"}, 0.001) // effectively blocked after burst

	ctx := context.Background()
	_, err := r.Acquire(ctx, "google") // consumes the burst token
	require.NoError(t, err)

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(cancelled, "google")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubClient{name: "openai"}, 0)
	r.Register(&stubClient{name: "google"}, 0)

	assert.ElementsMatch(t, []string{"openai", "google"}, r.Names())
}
