package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/PedramNavid/styleval/internal/model"
)

// Registry maps provider names to clients, each behind its own rate limiter.
// Jobs for different providers proceed independently; jobs for the same
// provider share that provider's limiter.
type Registry struct {
	clients  map[string]Client
	limiters map[string]*rate.Limiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[string]Client),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register adds a client with a requests-per-second limit. A non-positive
// limit means unthrottled.
func (r *Registry) Register(c Client, rps float64) {
	r.clients[c.Name()] = c

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	r.limiters[c.Name()] = rate.NewLimiter(limit, 1)
}

// Acquire waits on the provider's rate limiter and returns its client.
// Returns a normalized invalid-request error for unknown providers so a bad
// model reference fails a job without retries.
func (r *Registry) Acquire(ctx context.Context, name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, NewError(name, KindInvalidRequest, model.ErrNotFound)
	}
	if err := r.limiters[name].Wait(ctx); err != nil {
		return nil, NewError(name, KindTimeout, err)
	}
	return c, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}
