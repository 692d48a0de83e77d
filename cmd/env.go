package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/PedramNavid/styleval/internal/config"
	"github.com/PedramNavid/styleval/internal/cost"
	"github.com/PedramNavid/styleval/internal/provider"
	"github.com/PedramNavid/styleval/internal/store"
	"github.com/PedramNavid/styleval/internal/tasks"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "styleval.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initCatalog() (*tasks.Catalog, error) {
	return tasks.Load(cfg.Tasks.Path)
}

// initRegistry registers a client for every provider with an API key
// configured. Returns a cleanup func that closes clients holding connections.
func initRegistry(ctx context.Context) (*provider.Registry, func(), error) {
	calc := cost.NewCalculator(ratesFromConfig(cfg.Pricing))
	reg := provider.NewRegistry()
	closers := []func(){}

	if cfg.Anthropic.Key != "" {
		reg.Register(provider.NewAnthropic(cfg.Anthropic.Key, calc), cfg.Anthropic.RateLimit)
	}
	if cfg.OpenAI.Key != "" {
		reg.Register(provider.NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, calc), cfg.OpenAI.RateLimit)
	}
	if cfg.Google.Key != "" {
		g, err := provider.NewGoogle(ctx, cfg.Google.Key, calc)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, eris.Wrap(err, "init google client")
		}
		reg.Register(g, cfg.Google.RateLimit)
		closers = append(closers, func() {
			if err := g.Close(); err != nil {
				zap.L().Warn("close google client", zap.Error(err))
			}
		})
	}

	if len(reg.Names()) == 0 {
		return nil, nil, eris.New("no provider API keys configured")
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return reg, cleanup, nil
}

func ratesFromConfig(p config.PricingConfig) cost.Rates {
	return cost.Rates{
		Anthropic: convertRates(p.Anthropic),
		OpenAI:    convertRates(p.OpenAI),
		Google:    convertRates(p.Google),
	}
}

func convertRates(m map[string]config.ModelPricing) map[string]cost.ModelRate {
	if m == nil {
		return nil
	}
	out := make(map[string]cost.ModelRate, len(m))
	for model, r := range m {
		out[model] = cost.ModelRate{Input: r.Input, Output: r.Output}
	}
	return out
}
