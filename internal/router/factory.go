package router

import (
	"context"
	"fmt"

	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/observe"
	"github.com/switchyard-ai/switchyard/pkg/provider/embeddings"
	"github.com/switchyard-ai/switchyard/pkg/provider/llm"
	"github.com/switchyard-ai/switchyard/pkg/toolstore"
)

// OpenStoreFunc opens the vector catalog store for a table, sized to the
// embedding dimension of the provider that will populate it.
type OpenStoreFunc func(ctx context.Context, table string, dimensions int) (toolstore.Store, error)

// Config carries everything [New] needs to build a selector.
type Config struct {
	// Strategy picks the backend. Empty defaults to [StrategyLLM].
	Strategy Strategy

	// TableName is the catalog table for the vector backend. Required for
	// [StrategyVector].
	TableName string

	// OpenStore opens the vector catalog. Nil means the deployment has no
	// vector capability, which makes [StrategyVector] a configuration error.
	OpenStore OpenStoreFunc

	// Embeddings optionally names a dedicated embedding provider and model.
	// When nil or when its Provider is empty, the primary LLM provider must
	// implement [embeddings.Provider] itself.
	Embeddings *config.EmbeddingConfig

	// Registry resolves the dedicated embedding provider named in Embeddings.
	Registry *config.Registry

	// Metrics receives selection instrumentation. May be nil.
	Metrics *observe.Metrics
}

// New builds a [Selector] for the configured strategy. The LLM backend is the
// default: it has no external dependencies, so a bare Config with just a
// provider always succeeds.
func New(ctx context.Context, cfg Config, provider llm.Provider) (Selector, error) {
	switch cfg.Strategy {
	case StrategyVector:
		return newVectorFromConfig(ctx, cfg, provider)
	case StrategyLLM, "":
		return NewLLMSelector(provider, cfg.Metrics), nil
	default:
		return nil, configErr(fmt.Sprintf("unknown tool selection strategy %q", cfg.Strategy))
	}
}

// newVectorFromConfig applies the vector construction policy: resolve the
// embedding provider (dedicated if configured, otherwise the primary
// provider's own embedding capability), then open the catalog store sized to
// that provider's dimension.
func newVectorFromConfig(ctx context.Context, cfg Config, provider llm.Provider) (*VectorSelector, error) {
	if cfg.OpenStore == nil {
		return nil, configErr("vector tool selection is not available: no catalog store configured")
	}
	if cfg.TableName == "" {
		return nil, configErr("vector tool selection requires a table name")
	}

	embedder, err := resolveEmbedder(cfg, provider)
	if err != nil {
		return nil, err
	}

	store, err := cfg.OpenStore(ctx, cfg.TableName, embedder.Dimensions())
	if err != nil {
		return nil, internalErr(fmt.Sprintf("failed to open tool catalog %q", cfg.TableName), err)
	}

	return NewVectorSelector(store, embedder, cfg.Metrics), nil
}

// resolveEmbedder returns the embedding provider the vector backend will use.
func resolveEmbedder(cfg Config, provider llm.Provider) (embeddings.Provider, error) {
	if cfg.Embeddings != nil && cfg.Embeddings.Provider != "" {
		if cfg.Registry == nil {
			return nil, configErr("a dedicated embedding provider is configured but no registry was supplied")
		}
		embedder, err := cfg.Registry.CreateEmbeddings(config.ProviderEntry{
			Name:  cfg.Embeddings.Provider,
			Model: cfg.Embeddings.Model,
		})
		if err != nil {
			return nil, &Error{
				Code:    CodeConfiguration,
				Message: fmt.Sprintf("failed to create %s provider for embeddings", cfg.Embeddings.Provider),
				Err:     err,
			}
		}
		return embedder, nil
	}

	// Fall back to the same provider instance that serves completions.
	embedder, ok := provider.(embeddings.Provider)
	if !ok {
		return nil, configErr("the configured LLM provider does not support embeddings; configure a dedicated embedding provider")
	}
	return embedder, nil
}
