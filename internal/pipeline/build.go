package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/claimcheck/internal/adjudicate"
	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/embed"
	"github.com/ppiankov/claimcheck/internal/expand"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/retrieve"
	"github.com/ppiankov/claimcheck/internal/sources"
	"github.com/ppiankov/claimcheck/internal/store"
	"github.com/ppiankov/claimcheck/internal/util"
)

// Components holds every concrete dependency built from a configuration
type Components struct {
	Config   *model.Config
	Cache    cache.Cache
	Store    store.Store
	Embedder *embed.Client
	LLM      *llm.Client
	Sources  *sources.Registry
	Ingestor *ingest.Ingestor
	Expander *expand.Expander
	Verifier *Verifier
}

// Build wires cache, store, providers, sources and the verifier from cfg.
// The caller must Close the result.
func Build(ctx context.Context, cfg *model.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{Config: cfg, Cache: cache.New(cfg.Cache, logger)}

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	c.Store = st

	embHTTP := util.NewHTTPClient(cfg.HTTP, cfg.Embedding.Timeout)
	provider, err := embed.NewProvider(cfg.Embedding, embHTTP, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	c.Embedder = embed.NewClient(provider, c.Cache, cfg.Embedding, cfg.Cache.EmbeddingTTL, logger)

	llmProvider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	if llmProvider == nil {
		logger.Warn("no llm provider configured, verdicts fall back to retrieval scores")
	}
	c.LLM = llm.NewClient(llmProvider, cfg.LLM, c.Cache, cfg.Cache.LLMTTL, logger)

	c.Sources, err = sources.NewRegistry(cfg, c.Cache, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("sources: %w", err)
	}

	c.Ingestor = ingest.NewIngestor(c.Embedder, st, cfg.Ingest, cfg.Embedding, logger)

	translator := expand.NewTranslator(c.LLM, c.Cache, cfg.Cache.TranslationTTL, logger)
	c.Expander = expand.NewExpander(c.LLM, translator, c.Cache, cfg.Expansion, cfg.Cache.ExpansionTTL, logger)

	retriever := retrieve.NewRetriever(c.Embedder, st, cfg.Embedding.Dimensions, cfg.Concurrency.VariantWorkers, logger)
	judge := adjudicate.NewAdjudicator(c.LLM, translator, cfg.Expansion.TargetLanguage, cfg.Adjudicator, logger)

	var fetcher *DynamicFetcher
	if cfg.DynamicFetch.Enabled {
		fetcher = NewDynamicFetcher(c.Sources, c.Embedder, c.Ingestor, cfg.DynamicFetch, cfg.Embedding, logger)
	}

	c.Verifier = NewVerifier(c.Expander, retriever, judge, fetcher, cfg, logger)
	return c, nil
}

// Close releases the store and the cache
func (c *Components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	return errors.Join(errs...)
}
