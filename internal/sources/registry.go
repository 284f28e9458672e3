package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/worker"
)

// Registry holds the enabled sources in their fixed query order
type Registry struct {
	sources []Source
	workers int
	logger  *slog.Logger
}

// NewRegistry builds the sources named in cfg.Sources.Enabled
func NewRegistry(cfg *model.Config, c cache.Cache, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.Noop{}
	}

	e := &env{
		fetcher:  NewFetcher(cfg.HTTP, cfg.Sources, logger),
		log:      NewIngestionLog(cfg.Sources.LogFile),
		cache:    c,
		cacheTTL: cfg.Cache.FetchTTL,
		rawDir:   cfg.Sources.RawDir,
		logger:   logger,
	}

	var list []Source
	for _, name := range cfg.Sources.Enabled {
		s, err := newSource(name, e, cfg.Sources)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}

	return NewRegistryFrom(list, cfg.Concurrency.SourceWorkers, logger), nil
}

// NewRegistryFrom wraps already built sources
func NewRegistryFrom(list []Source, workers int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = len(list)
	}
	return &Registry{sources: list, workers: workers, logger: logger}
}

func newSource(name string, e *env, cfg model.SourcesConfig) (Source, error) {
	switch name {
	case "crossref":
		return NewCrossref(e, cfg.CrossrefURL, cfg.Mailto), nil
	case "openalex":
		return NewOpenAlex(e, cfg.OpenAlexURL, cfg.Mailto), nil
	case "arxiv":
		return NewArxiv(e, cfg.ArxivURL), nil
	case "semantic_scholar":
		return NewSemanticScholar(e, cfg.SemanticURL, cfg.SemanticAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown source: %s", name)
	}
}

// Sources returns the sources in query order
func (r *Registry) Sources() []Source {
	return r.sources
}

// Get returns the source with the given name
func (r *Registry) Get(name string) (Source, bool) {
	for _, s := range r.sources {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Outcome is the result of one source within FetchAll
type Outcome struct {
	Source string
	Raw    *RawResult // nil when the source failed or had no results
}

// fetchJob adapts one source call to the worker pool
type fetchJob struct {
	source Source
	query  string
	limit  int
}

type fetchResult struct {
	outcome Outcome
}

func (r *fetchResult) GetError() error { return nil }

func (j *fetchJob) Execute(ctx context.Context) worker.Result {
	return &fetchResult{
		outcome: Outcome{
			Source: j.source.Name(),
			Raw:    j.source.Fetch(ctx, j.query, j.limit),
		},
	}
}

// FetchAll queries every source concurrently and returns one outcome per
// source, in registry order
func (r *Registry) FetchAll(ctx context.Context, query string, limit int) []Outcome {
	if len(r.sources) == 0 {
		return nil
	}
	start := time.Now()

	pool := worker.NewPool(ctx, r.workers)
	for _, s := range r.sources {
		pool.Submit(&fetchJob{source: s, query: query, limit: limit})
	}
	results := pool.Wait()

	out := make([]Outcome, len(r.sources))
	succeeded := 0
	for i, s := range r.sources {
		out[i] = Outcome{Source: s.Name()}
		if i < len(results) && results[i] != nil {
			out[i] = results[i].(*fetchResult).outcome
		}
		if out[i].Raw != nil {
			succeeded++
		}
	}

	r.logger.Info("sources queried",
		"query", query,
		"sources", len(r.sources),
		"with_results", succeeded,
		"elapsed", time.Since(start),
	)
	return out
}

// Records pools the parsed records of every successful outcome, in order
func Records(outcomes []Outcome) []model.RawDocumentRecord {
	var out []model.RawDocumentRecord
	for _, o := range outcomes {
		if o.Raw != nil {
			out = append(out, o.Raw.Records...)
		}
	}
	return out
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	return h
}
