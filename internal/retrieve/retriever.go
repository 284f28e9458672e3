// Package retrieve finds, scores and filters evidence chunks for a claim
// and decides whether the evidence is strong enough.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

// Defaults for Options
const (
	DefaultK            = 5
	DefaultMinRelevance = 0.25
)

// Embedder produces one vector per text
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize, dim int) ([][]float32, error)
}

// Searcher answers nearest-neighbor queries
type Searcher interface {
	NearestNeighbors(ctx context.Context, vec []float32, k int) ([]model.Neighbor, error)
}

// Options tunes one retrieval
type Options struct {
	K            int
	MinRelevance float64
}

// Retriever runs every query variant against the store and merges results
type Retriever struct {
	embedder Embedder
	store    Searcher
	dim      int
	workers  int
	logger   *slog.Logger
}

// NewRetriever creates a retriever. workers bounds the concurrent
// nearest-neighbor queries.
func NewRetriever(e Embedder, s Searcher, dim, workers int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Retriever{embedder: e, store: s, dim: dim, workers: workers, logger: logger}
}

// Retrieve returns up to 3k candidates scored against claim, best first.
// A chunk surfaced by several variants belongs to the first one.
func (r *Retriever) Retrieve(ctx context.Context, claim string, variants []model.QueryVariant, terms []string, opts Options) ([]model.RetrievalCandidate, error) {
	defer metrics.ObserveStage("retrieve", time.Now())

	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if len(variants) == 0 {
		variants = []model.QueryVariant{{Text: claim, Lang: "orig", Kind: model.VariantOriginal}}
	}

	texts := make([]string, len(variants))
	for i, v := range variants {
		texts[i] = v.Text
	}
	vectors, err := r.embedder.Embed(ctx, texts, 0, r.dim)
	if err != nil {
		return nil, fmt.Errorf("embed query variants: %w", err)
	}

	results := make([][]model.Neighbor, len(variants))
	errs := make([]error, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range variants {
		g.Go(func() error {
			neighbors, err := r.store.NearestNeighbors(gctx, vectors[i], opts.K)
			if err != nil {
				r.logger.Warn("nearest neighbor query failed", "variant", variants[i].Text, "error", err)
				errs[i] = err
				return nil
			}
			results[i] = neighbors
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(variants) {
		return nil, fmt.Errorf("all variant queries failed: %w", errors.Join(errs...))
	}

	candidates := Merge(claim, variants, results, terms)
	return Rank(candidates, opts.MinRelevance, 3*opts.K), nil
}

// Merge scores neighbors per variant, keeping the first occurrence of each
// (document id, chunk index) in variant order
func Merge(claim string, variants []model.QueryVariant, results [][]model.Neighbor, terms []string) []model.RetrievalCandidate {
	seen := make(map[model.ChunkKey]bool)
	var out []model.RetrievalCandidate

	for i, neighbors := range results {
		for _, n := range neighbors {
			c := model.RetrievalCandidate{
				Chunk:        n.Chunk,
				Distance:     n.Distance,
				Similarity:   Similarity(n.Distance),
				PatternScore: PatternScore(n.Chunk.Text, terms),
				Relevance:    Score(claim, n.Chunk.Text, n.Distance, terms),
				MatchedQuery: variants[i].Text,
			}
			if seen[c.Key()] {
				continue
			}
			seen[c.Key()] = true
			out = append(out, c)
		}
	}
	return out
}

// Rank drops candidates under minRelevance, sorts by relevance keeping
// merge order among ties, and keeps the first limit
func Rank(candidates []model.RetrievalCandidate, minRelevance float64, limit int) []model.RetrievalCandidate {
	kept := candidates[:0:0]
	for _, c := range candidates {
		if c.Relevance >= minRelevance {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Relevance > kept[j].Relevance })
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
