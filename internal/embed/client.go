package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/retry"
)

// DefaultBatchSize is used when Embed is called with batchSize <= 0
const DefaultBatchSize = 32

// Client batches texts, consults the embedding cache and retries each
// batch against the provider
type Client struct {
	provider    Provider
	cache       cache.Cache
	cacheTTL    time.Duration
	batchSize   int
	concurrency int
	policy      retry.Policy
	logger      *slog.Logger
}

// NewClient creates an embedding client
func NewClient(provider Provider, c cache.Cache, cfg model.EmbeddingConfig, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	policy := retry.Default()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	if cfg.BaseBackoff > 0 {
		policy.BaseBackoff = cfg.BaseBackoff
	}
	policy.Retryable = retryable
	policy.OnRetry = func(err error, wait time.Duration) {
		metrics.EmbeddingRequests.WithLabelValues("retry").Inc()
		logger.Warn("embedding batch failed, retrying", "error", err, "wait", wait)
	}

	return &Client{
		provider:    provider,
		cache:       c,
		cacheTTL:    cacheTTL,
		batchSize:   batchSize,
		concurrency: concurrency,
		policy:      policy,
		logger:      logger,
	}
}

// Provider returns the underlying provider
func (c *Client) Provider() Provider {
	return c.provider
}

// Embed returns one vector per text, in input order. Cached texts are not
// sent to the provider; duplicate texts are sent once. batchSize <= 0
// uses the configured size.
func (c *Client) Embed(ctx context.Context, texts []string, batchSize, dim int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = c.batchSize
	}

	out := make([][]float32, len(texts))

	// unique misses, in first-seen order
	var pending []string
	slots := make(map[string][]int)
	hits := make(map[string][]float32)
	for i, text := range texts {
		if vec, ok := hits[text]; ok {
			out[i] = vec
			continue
		}
		if idx, seen := slots[text]; seen {
			slots[text] = append(idx, i)
			continue
		}
		if vec, ok := c.cached(text, dim); ok {
			hits[text] = vec
			out[i] = vec
			continue
		}
		slots[text] = []int{i}
		pending = append(pending, text)
	}

	vectors := make([][]float32, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]
		offset := start

		g.Go(func() error {
			vecs, err := c.embedBatch(gctx, batch, dim)
			if err != nil {
				return err
			}
			copy(vectors[offset:], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for j, text := range pending {
		vec := vectors[j]
		for _, i := range slots[text] {
			out[i] = vec
		}
		c.store(text, dim, vec)
	}

	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("%w: no vector for input %d", ErrEmbeddingCountMismatch, i)
		}
	}
	return out, nil
}

// EmbedOne embeds a single text
func (c *Client) EmbedOne(ctx context.Context, text string, dim int) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text}, 1, dim)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string, dim int) ([][]float32, error) {
	vecs, err := retry.Do(ctx, c.policy, func(ctx context.Context) ([][]float32, error) {
		vecs, err := c.provider.Embed(ctx, batch, dim)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: sent %d texts, got %d vectors", ErrEmbeddingCountMismatch, len(batch), len(vecs))
		}
		return vecs, nil
	})
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		if errors.Is(err, ErrEmbeddingCountMismatch) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	metrics.EmbeddingRequests.WithLabelValues("ok").Inc()
	return vecs, nil
}

func (c *Client) cacheKey(text string, dim int) string {
	return cache.Key(c.provider.Name(), c.provider.Model(), strconv.Itoa(dim), text)
}

func (c *Client) cached(text string, dim int) ([]float32, bool) {
	data, ok := c.cache.Get(cache.TypeEmbedding, c.cacheKey(text, dim))
	if !ok {
		metrics.CacheRequests.WithLabelValues(string(cache.TypeEmbedding), "miss").Inc()
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	metrics.CacheRequests.WithLabelValues(string(cache.TypeEmbedding), "hit").Inc()
	return vec, true
}

func (c *Client) store(text string, dim int, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Set(cache.TypeEmbedding, c.cacheKey(text, dim), data, c.cacheTTL); err != nil {
		c.logger.Debug("embedding cache write failed", "error", err)
	}
}

// retryable keeps shape and count errors from being retried
func retryable(err error) bool {
	if errors.Is(err, ErrUnknownResponseShape) || errors.Is(err, ErrEmbeddingCountMismatch) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
