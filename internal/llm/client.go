package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/retry"
)

// Client wraps a provider with response caching, per-model retries and an
// ordered list of fallback models
type Client struct {
	provider Provider
	models   []string
	cache    cache.Cache
	cacheTTL time.Duration
	policy   retry.Policy
	logger   *slog.Logger
}

// NewClient creates a client. A nil provider yields a client whose every
// call fails with ErrDisabled.
func NewClient(provider Provider, cfg model.LLMConfig, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var models []string
	seen := make(map[string]bool)
	for _, m := range append([]string{cfg.Model}, cfg.FallbackModels...) {
		if seen[m] {
			continue
		}
		seen[m] = true
		models = append(models, m)
	}

	policy := retry.Default().WithAttempts(2)
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	policy.Retryable = retryable
	policy.OnRetry = func(err error, wait time.Duration) {
		logger.Debug("llm request failed, retrying", "error", err, "wait", wait)
	}

	return &Client{
		provider: provider,
		models:   models,
		cache:    c,
		cacheTTL: cacheTTL,
		policy:   policy,
		logger:   logger,
	}
}

// WithPolicy replaces the retry policy, keeping its retryable predicate
// when p has none
func (c *Client) WithPolicy(p retry.Policy) *Client {
	if p.Retryable == nil {
		p.Retryable = c.policy.Retryable
	}
	c.policy = p
	return c
}

// Enabled reports whether a provider is configured
func (c *Client) Enabled() bool {
	return c != nil && c.provider != nil
}

// Models returns the primary model followed by the fallbacks
func (c *Client) Models() []string {
	return c.models
}

// Complete sends req to each model in order until one answers. Answers
// are cached per (prompt, model, temperature, max tokens).
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	models := c.models
	if req.Model != "" {
		models = []string{req.Model}
	}

	var lastErr error
	for _, m := range models {
		attempt := req
		attempt.Model = m

		resp, err := cache.Remember(c.cache, cache.TypeLLM, c.cacheKey(attempt), c.cacheTTL, func() (*CompletionResponse, error) {
			return retry.Do(ctx, c.policy, func(ctx context.Context) (*CompletionResponse, error) {
				return c.provider.Complete(ctx, attempt)
			})
		})
		if err == nil && resp != nil {
			metrics.LLMRequests.WithLabelValues(m, "ok").Inc()
			return resp, nil
		}

		lastErr = err
		metrics.LLMRequests.WithLabelValues(m, "error").Inc()
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("llm model failed, trying next", "provider", c.provider.Name(), "model", m, "error", err)
	}

	return nil, fmt.Errorf("%w: %w", ErrAllModelsFailed, lastErr)
}

// Check verifies the provider is reachable
func (c *Client) Check(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return c.provider.Check(ctx)
}

func (c *Client) cacheKey(req CompletionRequest) string {
	return cache.Key(
		c.provider.Name(),
		req.System,
		req.Prompt,
		req.Model,
		strconv.FormatFloat(float64(req.Temperature), 'f', 3, 32),
		strconv.Itoa(req.MaxTokens),
		strconv.FormatBool(req.JSON),
	)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, ErrEmptyResponse)
}
