package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/retry"
	"github.com/ppiankov/claimcheck/internal/util"
	"github.com/ppiankov/claimcheck/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids a request
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError is a non-2xx response from a source API
type StatusError struct {
	Code   int
	Status string
	Wait   time.Duration // Retry-After, when the server sent one
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Temporary reports whether the status is worth retrying (429, 5xx)
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// RetryAfter implements retry.Delayer
func (e *StatusError) RetryAfter() time.Duration {
	return e.Wait
}

// Fetcher performs rate-limited, retried GET requests against source APIs
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
	politeness time.Duration
	policy     retry.Policy
	logger     *slog.Logger
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(httpCfg model.HTTPConfig, cfg model.SourcesConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := httpCfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	client := util.NewHTTPClient(httpCfg, timeout)

	f := &Fetcher{
		httpClient: client,
		userAgent:  httpCfg.UserAgent,
		maxBytes:   maxBytes,
		limiter:    worker.NewLimiter(cfg.RequestsPerSec, cfg.Burst),
		politeness: cfg.PolitenessWait,
		logger:     logger,
	}
	for host, rps := range cfg.HostRates {
		f.limiter.SetHostRate(host, rps, 1)
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(httpCfg.UserAgent, client, 0)
	}

	f.policy = retry.Default()
	f.policy.MaxAttempts = 5
	if cfg.MaxAttempts > 0 {
		f.policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseBackoff > 0 {
		f.policy.BaseBackoff = cfg.BaseBackoff
	}
	f.policy.Retryable = retryable
	f.policy.OnRetry = func(err error, wait time.Duration) {
		logger.Debug("source request failed, retrying", "error", err, "wait", wait)
	}

	return f
}

// Get retrieves rawURL, retrying transport errors, 429 and 5xx responses
func (f *Fetcher) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		f.limiter.ApplyCrawlDelay(rawURL, delay)
	}

	return retry.Do(ctx, f.policy, func(ctx context.Context) ([]byte, error) {
		if err := f.limiter.WaitWithDelay(ctx, rawURL, f.politeness); err != nil {
			return nil, err
		}
		return f.get(ctx, rawURL, header)
	})
}

func (f *Fetcher) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, application/atom+xml;q=0.9, */*;q=0.8")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Wait:   retry.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	// Read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrDisallowed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
