// Package embed turns text into fixed-width vectors through a remote
// embedding provider.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/claimcheck/internal/model"
)

var (
	// ErrProviderUnavailable is returned once a batch has exhausted its retries
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingCountMismatch means the provider returned a different
	// number of vectors than texts sent
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrUnknownResponseShape means the provider body matched no known shape
	ErrUnknownResponseShape = errors.New("unknown embedding response shape")
)

// Provider is a remote embedding service
type Provider interface {
	// Name returns the provider name
	Name() string

	// Model returns the embedding model identifier
	Model() string

	// Embed returns one vector per text, in order. dim <= 0 leaves the
	// width to the provider.
	Embed(ctx context.Context, texts []string, dim int) ([][]float32, error)
}

// StatusError is a non-2xx response from a provider
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embedding provider returned HTTP %d: %s", e.Code, e.Body)
}

// Temporary reports whether the status is worth retrying (429, 5xx)
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// NewProvider creates a provider from configuration
func NewProvider(cfg model.EmbeddingConfig, httpClient *http.Client, logger *slog.Logger) (Provider, error) {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(cfg, httpClient)
	case "http":
		return NewHTTPProvider(cfg, httpClient, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
