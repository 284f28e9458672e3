// Package llm talks to language model providers and adds caching, retries
// and ordered model fallback on top of them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ppiankov/claimcheck/internal/model"
)

var (
	// ErrAllModelsFailed means the primary model and every fallback failed
	ErrAllModelsFailed = errors.New("all models failed")

	// ErrDisabled means no provider is configured
	ErrDisabled = errors.New("llm disabled")

	// ErrEmptyResponse means the provider answered without any text
	ErrEmptyResponse = errors.New("empty llm response")
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs one prompt against one model
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Check verifies the provider is configured and reachable
	Check(ctx context.Context) error
}

// CompletionRequest is one prompt sent to a model
type CompletionRequest struct {
	// System is the optional system instruction
	System string

	Prompt string

	// Model overrides the provider's configured model
	Model string

	MaxTokens   int
	Temperature float32

	// JSON asks the provider for a JSON object when it supports that
	JSON bool
}

// CompletionResponse is the model's answer
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// StatusError is a non-2xx answer from a provider API
type StatusError struct {
	Code    int
	Message string
	Wait    time.Duration // Retry-After, when the provider sent one
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Code, e.Message)
}

// Temporary reports whether the request is worth retrying (429, 5xx)
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// RetryAfter implements retry.Delayer
func (e *StatusError) RetryAfter() time.Duration {
	return e.Wait
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// HTTP carries user agent and proxy settings
	HTTP model.HTTPConfig
}

func (c Config) maxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 800
}
