package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/ppiankov/claimcheck/internal/model"
)

// HTTPProvider talks to a generic JSON embedding endpoint. The response
// body is decoded through one adapter per known shape.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
}

// NewHTTPProvider creates a provider for a self-hosted embedding endpoint
func NewHTTPProvider(cfg model.EmbeddingConfig, httpClient *http.Client, logger *slog.Logger) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base_url is required for the http provider")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		client:  httpClient,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		logger:  logger,
	}, nil
}

// Name returns the provider name
func (p *HTTPProvider) Name() string {
	return "http"
}

// Model returns the embedding model
func (p *HTTPProvider) Model() string {
	return p.model
}

type httpEmbedRequest struct {
	Model      string   `json:"model,omitempty"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// Embed posts the texts and normalizes whatever shape comes back
func (p *HTTPProvider) Embed(ctx context.Context, texts []string, dim int) ([][]float32, error) {
	body, err := json.Marshal(httpEmbedRequest{Model: p.model, Input: texts, Dimensions: dim})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	sh, err := detectShape(data)
	if err != nil {
		p.logger.Warn("embedding response rejected", "error", err, "body", truncate(string(data), 120))
		return nil, err
	}
	return sh.vectors()
}

// shape is one known embedding response layout
type shape interface {
	vectors() ([][]float32, error)
}

// valuesShape: [{"values": [...]}, ...]
type valuesShape []struct {
	Values []float32 `json:"values"`
}

// embeddingsShape: {"embeddings": [[...], ...]}
type embeddingsShape struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// dictsShape: [{"embedding": [...]}, ...]
type dictsShape []struct {
	Embedding []float32 `json:"embedding"`
}

// dataShape: {"data": [{"embedding": [...], "index": 0}, ...]}
type dataShape struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (s valuesShape) vectors() ([][]float32, error) {
	out := make([][]float32, len(s))
	for i, item := range s {
		if len(item.Values) == 0 {
			return nil, fmt.Errorf("%w: item %d has no values", ErrUnknownResponseShape, i)
		}
		out[i] = item.Values
	}
	return out, nil
}

func (s embeddingsShape) vectors() ([][]float32, error) {
	for i, v := range s.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: embedding %d is empty", ErrUnknownResponseShape, i)
		}
	}
	return s.Embeddings, nil
}

func (s dictsShape) vectors() ([][]float32, error) {
	out := make([][]float32, len(s))
	for i, item := range s {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: item %d has no embedding", ErrUnknownResponseShape, i)
		}
		out[i] = item.Embedding
	}
	return out, nil
}

func (s dataShape) vectors() ([][]float32, error) {
	data := s.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, item := range data {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: data %d has no embedding", ErrUnknownResponseShape, i)
		}
		out[i] = item.Embedding
	}
	return out, nil
}

// detectShape picks the adapter from the top-level JSON keys
func detectShape(body []byte) (shape, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnknownResponseShape)
	}

	switch trimmed[0] {
	case '[':
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownResponseShape, err)
		}
		if len(items) == 0 {
			return dictsShape{}, nil
		}
		if _, ok := items[0]["values"]; ok {
			var s valuesShape
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnknownResponseShape, err)
			}
			return s, nil
		}
		if _, ok := items[0]["embedding"]; ok {
			var s dictsShape
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnknownResponseShape, err)
			}
			return s, nil
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownResponseShape, err)
		}
		if _, ok := obj["embeddings"]; ok {
			var s embeddingsShape
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnknownResponseShape, err)
			}
			return s, nil
		}
		if _, ok := obj["data"]; ok {
			var s dataShape
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnknownResponseShape, err)
			}
			return s, nil
		}
	}

	return nil, ErrUnknownResponseShape
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
