package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// SemanticScholar queries the Semantic Scholar graph API
type SemanticScholar struct {
	env     *env
	baseURL string
	apiKey  string
}

// NewSemanticScholar creates a Semantic Scholar adapter
func NewSemanticScholar(e *env, baseURL, apiKey string) *SemanticScholar {
	if baseURL == "" {
		baseURL = "https://api.semanticscholar.org"
	}
	return &SemanticScholar{env: e, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Name returns the source label
func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// Fetch queries /graph/v1/paper/search
func (s *SemanticScholar) Fetch(ctx context.Context, query string, limit int) *RawResult {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", "title,abstract,authors,year,externalIds,url")

	header := jsonHeader()
	if s.apiKey != "" {
		header.Set("x-api-key", s.apiKey)
	}

	return s.env.fetch(ctx, request{
		source: s.Name(),
		query:  query,
		limit:  limit,
		url:    s.baseURL + "/graph/v1/paper/search?" + params.Encode(),
		header: header,
		ext:    "json",
		parse:  s.Parse,
	})
}

type semanticResponse struct {
	Total int `json:"total"`
	Data  []struct {
		PaperID     string         `json:"paperId"`
		Title       string         `json:"title"`
		Abstract    *string        `json:"abstract"`
		Year        *int           `json:"year"`
		URL         string         `json:"url"`
		ExternalIDs map[string]any `json:"externalIds"`
		Authors     []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"data"`
}

// Parse decodes a paper search response
func (s *SemanticScholar) Parse(raw []byte) ([]model.RawDocumentRecord, error) {
	var resp semanticResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode semantic scholar: %w", err)
	}

	var records []model.RawDocumentRecord
	for _, p := range resp.Data {
		rec := model.RawDocumentRecord{
			Title:  collapse(p.Title),
			URL:    p.URL,
			Source: s.Name(),
		}
		if p.Abstract != nil {
			rec.Abstract = cleanAbstract(*p.Abstract)
		}
		if p.Year != nil {
			rec.Year = *p.Year
		}
		if doi, ok := p.ExternalIDs["DOI"].(string); ok {
			rec.DOI = NormalizeDOI(doi)
		}
		for _, a := range p.Authors {
			if a.Name != "" {
				rec.Authors = append(rec.Authors, a.Name)
			}
		}
		if rec.Title == "" && rec.Abstract == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
