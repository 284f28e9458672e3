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

// Crossref queries the Crossref works API
type Crossref struct {
	env     *env
	baseURL string
	mailto  string
}

// NewCrossref creates a Crossref adapter
func NewCrossref(e *env, baseURL, mailto string) *Crossref {
	if baseURL == "" {
		baseURL = "https://api.crossref.org"
	}
	return &Crossref{env: e, baseURL: strings.TrimRight(baseURL, "/"), mailto: mailto}
}

// Name returns the source label
func (s *Crossref) Name() string { return "crossref" }

// Fetch queries /works
func (s *Crossref) Fetch(ctx context.Context, query string, limit int) *RawResult {
	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", strconv.Itoa(limit))
	params.Set("select", "DOI,title,abstract,author,issued,URL")
	if s.mailto != "" {
		params.Set("mailto", s.mailto)
	}

	return s.env.fetch(ctx, request{
		source: s.Name(),
		query:  query,
		limit:  limit,
		url:    s.baseURL + "/works?" + params.Encode(),
		header: jsonHeader(),
		ext:    "json",
		parse:  s.Parse,
	})
}

type crossrefResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	DOI      string   `json:"DOI"`
	Title    []string `json:"title"`
	Abstract string   `json:"abstract"`
	Author   []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		Name   string `json:"name"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	URL string `json:"URL"`
}

// Parse decodes a /works response
func (s *Crossref) Parse(raw []byte) ([]model.RawDocumentRecord, error) {
	var resp crossrefResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode crossref: %w", err)
	}

	var records []model.RawDocumentRecord
	for _, item := range resp.Message.Items {
		rec := model.RawDocumentRecord{
			Title:    collapse(strings.Join(item.Title, " ")),
			Abstract: cleanAbstract(item.Abstract),
			DOI:      NormalizeDOI(item.DOI),
			URL:      item.URL,
			Source:   s.Name(),
		}
		if len(item.Issued.DateParts) > 0 && len(item.Issued.DateParts[0]) > 0 {
			rec.Year = item.Issued.DateParts[0][0]
		}
		for _, a := range item.Author {
			name := strings.TrimSpace(a.Given + " " + a.Family)
			if name == "" {
				name = a.Name
			}
			if name != "" {
				rec.Authors = append(rec.Authors, name)
			}
		}
		if rec.Title == "" && rec.Abstract == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
