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

// OpenAlex queries the OpenAlex works API
type OpenAlex struct {
	env     *env
	baseURL string
	mailto  string
}

// NewOpenAlex creates an OpenAlex adapter
func NewOpenAlex(e *env, baseURL, mailto string) *OpenAlex {
	if baseURL == "" {
		baseURL = "https://api.openalex.org"
	}
	return &OpenAlex{env: e, baseURL: strings.TrimRight(baseURL, "/"), mailto: mailto}
}

// Name returns the source label
func (s *OpenAlex) Name() string { return "openalex" }

// Fetch queries /works with full-text search
func (s *OpenAlex) Fetch(ctx context.Context, query string, limit int) *RawResult {
	params := url.Values{}
	params.Set("search", query)
	params.Set("per-page", strconv.Itoa(limit))
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

type openAlexResponse struct {
	Results []struct {
		ID                    string           `json:"id"`
		DOI                   string           `json:"doi"`
		Title                 string           `json:"title"`
		DisplayName           string           `json:"display_name"`
		PublicationYear       int              `json:"publication_year"`
		AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
		Authorships           []struct {
			Author struct {
				DisplayName string `json:"display_name"`
			} `json:"author"`
		} `json:"authorships"`
		PrimaryLocation *struct {
			LandingPageURL string `json:"landing_page_url"`
		} `json:"primary_location"`
	} `json:"results"`
}

// Parse decodes a /works response and rebuilds abstracts from the inverted index
func (s *OpenAlex) Parse(raw []byte) ([]model.RawDocumentRecord, error) {
	var resp openAlexResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode openalex: %w", err)
	}

	var records []model.RawDocumentRecord
	for _, w := range resp.Results {
		title := w.Title
		if title == "" {
			title = w.DisplayName
		}
		rec := model.RawDocumentRecord{
			Title:    StripMarkup(title),
			Abstract: cleanAbstract(invertedAbstract(w.AbstractInvertedIndex)),
			Year:     w.PublicationYear,
			DOI:      NormalizeDOI(w.DOI),
			URL:      w.ID,
			Source:   s.Name(),
		}
		if w.PrimaryLocation != nil && w.PrimaryLocation.LandingPageURL != "" {
			rec.URL = w.PrimaryLocation.LandingPageURL
		}
		for _, a := range w.Authorships {
			if a.Author.DisplayName != "" {
				rec.Authors = append(rec.Authors, a.Author.DisplayName)
			}
		}
		if rec.Title == "" && rec.Abstract == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// invertedAbstract rebuilds text from a word -> positions index
func invertedAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	size := 0
	for _, positions := range index {
		for _, p := range positions {
			if p+1 > size {
				size = p + 1
			}
		}
	}
	// guard against absurd positions in malformed payloads
	if size > 20000 {
		size = 20000
	}

	words := make([]string, size)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 && p < size {
				words[p] = word
			}
		}
	}
	return collapse(strings.Join(words, " "))
}
