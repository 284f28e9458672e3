package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Arxiv queries the arXiv Atom API
type Arxiv struct {
	env     *env
	baseURL string
}

// NewArxiv creates an arXiv adapter
func NewArxiv(e *env, baseURL string) *Arxiv {
	if baseURL == "" {
		baseURL = "https://export.arxiv.org"
	}
	return &Arxiv{env: e, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the source label
func (s *Arxiv) Name() string { return "arxiv" }

// Fetch queries /api/query across all fields
func (s *Arxiv) Fetch(ctx context.Context, query string, limit int) *RawResult {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(limit))

	header := http.Header{}
	header.Set("Accept", "application/atom+xml")

	return s.env.fetch(ctx, request{
		source: s.Name(),
		query:  query,
		limit:  limit,
		url:    s.baseURL + "/api/query?" + params.Encode(),
		header: header,
		ext:    "xml",
		parse:  s.Parse,
	})
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	DOI   string `xml:"http://arxiv.org/schemas/atom doi"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
}

// Parse decodes an Atom feed
func (s *Arxiv) Parse(raw []byte) ([]model.RawDocumentRecord, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("decode arxiv: %w", err)
	}

	var records []model.RawDocumentRecord
	for _, e := range feed.Entries {
		// the API reports query errors as a feed entry
		if strings.Contains(e.ID, "/api/errors") {
			continue
		}
		rec := model.RawDocumentRecord{
			Title:    collapse(e.Title),
			Abstract: collapse(e.Summary),
			DOI:      NormalizeDOI(e.DOI),
			URL:      e.ID,
			Source:   s.Name(),
		}
		for _, l := range e.Links {
			if l.Rel == "alternate" && l.Href != "" {
				rec.URL = l.Href
				break
			}
		}
		if len(e.Published) >= 4 {
			rec.Year, _ = strconv.Atoi(e.Published[:4])
		}
		for _, a := range e.Authors {
			if name := collapse(a.Name); name != "" {
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
