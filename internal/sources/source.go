// Package sources fetches bibliographic records from scholarly APIs and
// normalizes them into raw document records.
package sources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

// Source is one bibliographic API adapter
type Source interface {
	// Name returns the source label (crossref, openalex, arxiv, semantic_scholar)
	Name() string

	// Fetch queries the source. It never fails past its own boundary:
	// nil means the source produced nothing usable this time.
	Fetch(ctx context.Context, query string, limit int) *RawResult

	// Parse normalizes a raw response body of this source
	Parse(raw []byte) ([]model.RawDocumentRecord, error)
}

// RawResult is a successful fetch: the untouched body plus its parse
type RawResult struct {
	Source    string
	Query     string
	Body      []byte
	File      string // raw response location, empty when not saved
	Records   []model.RawDocumentRecord
	FetchedAt time.Time
	Cached    bool
}

// env carries the collaborators every adapter shares
type env struct {
	fetcher  *Fetcher
	log      *IngestionLog
	cache    cache.Cache
	cacheTTL time.Duration
	rawDir   string
	logger   *slog.Logger
}

// request describes one adapter call
type request struct {
	source string
	query  string
	limit  int
	url    string
	header http.Header
	ext    string
	parse  func([]byte) ([]model.RawDocumentRecord, error)
}

// fetch runs the shared flow: cache, GET, parse, save raw file, log row
func (e *env) fetch(ctx context.Context, r request) *RawResult {
	start := time.Now()
	key := cache.Key(r.source, r.query, strconv.Itoa(r.limit))

	body, cached := e.cache.Get(cache.TypeFetch, key)
	if !cached {
		var err error
		body, err = e.fetcher.Get(ctx, r.url, r.header)
		if err != nil {
			e.record(r, "", StatusFailed, err.Error())
			e.logger.Warn("source fetch failed", "source", r.source, "error", err, "elapsed", time.Since(start))
			return nil
		}
	}

	records, err := r.parse(body)
	if err != nil {
		e.record(r, "", StatusFailed, "parse: "+err.Error())
		e.logger.Warn("source response unparseable", "source", r.source, "error", err)
		return nil
	}

	file := ""
	if !cached {
		file, err = e.saveRaw(r, body)
		if err != nil {
			e.logger.Warn("raw response not saved", "source", r.source, "error", err)
		}
	}

	if len(records) == 0 {
		e.record(r, file, StatusNoResults, "")
		return nil
	}

	notes := fmt.Sprintf("%d records", len(records))
	if cached {
		notes += " (cache)"
	} else if err := e.cache.Set(cache.TypeFetch, key, body, e.cacheTTL); err != nil {
		e.logger.Debug("fetch cache write failed", "error", err)
	}
	e.record(r, file, StatusOK, notes)

	e.logger.Debug("source fetched", "source", r.source, "records", len(records), "cached", cached, "elapsed", time.Since(start))

	return &RawResult{
		Source:    r.source,
		Query:     r.query,
		Body:      body,
		File:      file,
		Records:   records,
		FetchedAt: time.Now().UTC(),
		Cached:    cached,
	}
}

func (e *env) record(r request, file, status, notes string) {
	metrics.SourceFetches.WithLabelValues(r.source, status).Inc()
	err := e.log.Append(LogEntry{
		Source: r.source,
		Query:  r.query,
		File:   file,
		Status: status,
		Notes:  notes,
	})
	if err != nil {
		e.logger.Warn("ingestion log write failed", "error", err)
	}
}

// saveRaw writes body to {rawDir}/{source}/{timestamp}_{hash}.{ext}
func (e *env) saveRaw(r request, body []byte) (string, error) {
	if e.rawDir == "" {
		return "", nil
	}
	dir := filepath.Join(e.rawDir, r.source)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}

	sum := sha256.Sum256([]byte(r.query))
	name := fmt.Sprintf("%s_%s.%s", time.Now().UTC().Format("20060102T150405Z"), hex.EncodeToString(sum[:])[:12], r.ext)
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("write raw response: %w", err)
	}
	return path, nil
}
