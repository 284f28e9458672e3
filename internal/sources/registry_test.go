package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/model"
)

func testEnv(t *testing.T, c cache.Cache) *env {
	t.Helper()
	dir := t.TempDir()
	if c == nil {
		c = cache.Noop{}
	}
	return &env{
		fetcher:  testFetcher(1),
		log:      NewIngestionLog(filepath.Join(dir, "ingestion_log.csv")),
		cache:    c,
		cacheTTL: time.Hour,
		rawDir:   filepath.Join(dir, "raw"),
		logger:   testLogger(),
	}
}

func jsonServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchAll_OrderAndFailureIsolation(t *testing.T) {
	e := testEnv(t, nil)

	crossref := jsonServer(t, http.StatusOK, crossrefFixture, nil)
	openalex := jsonServer(t, http.StatusInternalServerError, "boom", nil)
	semantic := jsonServer(t, http.StatusOK, `{"total":0,"data":[]}`, nil)
	arxiv := jsonServer(t, http.StatusOK, arxivFixture, nil)

	reg := NewRegistryFrom([]Source{
		NewCrossref(e, crossref.URL, "dev@example.org"),
		NewOpenAlex(e, openalex.URL, ""),
		NewSemanticScholar(e, semantic.URL, "key"),
		NewArxiv(e, arxiv.URL),
	}, 4, nil)

	outcomes := reg.FetchAll(context.Background(), "vitamin c colds", 5)
	require.Len(t, outcomes, 4)

	assert.Equal(t, "crossref", outcomes[0].Source)
	assert.NotNil(t, outcomes[0].Raw)
	assert.Equal(t, "openalex", outcomes[1].Source)
	assert.Nil(t, outcomes[1].Raw)
	assert.Equal(t, "semantic_scholar", outcomes[2].Source)
	assert.Nil(t, outcomes[2].Raw)
	assert.Equal(t, "arxiv", outcomes[3].Source)
	assert.NotNil(t, outcomes[3].Raw)

	records := Records(outcomes)
	require.Len(t, records, 2)
	assert.Equal(t, "crossref", records[0].Source)
	assert.Equal(t, "arxiv", records[1].Source)

	_, err := os.Stat(outcomes[0].Raw.File)
	assert.NoError(t, err, "raw response should be saved")
	assert.Equal(t, ".xml", filepath.Ext(outcomes[3].Raw.File))

	entries, err := ReadLog(e.log.path)
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, entry := range entries {
		statuses[entry.Source] = entry.Status
	}
	assert.Equal(t, StatusOK, statuses["crossref"])
	assert.Equal(t, StatusFailed, statuses["openalex"])
	assert.Equal(t, StatusNoResults, statuses["semantic_scholar"])
	assert.Equal(t, StatusOK, statuses["arxiv"])
}

func TestFetch_UsesCache(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour, time.Hour)
	defer func() { _ = c.Close() }()
	e := testEnv(t, c)

	var hits atomic.Int32
	server := jsonServer(t, http.StatusOK, crossrefFixture, &hits)
	src := NewCrossref(e, server.URL, "")

	first := src.Fetch(context.Background(), "vitamin c", 3)
	require.NotNil(t, first)
	assert.False(t, first.Cached)

	second := src.Fetch(context.Background(), "vitamin c", 3)
	require.NotNil(t, second)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_SendsQueryParameters(t *testing.T) {
	e := testEnv(t, nil)

	var gotQuery, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotKey = r.Header.Get("x-api-key")
		_, _ = fmt.Fprint(w, semanticFixture)
	}))
	defer server.Close()

	raw := NewSemanticScholar(e, server.URL, "secret").Fetch(context.Background(), "coffee longevity", 2)
	require.NotNil(t, raw)
	assert.Equal(t, "coffee longevity", gotQuery)
	assert.Equal(t, "secret", gotKey)
}

func TestNewRegistry_UnknownSource(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Sources.Enabled = []string{"crossref", "pubmed"}
	cfg.Sources.LogFile = ""
	cfg.Sources.RawDir = ""

	_, err := NewRegistry(cfg, nil, nil)
	assert.Error(t, err)
}

func TestNewRegistry_Order(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Sources.LogFile = ""
	cfg.Sources.RawDir = ""

	reg, err := NewRegistry(cfg, nil, nil)
	require.NoError(t, err)

	var names []string
	for _, s := range reg.Sources() {
		names = append(names, s.Name())
	}
	assert.Equal(t, cfg.Sources.Enabled, names)

	_, ok := reg.Get("arxiv")
	assert.True(t, ok)
	_, ok = reg.Get("pubmed")
	assert.False(t, ok)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
