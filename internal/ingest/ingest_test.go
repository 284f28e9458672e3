package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/sources"
	"github.com/ppiankov/claimcheck/internal/store"
)

type fakeEmbedder struct {
	width int
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, batchSize, dim int) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.width)
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return out, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, dim int) store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), model.StoreConfig{
		Driver:    "sqlite",
		DSN:       filepath.Join(t.TempDir(), "evidence.db"),
		Dimension: dim,
	}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestChunk_Short(t *testing.T) {
	chunks := Chunk("  one   two three ", 300, 30)
	assert.Equal(t, []string{"one two three"}, chunks)
	assert.Nil(t, Chunk("   ", 300, 30))
}

func TestChunk_Properties(t *testing.T) {
	tests := []struct {
		n, window, overlap int
	}{
		{300, 300, 30},
		{301, 300, 30},
		{1000, 300, 30},
		{57, 10, 3},
		{10, 4, 0},
		{25, 5, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%d", tt.n, tt.window, tt.overlap), func(t *testing.T) {
			text := words(tt.n)
			chunks := Chunk(text, tt.window, tt.overlap)
			require.NotEmpty(t, chunks)
			for _, c := range chunks {
				assert.LessOrEqual(t, len(strings.Fields(c)), tt.window)
			}
			overlap := tt.overlap
			if len(chunks) == 1 {
				overlap = 0
			}
			assert.Equal(t, strings.Fields(text), reassemble(chunks, overlap))
		})
	}
}

func TestChunk_Step(t *testing.T) {
	chunks := Chunk(words(10), 4, 1)
	assert.Equal(t, []string{"w0 w1 w2 w3", "w3 w4 w5 w6", "w6 w7 w8 w9"}, chunks)
}

func TestDocID(t *testing.T) {
	withDOI := model.RawDocumentRecord{DOI: "10.1/abc", Title: "T", Source: "crossref"}
	assert.Equal(t, "10.1/abc", DocID(withDOI))

	a := model.RawDocumentRecord{Title: "Garlic", Source: "arxiv"}
	b := model.RawDocumentRecord{Title: "Garlic", Source: "arxiv"}
	c := model.RawDocumentRecord{Title: "Garlic", Source: "openalex"}
	assert.Equal(t, DocID(a), DocID(b), "Expected deterministic id")
	assert.NotEqual(t, DocID(a), DocID(c))

	assert.Equal(t, "10.1_abc", SafeID("10.1/abc"))
	assert.NotEmpty(t, SafeID("///"))
}

func TestEmbedAndPersist(t *testing.T) {
	s := newStore(t, 4)
	in := NewIngestor(&fakeEmbedder{width: 4}, s, model.IngestConfig{WindowWords: 5, OverlapWords: 1}, model.EmbeddingConfig{}, quietLogger())

	records := []model.RawDocumentRecord{
		{Title: "Vitamin C", Abstract: words(8), DOI: "10.1/vc", Source: "crossref"},
		{Title: "Short", Source: "arxiv"},
		{Source: "arxiv"},
	}
	report, err := in.EmbedAndPersist(context.Background(), records, "fetch-test")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Skipped, "record without text is skipped")
	assert.Equal(t, 0, report.Failed)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	// 10 words in windows of 5 stepping 4 gives 3 chunks, plus one short record
	assert.Equal(t, 4, count)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.BySource["fetch-test"])

	// re-ingest is idempotent
	again, err := in.EmbedAndPersist(context.Background(), records[:2], "fetch-test")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Succeeded)
	assert.Equal(t, 2, again.Skipped)
}

func TestEmbedAndPersist_DimensionMismatch(t *testing.T) {
	s := newStore(t, 384)
	in := NewIngestor(&fakeEmbedder{width: 768}, s, model.IngestConfig{}, model.EmbeddingConfig{}, quietLogger())

	records := []model.RawDocumentRecord{
		{Title: "one", DOI: "10.1/1"},
		{Title: "two", DOI: "10.1/2"},
		{Title: "three", DOI: "10.1/3"},
	}
	report, err := in.EmbedAndPersist(context.Background(), records, "test")
	require.NoError(t, err, "Expected batch to succeed despite skips")
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Succeeded)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEmbedAndPersist_EmbeddingFailure(t *testing.T) {
	s := newStore(t, 4)
	boom := errors.New("provider down")
	in := NewIngestor(&fakeEmbedder{width: 4, err: boom}, s, model.IngestConfig{}, model.EmbeddingConfig{}, quietLogger())

	report, err := in.EmbedAndPersist(context.Background(), []model.RawDocumentRecord{{Title: "x", DOI: "10.1/x"}}, "test")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, report.Failed)
}

func TestIngestChunks_DetectsDimension(t *testing.T) {
	s := newStore(t, 0)
	in := NewIngestor(&fakeEmbedder{width: 3}, s, model.IngestConfig{}, model.EmbeddingConfig{}, quietLogger())

	report, err := in.IngestChunks(context.Background(), []model.EvidenceChunk{
		{DocID: "d", ChunkIndex: 0, Text: "a", Embedding: []float32{1, 2, 3}},
		{DocID: "d", ChunkIndex: 1, Text: "b", Embedding: []float32{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Dimension())
	assert.Equal(t, 1, report.Succeeded, "two chunks of one document form one record")
	assert.Equal(t, 2, report.Records[0].Chunks)
}

func TestIngestRaw(t *testing.T) {
	s := newStore(t, 4)
	emb := &fakeEmbedder{width: 4}
	in := NewIngestor(emb, s, model.IngestConfig{}, model.EmbeddingConfig{}, quietLogger())

	raw := `{"data":[{"paperId":"p","title":"Coffee and longevity","abstract":"Moderate intake.","externalIds":{"DOI":"10.9/c"}}]}`
	src := sources.NewSemanticScholar(nil, "", "")

	report, err := in.IngestRaw(context.Background(), src, []byte(raw), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.BySource["semantic_scholar"])

	_, err = in.IngestRaw(context.Background(), src, []byte("nope"), "")
	assert.Error(t, err)
}

func TestEmbed_LeavesStoreUntouched(t *testing.T) {
	s := newStore(t, 4)
	in := NewIngestor(&fakeEmbedder{width: 4}, s, model.IngestConfig{WindowWords: 5, OverlapWords: 1}, model.EmbeddingConfig{}, quietLogger())

	chunks, report, err := in.Embed(context.Background(), []model.RawDocumentRecord{
		{Title: "Vitamin C", Abstract: words(8), DOI: "10.1/vc", Source: "crossref"},
	}, "")
	require.NoError(t, err)
	assert.Zero(t, report.Total())
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Len(t, c.Embedding, 4)
		assert.Equal(t, "crossref", c.SourceFile)
	}

	var buf strings.Builder
	require.NoError(t, store.WriteChunks(&buf, chunks))
	back, err := store.ReadChunks(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Len(t, back, 3)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

// reassemble joins chunks produced with the given overlap back into the
// original word sequence
func reassemble(chunks []string, overlap int) []string {
	var words []string
	for i, c := range chunks {
		w := strings.Fields(c)
		if i > 0 && overlap > 0 {
			w = w[min(overlap, len(w)):]
		}
		words = append(words, w...)
	}
	return words
}
