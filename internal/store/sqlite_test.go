package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/model"
)

func newSQLite(t *testing.T, dim int) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "evidence.db"), "evidence_chunks", 2, slog.Default())
	require.NoError(t, err, "Expected OpenSQLite to not return an error")
	t.Cleanup(func() { _ = s.Close() })

	if dim > 0 {
		require.NoError(t, s.EnsureSchema(ctx, dim))
	}
	return s
}

func chunk(doc string, idx int, emb ...float32) model.EvidenceChunk {
	return model.EvidenceChunk{
		DocID:      doc,
		SafeID:     doc,
		SourceFile: "test",
		ChunkIndex: idx,
		Text:       "text of " + doc,
		NWords:     3,
		Embedding:  emb,
	}
}

func TestSQLiteInsertAndQuery(t *testing.T) {
	s := newSQLite(t, 2)
	ctx := context.Background()

	report, err := s.InsertBatch(ctx, []model.EvidenceChunk{
		chunk("a", 0, 0, 0),
		chunk("b", 0, 1, 0),
		chunk("c", 0, 5, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded, "Expected all chunks inserted")

	neighbors, err := s.NearestNeighbors(ctx, []float32{0.9, 0}, 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "b", neighbors[0].Chunk.DocID, "Expected closest chunk first")
	assert.Equal(t, "a", neighbors[1].Chunk.DocID)
	assert.InDelta(t, 0.1, neighbors[0].Distance, 1e-6)
	assert.Len(t, neighbors[0].Chunk.Embedding, 2, "Expected embedding decoded")
}

func TestSQLiteReingestIsIdempotent(t *testing.T) {
	s := newSQLite(t, 2)
	ctx := context.Background()
	batch := []model.EvidenceChunk{chunk("a", 0, 1, 1), chunk("a", 1, 2, 2)}

	_, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)

	report, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 2, report.Skipped, "Expected existing chunks to be skipped")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLitePagedInsertAcrossPages(t *testing.T) {
	s := newSQLite(t, 2) // page size 2
	ctx := context.Background()

	_, err := s.InsertBatch(ctx, []model.EvidenceChunk{chunk("b", 0, 1, 1), chunk("d", 0, 3, 3)})
	require.NoError(t, err)

	report, err := s.InsertBatch(ctx, []model.EvidenceChunk{
		chunk("a", 0, 0, 0),
		chunk("b", 0, 1, 1),
		chunk("c", 0, 2, 2),
		chunk("d", 0, 3, 3),
		chunk("e", 0, 4, 4),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 2, report.Skipped)

	statuses := make(map[string]model.RecordStatus)
	for _, r := range report.Records {
		statuses[r.DocID] = r.Status
	}
	assert.Equal(t, model.StatusSkipped, statuses["b"])
	assert.Equal(t, model.StatusSkipped, statuses["d"])
	assert.Equal(t, model.StatusInserted, statuses["e"], "Expected the last partial page inserted")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestSQLiteDimensionMismatchSkipped(t *testing.T) {
	s := newSQLite(t, 384)
	ctx := context.Background()

	wide := make([]float32, 768)
	report, err := s.InsertBatch(ctx, []model.EvidenceChunk{
		chunk("a", 0, wide...),
		chunk("a", 1, wide...),
		chunk("a", 2, wide...),
	})
	require.NoError(t, err, "Expected the batch itself to succeed")
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "Expected nothing stored")
}

func TestSQLiteMixedWidths(t *testing.T) {
	s := newSQLite(t, 2)
	report, err := s.InsertBatch(context.Background(), []model.EvidenceChunk{
		chunk("a", 0, 1, 1),
		chunk("b", 0, 1, 1, 1),
		chunk("c", 0, 2, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
}

func TestSQLiteDimensionPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "evidence.db")

	s, err := OpenSQLite(ctx, path, "evidence_chunks", 100, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx, 3))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, "evidence_chunks", 100, slog.Default())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.Dimension(), "Expected width read back from meta table")
	assert.ErrorIs(t, s.EnsureSchema(ctx, 4), ErrDimensionConflict)
}

func TestSQLiteQueryBeforeSchema(t *testing.T) {
	s := newSQLite(t, 0)
	_, err := s.NearestNeighbors(context.Background(), []float32{1}, 3)
	assert.ErrorIs(t, err, ErrDimensionUnknown)

	_, err = s.InsertBatch(context.Background(), []model.EvidenceChunk{chunk("a", 0, 1)})
	assert.ErrorIs(t, err, ErrDimensionUnknown)
}

func TestSQLiteQueryWidth(t *testing.T) {
	s := newSQLite(t, 2)
	_, err := s.NearestNeighbors(context.Background(), []float32{1, 2, 3}, 3)
	assert.ErrorIs(t, err, ErrQueryDimension)
}

func TestSQLiteStatsAndPurge(t *testing.T) {
	s := newSQLite(t, 1)
	ctx := context.Background()

	fetched := chunk("x", 0, 1)
	fetched.SourceFile = "dynamic_fetch"
	_, err := s.InsertBatch(ctx, []model.EvidenceChunk{chunk("a", 0, 1), chunk("b", 0, 2), fetched})
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.BySource["test"])
	assert.Equal(t, 1, st.BySource["dynamic_fetch"])

	n, err := s.Purge(ctx, "dynamic_fetch")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Purge(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), model.StoreConfig{Driver: "mongo"}, nil)
	assert.Error(t, err)
}

func TestOpenRejectsBadTable(t *testing.T) {
	_, err := Open(context.Background(), model.StoreConfig{Driver: "sqlite", DSN: ":memory:", Table: "x; DROP"}, nil)
	assert.Error(t, err)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}))
}

func TestEnsurePragmas(t *testing.T) {
	assert.Equal(t, ":memory:", ensurePragmas(":memory:", true, 5000))
	assert.Equal(t, "x.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", ensurePragmas("x.db", true, 5000))
	assert.Equal(t, "x.db?_pragma=busy_timeout(10)&_pragma=journal_mode(WAL)", ensurePragmas("x.db?_pragma=busy_timeout(10)", true, 5000))
}
