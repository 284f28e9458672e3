// Package store persists evidence chunks and answers nearest-neighbor
// queries over their embeddings.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

var (
	// ErrNoValidEmbedding means dimension auto-detection found nothing usable
	ErrNoValidEmbedding = errors.New("no valid embedding found for dimension detection")

	// ErrDimensionUnknown means the store has no configured width yet
	ErrDimensionUnknown = errors.New("store dimension unknown")

	// ErrDimensionConflict means an existing table has a different width
	ErrDimensionConflict = errors.New("store dimension conflict")

	// ErrQueryDimension means a query vector does not match the store width
	ErrQueryDimension = errors.New("query vector width does not match store")
)

// DefaultPageSize is the number of rows per multi-row insert
const DefaultPageSize = 200

// Store is a vector-indexed, durable collection of evidence chunks
type Store interface {
	// EnsureSchema creates the backing table with the given vector width
	// if it does not exist. An existing table keeps its width.
	EnsureSchema(ctx context.Context, dim int) error

	// Dimension returns the configured vector width (0 before EnsureSchema)
	Dimension() int

	// InsertBatch writes chunks atomically. Chunks whose embedding width
	// differs from Dimension are skipped, never stored.
	InsertBatch(ctx context.Context, chunks []model.EvidenceChunk) (model.BatchReport, error)

	// NearestNeighbors returns up to k chunks by ascending L2 distance
	NearestNeighbors(ctx context.Context, vec []float32, k int) ([]model.Neighbor, error)

	// Count returns the number of stored chunks
	Count(ctx context.Context) (int, error)

	// Stats summarizes the store contents
	Stats(ctx context.Context) (Stats, error)

	// Purge deletes the chunks of one source file label, or every chunk
	// when sourceFile is empty
	Purge(ctx context.Context, sourceFile string) (int64, error)

	Close() error
}

// Stats describes the store contents
type Stats struct {
	Driver    string         `json:"driver"`
	Table     string         `json:"table"`
	Dimension int            `json:"dimension"`
	Total     int            `json:"total"`
	BySource  map[string]int `json:"by_source"`
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Open creates the store backend selected by cfg.Driver. When
// cfg.Dimension is set the schema is ensured right away.
func Open(ctx context.Context, cfg model.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table := cfg.Table
	if table == "" {
		table = "evidence_chunks"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "postgres", "postgresql":
		s, err = OpenPostgres(ctx, cfg.DSN, table, pageSize, logger)
	case "sqlite", "":
		s, err = OpenSQLite(ctx, cfg.DSN, table, pageSize, logger)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Dimension > 0 {
		if err := s.EnsureSchema(ctx, cfg.Dimension); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// partition splits chunks into those matching dim and skip results for the rest
func partition(chunks []model.EvidenceChunk, dim int, logger *slog.Logger) ([]model.EvidenceChunk, model.BatchReport) {
	var report model.BatchReport
	valid := make([]model.EvidenceChunk, 0, len(chunks))

	for _, c := range chunks {
		if len(c.Embedding) != dim {
			logger.Warn("skipping chunk with mismatched embedding width",
				"doc_id", c.DocID,
				"chunk_index", c.ChunkIndex,
				"got", len(c.Embedding),
				"want", dim,
			)
			report.Add(model.RecordResult{
				DocID:  c.DocID,
				Chunks: 1,
				Status: model.StatusSkipped,
				Reason: fmt.Sprintf("chunk %d: embedding width %d, store width %d", c.ChunkIndex, len(c.Embedding), dim),
			})
			continue
		}
		valid = append(valid, c)
	}
	return valid, report
}

func failAll(report *model.BatchReport, chunks []model.EvidenceChunk, err error) {
	for _, c := range chunks {
		report.Add(model.RecordResult{
			DocID:  c.DocID,
			Chunks: 1,
			Status: model.StatusFailed,
			Reason: fmt.Sprintf("chunk %d: %v", c.ChunkIndex, err),
		})
	}
}

// dedupe keeps the first chunk for each (doc_id, chunk_index)
func dedupe(chunks []model.EvidenceChunk) ([]model.EvidenceChunk, model.BatchReport) {
	var report model.BatchReport
	seen := make(map[model.ChunkKey]bool, len(chunks))
	out := chunks[:0:0]

	for _, c := range chunks {
		key := model.ChunkKey{DocID: c.DocID, ChunkIndex: c.ChunkIndex}
		if seen[key] {
			report.Add(model.RecordResult{
				DocID:  c.DocID,
				Chunks: 1,
				Status: model.StatusSkipped,
				Reason: fmt.Sprintf("chunk %d duplicated in batch", c.ChunkIndex),
			})
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, report
}

func countReport(r model.BatchReport) {
	metrics.IngestedChunks.WithLabelValues(string(model.StatusInserted)).Add(float64(r.Succeeded))
	metrics.IngestedChunks.WithLabelValues(string(model.StatusSkipped)).Add(float64(r.Skipped))
	metrics.IngestedChunks.WithLabelValues(string(model.StatusFailed)).Add(float64(r.Failed))
}
