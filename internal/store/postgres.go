package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ppiankov/claimcheck/internal/model"
)

const chunkColumns = 8

// PostgresStore keeps chunks in a pgvector table and lets the database
// order by L2 distance
type PostgresStore struct {
	db       *sql.DB
	table    string
	pageSize int
	logger   *slog.Logger

	mu  sync.RWMutex
	dim int
}

// OpenPostgres connects to dsn and reads back the width of an existing table
func OpenPostgres(ctx context.Context, dsn, table string, pageSize int, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{
		db:       db,
		table:    table,
		pageSize: max(pageSize, 1),
		logger:   logger,
	}

	dim, err := s.tableDimension(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.dim = dim

	return s, nil
}

// tableDimension returns the vector width of an existing table, 0 if absent
func (s *PostgresStore) tableDimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1)
		  AND a.attname = 'embedding'
		  AND NOT a.attisdropped`, s.table).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read table dimension: %w", err)
	}
	return dim, nil
}

// EnsureSchema creates the vector extension, table and unique key
func (s *PostgresStore) EnsureSchema(ctx context.Context, dim int) error {
	if dim <= 0 {
		return ErrDimensionUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim > 0 {
		if s.dim != dim {
			return fmt.Errorf("%w: table %s has width %d, requested %d", ErrDimensionConflict, s.table, s.dim, dim)
		}
		return nil
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			doc_id TEXT NOT NULL,
			safe_id TEXT NOT NULL,
			source_file TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			n_words INTEGER NOT NULL,
			text TEXT NOT NULL,
			doi TEXT,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (doc_id, chunk_index)
		)`, s.table, dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_file_idx ON %s (source_file)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// a concurrent creator may have won with another width
	got, err := s.tableDimension(ctx)
	if err != nil {
		return err
	}
	if got != dim {
		return fmt.Errorf("%w: table %s has width %d, requested %d", ErrDimensionConflict, s.table, got, dim)
	}
	s.dim = dim

	s.logger.Info("evidence table ready", "table", s.table, "dimension", dim)
	return nil
}

// Dimension returns the table vector width
func (s *PostgresStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// InsertBatch writes chunks in multi-row pages inside one transaction.
// Existing (doc_id, chunk_index) pairs are reported as skipped.
func (s *PostgresStore) InsertBatch(ctx context.Context, chunks []model.EvidenceChunk) (model.BatchReport, error) {
	dim := s.Dimension()
	if dim == 0 {
		return model.BatchReport{}, ErrDimensionUnknown
	}

	valid, report := partition(chunks, dim, s.logger)
	valid, dups := dedupe(valid)
	report.Merge(dups)
	if len(valid) == 0 {
		countReport(report)
		return report, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		failAll(&report, valid, err)
		countReport(report)
		return report, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := make(map[model.ChunkKey]bool, len(valid))
	for start := 0; start < len(valid); start += s.pageSize {
		page := valid[start:min(start+s.pageSize, len(valid))]
		if err := s.insertPage(ctx, tx, page, inserted); err != nil {
			failAll(&report, valid, err)
			countReport(report)
			return report, err
		}
	}

	if err := tx.Commit(); err != nil {
		failAll(&report, valid, err)
		countReport(report)
		return report, fmt.Errorf("commit: %w", err)
	}

	for _, c := range valid {
		key := model.ChunkKey{DocID: c.DocID, ChunkIndex: c.ChunkIndex}
		if inserted[key] {
			report.Add(model.RecordResult{DocID: c.DocID, Chunks: 1, Status: model.StatusInserted})
		} else {
			report.Add(model.RecordResult{
				DocID:  c.DocID,
				Chunks: 1,
				Status: model.StatusSkipped,
				Reason: fmt.Sprintf("chunk %d already stored", c.ChunkIndex),
			})
		}
	}
	countReport(report)
	return report, nil
}

func (s *PostgresStore) insertPage(ctx context.Context, tx *sql.Tx, page []model.EvidenceChunk, inserted map[model.ChunkKey]bool) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s (doc_id, safe_id, source_file, chunk_index, n_words, text, doi, embedding) VALUES `, s.table)

	args := make([]any, 0, len(page)*chunkColumns)
	for i, c := range page {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * chunkColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8)
		args = append(args,
			c.DocID,
			c.SafeID,
			c.SourceFile,
			c.ChunkIndex,
			c.NWords,
			c.Text,
			nullString(c.DOI),
			pgvector.NewVector(c.Embedding),
		)
	}
	sb.WriteString(" ON CONFLICT (doc_id, chunk_index) DO NOTHING RETURNING doc_id, chunk_index")

	rows, err := tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key model.ChunkKey
		if err := rows.Scan(&key.DocID, &key.ChunkIndex); err != nil {
			return fmt.Errorf("scan inserted key: %w", err)
		}
		inserted[key] = true
	}
	return rows.Err()
}

// NearestNeighbors orders by embedding <-> vec
func (s *PostgresStore) NearestNeighbors(ctx context.Context, vec []float32, k int) ([]model.Neighbor, error) {
	dim := s.Dimension()
	if dim == 0 {
		return nil, ErrDimensionUnknown
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrQueryDimension, len(vec), dim)
	}
	if k <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, doc_id, safe_id, source_file, chunk_index, n_words, text,
		       COALESCE(doi, ''), embedding, created_at, embedding <-> $1 AS distance
		FROM %s
		ORDER BY embedding <-> $1
		LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	var out []model.Neighbor
	for rows.Next() {
		var (
			n   model.Neighbor
			emb pgvector.Vector
		)
		err := rows.Scan(
			&n.Chunk.ID,
			&n.Chunk.DocID,
			&n.Chunk.SafeID,
			&n.Chunk.SourceFile,
			&n.Chunk.ChunkIndex,
			&n.Chunk.NWords,
			&n.Chunk.Text,
			&n.Chunk.DOI,
			&emb,
			&n.Chunk.CreatedAt,
			&n.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		n.Chunk.Embedding = emb.Slice()
		out = append(out, n)
	}
	return out, rows.Err()
}

// Count returns the number of stored chunks
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	if s.Dimension() == 0 {
		return 0, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Stats groups chunk counts by source file label
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Driver: "postgres", Table: s.table, Dimension: s.Dimension(), BySource: map[string]int{}}
	if st.Dimension == 0 {
		return st, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT source_file, COUNT(*) FROM %s GROUP BY source_file`, s.table))
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return st, fmt.Errorf("scan stats: %w", err)
		}
		st.BySource[source] = n
		st.Total += n
	}
	return st, rows.Err()
}

// Purge deletes chunks for one source label, or all chunks
func (s *PostgresStore) Purge(ctx context.Context, sourceFile string) (int64, error) {
	if s.Dimension() == 0 {
		return 0, nil
	}

	var (
		res sql.Result
		err error
	)
	if sourceFile == "" {
		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	} else {
		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source_file = $1`, s.table), sourceFile)
	}
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
