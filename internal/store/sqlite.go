package store

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/claimcheck/internal/embed"
	"github.com/ppiankov/claimcheck/internal/model"
)

const busyTimeoutMS = 5000

// SQLiteStore keeps chunks in a single-file database. Embeddings are
// little-endian float32 blobs; distances are computed in process.
type SQLiteStore struct {
	db       *sql.DB
	table    string
	pageSize int
	logger   *slog.Logger

	mu  sync.RWMutex
	dim int
}

// OpenSQLite opens (creating if needed) the database at dsn
func OpenSQLite(ctx context.Context, dsn, table string, pageSize int, logger *slog.Logger) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if !isMemoryDSN(dsn) {
		if dir := filepath.Dir(sqlitePath(dsn)); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", ensurePragmas(dsn, true, busyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if isMemoryDSN(dsn) {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS claimcheck_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate meta: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		table:    table,
		pageSize: max(pageSize, 1),
		logger:   logger,
	}

	dim, err := s.storedDimension(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.dim = dim

	return s, nil
}

func (s *SQLiteStore) metaKey() string {
	return s.table + ".dimension"
}

func (s *SQLiteStore) storedDimension(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM claimcheck_meta WHERE key = ?`, s.metaKey()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dimension: %w", err)
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("corrupt dimension %q: %w", value, err)
	}
	return dim, nil
}

// EnsureSchema creates the chunk table and records its width
func (s *SQLiteStore) EnsureSchema(ctx context.Context, dim int) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id      TEXT NOT NULL,
			safe_id     TEXT NOT NULL,
			source_file TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			n_words     INTEGER NOT NULL,
			text        TEXT NOT NULL,
			doi         TEXT,
			embedding   BLOB NOT NULL,
			created_at  TEXT NOT NULL,
			UNIQUE (doc_id, chunk_index)
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_file_idx ON %s (source_file)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO claimcheck_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		s.metaKey(), strconv.Itoa(dim))
	if err != nil {
		return fmt.Errorf("record dimension: %w", err)
	}

	var stored string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM claimcheck_meta WHERE key = ?`, s.metaKey()).Scan(&stored); err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}
	if stored != strconv.Itoa(dim) {
		return fmt.Errorf("%w: table %s has width %s, requested %d", ErrDimensionConflict, s.table, stored, dim)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	s.dim = dim

	s.logger.Info("evidence table ready", "table", s.table, "dimension", dim)
	return nil
}

// Dimension returns the recorded vector width
func (s *SQLiteStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// InsertBatch writes chunks in one transaction; existing keys are skipped
func (s *SQLiteStore) InsertBatch(ctx context.Context, chunks []model.EvidenceChunk) (model.BatchReport, error) {
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
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for start := 0; start < len(valid); start += s.pageSize {
		page := valid[start:min(start+s.pageSize, len(valid))]
		if err := s.insertPage(ctx, tx, page, now, inserted); err != nil {
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
		if inserted[model.ChunkKey{DocID: c.DocID, ChunkIndex: c.ChunkIndex}] {
			report.Add(model.RecordResult{DocID: c.DocID, Chunks: 1, Status: model.StatusInserted})
			continue
		}
		report.Add(model.RecordResult{
			DocID:  c.DocID,
			Chunks: 1,
			Status: model.StatusSkipped,
			Reason: fmt.Sprintf("chunk %d already stored", c.ChunkIndex),
		})
	}
	countReport(report)
	return report, nil
}

// insertPage writes one multi-row INSERT and records the keys it created
func (s *SQLiteStore) insertPage(ctx context.Context, tx *sql.Tx, page []model.EvidenceChunk, now string, inserted map[model.ChunkKey]bool) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s
		(doc_id, safe_id, source_file, chunk_index, n_words, text, doi, embedding, created_at) VALUES `, s.table)

	args := make([]any, 0, len(page)*(chunkColumns+1))
	for i, c := range page {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			c.DocID,
			c.SafeID,
			c.SourceFile,
			c.ChunkIndex,
			c.NWords,
			c.Text,
			nullString(c.DOI),
			encodeVector(c.Embedding),
			now,
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

// NearestNeighbors scans every embedding and keeps the k closest
func (s *SQLiteStore) NearestNeighbors(ctx context.Context, vec []float32, k int) ([]model.Neighbor, error) {
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

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, doc_id, safe_id, source_file, chunk_index, n_words, text,
		       COALESCE(doi, ''), embedding, created_at
		FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	h := &neighborHeap{}
	for rows.Next() {
		var (
			c       model.EvidenceChunk
			blob    []byte
			created string
		)
		err := rows.Scan(&c.ID, &c.DocID, &c.SafeID, &c.SourceFile, &c.ChunkIndex,
			&c.NWords, &c.Text, &c.DOI, &blob, &created)
		if err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		emb := decodeVector(blob)
		if len(emb) != dim {
			continue
		}
		c.Embedding = emb
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

		n := model.Neighbor{Chunk: c, Distance: embed.L2(vec, emb)}
		if h.Len() < k {
			heap.Push(h, n)
		} else if n.Distance < (*h)[0].Distance {
			(*h)[0] = n
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(model.Neighbor)
	}
	return out, nil
}

// Count returns the number of stored chunks
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
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
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Driver: "sqlite", Table: s.table, Dimension: s.Dimension(), BySource: map[string]int{}}
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
func (s *SQLiteStore) Purge(ctx context.Context, sourceFile string) (int64, error) {
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
		res, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source_file = ?`, s.table), sourceFile)
	}
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// neighborHeap is a max-heap on distance holding the current best k
type neighborHeap []model.Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *neighborHeap) Push(x any) { *h = append(*h, x.(model.Neighbor)) }

func (h *neighborHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
