package sources

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Fetch statuses recorded in the ingestion log
const (
	StatusOK        = "ok"
	StatusNoResults = "no_results"
	StatusFailed    = "error"
)

var logHeader = []string{"timestamp", "source", "query", "file", "status", "notes"}

// LogEntry is one row of the ingestion log
type LogEntry struct {
	Timestamp time.Time
	Source    string
	Query     string
	File      string
	Status    string
	Notes     string
}

// IngestionLog is an append-only CSV record of every fetch attempt
type IngestionLog struct {
	path string
	mu   sync.Mutex
}

// NewIngestionLog returns a log writing to path. An empty path discards rows.
func NewIngestionLog(path string) *IngestionLog {
	return &IngestionLog{path: path}
}

// Append writes one row, creating the file with its header when needed
func (l *IngestionLog) Append(e LogEntry) error {
	if l == nil || l.path == "" {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open ingestion log: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ingestion log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(logHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	row := []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Source,
		e.Query,
		e.File,
		e.Status,
		e.Notes,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// ReadLog returns every row of the log at path (header excluded)
func ReadLog(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse ingestion log: %w", err)
	}

	var entries []LogEntry
	for i, rec := range records {
		if i == 0 || len(rec) != len(logHeader) {
			continue
		}
		ts, _ := time.Parse(time.RFC3339, rec[0])
		entries = append(entries, LogEntry{
			Timestamp: ts,
			Source:    rec[1],
			Query:     rec[2],
			File:      rec[3],
			Status:    rec[4],
			Notes:     rec[5],
		})
	}
	return entries, nil
}
