package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const maxLineBytes = 16 << 20

// ReadChunks decodes newline-delimited chunk records. Blank lines are
// ignored; a malformed line fails the read with its line number.
func ReadChunks(r io.Reader) ([]model.EvidenceChunk, error) {
	var chunks []model.EvidenceChunk

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c model.EvidenceChunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if c.NWords == 0 {
			c.NWords = len(strings.Fields(c.Text))
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return chunks, nil
}

// WriteChunks encodes chunks as newline-delimited JSON
func WriteChunks(w io.Writer, chunks []model.EvidenceChunk) error {
	enc := json.NewEncoder(w)
	for i := range chunks {
		if err := enc.Encode(&chunks[i]); err != nil {
			return fmt.Errorf("write chunk %d: %w", i, err)
		}
	}
	return nil
}

// DetectDimension scans chunk records for the first non-empty embedding
// and returns its width
func DetectDimension(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		var rec struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if len(rec.Embedding) > 0 {
			return len(rec.Embedding), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan chunks: %w", err)
	}
	return 0, ErrNoValidEmbedding
}

// DimensionOf returns the width of the first chunk carrying an embedding
func DimensionOf(chunks []model.EvidenceChunk) (int, error) {
	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			return len(c.Embedding), nil
		}
	}
	return 0, ErrNoValidEmbedding
}
