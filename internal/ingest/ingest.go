// Package ingest turns bibliographic records into embedded evidence chunks
// and writes them to the evidence store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/sources"
	"github.com/ppiankov/claimcheck/internal/store"
)

// Embedder produces one vector per text
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize, dim int) ([][]float32, error)
}

// Ingestor chunks, embeds and persists documents
type Ingestor struct {
	embedder  Embedder
	store     store.Store
	window    int
	overlap   int
	batchSize int
	dim       int
	logger    *slog.Logger
}

// NewIngestor creates an ingestor writing to s
func NewIngestor(e Embedder, s store.Store, cfg model.IngestConfig, embCfg model.EmbeddingConfig, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.WindowWords
	if window <= 0 {
		window = DefaultWindowWords
	}
	overlap := cfg.OverlapWords
	if overlap < 0 {
		overlap = DefaultOverlapWords
	}
	return &Ingestor{
		embedder:  e,
		store:     s,
		window:    window,
		overlap:   overlap,
		batchSize: embCfg.BatchSize,
		dim:       embCfg.Dimensions,
		logger:    logger,
	}
}

// Prepare chunks records into evidence chunks without embeddings.
// Records with no text are reported as skipped.
func (in *Ingestor) Prepare(records []model.RawDocumentRecord, label string) ([]model.EvidenceChunk, model.BatchReport) {
	var (
		chunks []model.EvidenceChunk
		report model.BatchReport
	)
	for _, rec := range records {
		docID := DocID(rec)
		pieces := Chunk(rec.Text(), in.window, in.overlap)
		if len(pieces) == 0 {
			report.Add(model.RecordResult{DocID: docID, Status: model.StatusSkipped, Reason: "no text"})
			continue
		}
		source := label
		if source == "" {
			source = rec.Source
		}
		for i, text := range pieces {
			chunks = append(chunks, model.EvidenceChunk{
				DocID:      docID,
				SafeID:     SafeID(docID),
				SourceFile: source,
				ChunkIndex: i,
				Text:       text,
				NWords:     len(strings.Fields(text)),
				DOI:        rec.DOI,
			})
		}
	}
	return chunks, report
}

// Embed chunks every record and embeds all chunks without writing them.
// An embedding failure fails every record and is returned.
func (in *Ingestor) Embed(ctx context.Context, records []model.RawDocumentRecord, label string) ([]model.EvidenceChunk, model.BatchReport, error) {
	chunks, report := in.Prepare(records, label)
	if len(chunks) == 0 {
		return nil, report, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := in.embedder.Embed(ctx, texts, in.batchSize, in.dim)
	if err != nil {
		report.Merge(byRecord(failed(chunks, err)))
		return nil, report, fmt.Errorf("embed chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return chunks, report, nil
}

// EmbedAndPersist chunks every record, embeds all chunks and writes them to
// the store under the given source label. An embedding failure fails the
// whole batch and is returned; store-level skips are reported per record.
func (in *Ingestor) EmbedAndPersist(ctx context.Context, records []model.RawDocumentRecord, label string) (model.BatchReport, error) {
	defer metrics.ObserveStage("ingest", time.Now())

	chunks, report, err := in.Embed(ctx, records, label)
	if err != nil || len(chunks) == 0 {
		return report, err
	}

	written, err := in.IngestChunks(ctx, chunks)
	report.Merge(written)
	if err != nil {
		return report, err
	}

	in.logger.Info("documents ingested",
		"label", label,
		"records", len(records),
		"chunks", len(chunks),
		"report", report.String(),
	)
	return report, nil
}

// IngestRaw parses a raw response body of src and ingests its records
func (in *Ingestor) IngestRaw(ctx context.Context, src sources.Source, raw []byte, label string) (model.BatchReport, error) {
	records, err := src.Parse(raw)
	if err != nil {
		return model.BatchReport{}, fmt.Errorf("parse %s response: %w", src.Name(), err)
	}
	if label == "" {
		label = src.Name()
	}
	return in.EmbedAndPersist(ctx, records, label)
}

// IngestChunks writes already embedded chunks. A store without a width
// takes the width of the first usable embedding.
func (in *Ingestor) IngestChunks(ctx context.Context, chunks []model.EvidenceChunk) (model.BatchReport, error) {
	if len(chunks) == 0 {
		return model.BatchReport{}, nil
	}

	if in.store.Dimension() == 0 {
		dim, err := store.DimensionOf(chunks)
		if err != nil {
			return byRecord(failed(chunks, err)), err
		}
		if err := in.store.EnsureSchema(ctx, dim); err != nil {
			return byRecord(failed(chunks, err)), fmt.Errorf("ensure schema: %w", err)
		}
	}

	written, err := in.store.InsertBatch(ctx, chunks)
	report := byRecord(written)
	if err != nil {
		return report, fmt.Errorf("insert chunks: %w", err)
	}
	if report.Skipped > 0 {
		in.logger.Warn("some documents were skipped", "skipped", report.Skipped, "stored", report.Succeeded)
	}
	return report, nil
}

func failed(chunks []model.EvidenceChunk, err error) model.BatchReport {
	var r model.BatchReport
	for _, c := range chunks {
		r.Add(model.RecordResult{DocID: c.DocID, Chunks: 1, Status: model.StatusFailed, Reason: err.Error()})
	}
	return r
}

// byRecord folds chunk-level results into one result per document:
// inserted when any chunk was stored, failed when any chunk failed and
// none was stored, skipped otherwise
func byRecord(chunkReport model.BatchReport) model.BatchReport {
	type agg struct {
		inserted, skipped, failed int
		reason                    string
	}
	var order []string
	docs := make(map[string]*agg)

	for _, res := range chunkReport.Records {
		a, ok := docs[res.DocID]
		if !ok {
			a = &agg{}
			docs[res.DocID] = a
			order = append(order, res.DocID)
		}
		switch res.Status {
		case model.StatusInserted:
			a.inserted += res.Chunks
		case model.StatusSkipped:
			a.skipped += res.Chunks
		default:
			a.failed += res.Chunks
		}
		if a.reason == "" && res.Reason != "" {
			a.reason = res.Reason
		}
	}

	var out model.BatchReport
	for _, id := range order {
		a := docs[id]
		res := model.RecordResult{DocID: id}
		switch {
		case a.inserted > 0:
			res.Status = model.StatusInserted
			res.Chunks = a.inserted
		case a.failed > 0:
			res.Status = model.StatusFailed
			res.Chunks = a.failed
			res.Reason = a.reason
		default:
			res.Status = model.StatusSkipped
			res.Chunks = a.skipped
			res.Reason = a.reason
		}
		out.Add(res)
	}
	return out
}
