package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/claimcheck/internal/embed"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/sources"
)

// SourceFetcher queries every configured bibliographic source
type SourceFetcher interface {
	FetchAll(ctx context.Context, query string, limit int) []sources.Outcome
}

// Embedder produces one vector per text
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize, dim int) ([][]float32, error)
}

// Ingester chunks, embeds and persists fetched documents
type Ingester interface {
	EmbedAndPersist(ctx context.Context, records []model.RawDocumentRecord, label string) (model.BatchReport, error)
}

// FetchOutcome is the result of one dynamic fetch round
type FetchOutcome struct {
	Documents int                        // records returned by all sources, after dedupe
	Selected  []model.RetrievalCandidate // top records by similarity to the claim, usable as direct evidence
	Report    model.BatchReport          // re-ingestion of the selected records
	Err       error
}

// Ingested reports whether any selected record reached the store
func (o FetchOutcome) Ingested() bool {
	return o.Report.Succeeded > 0
}

// DynamicFetcher pulls fresh documents for a claim when stored evidence is weak
type DynamicFetcher struct {
	sources   SourceFetcher
	embedder  Embedder
	ingester  Ingester
	cfg       model.DynamicFetchConfig
	batchSize int
	dim       int
	logger    *slog.Logger
}

// NewDynamicFetcher creates a dynamic fetcher. Zero config fields take
// the defaults: 10 records per source, top 10, direct relevance 0.8.
func NewDynamicFetcher(s SourceFetcher, e Embedder, in Ingester, cfg model.DynamicFetchConfig, embCfg model.EmbeddingConfig, logger *slog.Logger) *DynamicFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PerSourceLimit <= 0 {
		cfg.PerSourceLimit = 10
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.DirectRelevance <= 0 {
		cfg.DirectRelevance = 0.8
	}
	if cfg.SourceFileLabel == "" {
		cfg.SourceFileLabel = "dynamic_fetch"
	}
	return &DynamicFetcher{
		sources:   s,
		embedder:  e,
		ingester:  in,
		cfg:       cfg,
		batchSize: embCfg.BatchSize,
		dim:       embCfg.Dimensions,
		logger:    logger,
	}
}

// Fetch queries all sources with the claim, ranks the pooled documents by
// cosine similarity to the claim and re-ingests the top N. The ranked top
// N are returned as direct candidates whether or not ingestion worked.
func (d *DynamicFetcher) Fetch(ctx context.Context, claim string) FetchOutcome {
	defer metrics.ObserveStage("dynamic_fetch", time.Now())

	records := uniqueRecords(sources.Records(d.sources.FetchAll(ctx, claim, d.cfg.PerSourceLimit)))
	out := FetchOutcome{Documents: len(records)}
	if len(records) == 0 {
		d.logger.Info("dynamic fetch found no documents", "claim", claim)
		return out
	}

	texts := make([]string, 0, len(records)+1)
	texts = append(texts, claim)
	for _, r := range records {
		texts = append(texts, r.Text())
	}
	vectors, err := d.embedder.Embed(ctx, texts, d.batchSize, d.dim)
	if err != nil {
		out.Err = fmt.Errorf("embed fetched documents: %w", err)
		d.logger.Warn("dynamic fetch ranking failed", "error", err)
		return out
	}

	ranked := make([]rankedRecord, len(records))
	for i, r := range records {
		ranked[i] = rankedRecord{record: r, similarity: embed.Cosine(vectors[0], vectors[i+1])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].similarity > ranked[j].similarity })
	if len(ranked) > d.cfg.TopN {
		ranked = ranked[:d.cfg.TopN]
	}

	selected := make([]model.RawDocumentRecord, len(ranked))
	out.Selected = make([]model.RetrievalCandidate, len(ranked))
	for i, r := range ranked {
		selected[i] = r.record
		out.Selected[i] = d.direct(r)
	}

	out.Report, err = d.ingester.EmbedAndPersist(ctx, selected, d.cfg.SourceFileLabel)
	if err != nil {
		out.Err = err
		d.logger.Warn("dynamic fetch ingestion failed", "error", err)
	}

	d.logger.Info("dynamic fetch done",
		"documents", out.Documents,
		"selected", len(selected),
		"report", out.Report.String(),
	)
	return out
}

type rankedRecord struct {
	record     model.RawDocumentRecord
	similarity float64
}

// direct turns a ranked record into a candidate that bypasses the store
func (d *DynamicFetcher) direct(r rankedRecord) model.RetrievalCandidate {
	docID := ingest.DocID(r.record)
	url := r.record.URL
	if r.record.DOI != "" {
		url = "https://doi.org/" + r.record.DOI
	}
	text := r.record.Text()
	return model.RetrievalCandidate{
		Chunk: model.EvidenceChunk{
			DocID:      docID,
			SafeID:     ingest.SafeID(docID),
			SourceFile: d.cfg.SourceFileLabel,
			Text:       text,
			NWords:     len(strings.Fields(text)),
			DOI:        r.record.DOI,
		},
		Similarity: max(r.similarity, 0),
		Relevance:  d.cfg.DirectRelevance,
		Direct:     true,
		URL:        url,
	}
}

// uniqueRecords drops records whose document id was already seen
func uniqueRecords(records []model.RawDocumentRecord) []model.RawDocumentRecord {
	seen := make(map[string]bool, len(records))
	out := make([]model.RawDocumentRecord, 0, len(records))
	for _, r := range records {
		if r.Text() == "" {
			continue
		}
		id := ingest.DocID(r)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, r)
	}
	return out
}
