// Package pipeline runs one claim through retrieval, dynamic fetch and
// adjudication and produces a verdict.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/claimcheck/internal/adjudicate"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/retrieve"
)

const (
	defaultTimeout      = 90 * time.Second
	defaultStageTimeout = 30 * time.Second
	evidenceSnippet     = 400
)

// Expander produces search terms and query variants for a claim
type Expander interface {
	ExpandTerms(ctx context.Context, claim string) []string
	BilingualQueries(ctx context.Context, claim string) []model.QueryVariant
}

// Retriever searches the evidence store
type Retriever interface {
	Retrieve(ctx context.Context, claim string, variants []model.QueryVariant, terms []string, opts retrieve.Options) ([]model.RetrievalCandidate, error)
}

// Judge asks the language model about a claim
type Judge interface {
	Judge(ctx context.Context, claim string, candidates []model.RetrievalCandidate) adjudicate.Judgement
}

// Options tunes one verification. Zero values take the configured defaults.
type Options struct {
	K            int
	MinRelevance float64
	ForceFetch   bool
}

// Verifier is the end-to-end verification pipeline
type Verifier struct {
	expander  Expander
	retriever Retriever
	gate      retrieve.Gate
	fetcher   *DynamicFetcher
	judge     Judge
	policy    adjudicate.Policy
	retrieval model.RetrievalConfig
	timeouts  model.VerifyConfig
	logger    *slog.Logger
}

// NewVerifier assembles a verifier. expander and fetcher may be nil, which
// disables query expansion and dynamic fetch respectively.
func NewVerifier(ex Expander, r Retriever, j Judge, fetcher *DynamicFetcher, cfg *model.Config, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	timeouts := cfg.Verify
	if timeouts.Timeout <= 0 {
		timeouts.Timeout = defaultTimeout
	}
	if timeouts.StageTimeout <= 0 {
		timeouts.StageTimeout = defaultStageTimeout
	}
	return &Verifier{
		expander:  ex,
		retriever: r,
		gate:      retrieve.NewGate(cfg.Gate),
		fetcher:   fetcher,
		judge:     j,
		policy:    adjudicate.NewPolicy(cfg.Decision),
		retrieval: cfg.Retrieval,
		timeouts:  timeouts,
		logger:    logger,
	}
}

// VerifyClaim verifies claim with default options
func (v *Verifier) VerifyClaim(ctx context.Context, claim string) *model.Verdict {
	return v.Verify(ctx, claim, Options{})
}

// Verify runs the whole pipeline for claim. It never fails: an empty claim
// or an internal failure yields an inconclusive verdict with no confidence,
// and a claim without any evidence yields inconclusive with confidence 0.
func (v *Verifier) Verify(ctx context.Context, claim string, opts Options) (verdict *model.Verdict) {
	start := time.Now()
	claim = strings.TrimSpace(claim)
	verdict = &model.Verdict{
		RequestID: uuid.NewString(),
		Claim:     claim,
		Evidence:  []model.EvidenceItem{},
		CreatedAt: start.UTC(),
	}
	logger := v.logger.With("request_id", verdict.RequestID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("verification panicked", "panic", r)
			verdict.Label = model.LabelInconclusive
			verdict.Confidence = nil
			verdict.Summary = "Verification failed internally."
			verdict.Evidence = []model.EvidenceItem{}
			verdict.Metadata.Warnings = append(verdict.Metadata.Warnings, fmt.Sprint("internal error: ", r))
		}
		verdict.Metadata.Elapsed = time.Since(start)
		metrics.Verdicts.WithLabelValues(string(verdict.Label), verdict.Metadata.Decision).Inc()
		metrics.ObserveStage("verify", start)
	}()

	if claim == "" {
		verdict.Label = model.LabelInconclusive
		verdict.Summary = "The claim is empty."
		return verdict
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeouts.Timeout)
	defer cancel()

	if opts.K <= 0 {
		opts.K = v.retrieval.K
	}
	if opts.MinRelevance <= 0 {
		opts.MinRelevance = v.retrieval.MinRelevance
	}
	ropts := retrieve.Options{K: opts.K, MinRelevance: opts.MinRelevance}
	meta := &verdict.Metadata

	terms, variants := v.expand(ctx, claim)
	meta.ExpandedTerms = len(terms)
	meta.QueryVariants = len(variants)

	candidates := v.retrieve(ctx, claim, variants, terms, ropts, logger)

	if v.fetcher != nil && (opts.ForceFetch || v.gate.NeedsDynamicFetch(candidates, claim)) {
		candidates = v.dynamicFetch(ctx, claim, candidates, variants, terms, ropts, meta, logger)
	}

	if len(candidates) == 0 {
		verdict.Label = model.LabelInconclusive
		verdict.Confidence = model.Float(0)
		verdict.Summary = "No evidence was found for this claim."
		meta.Decision = adjudicate.DecisionNoEvidence
		logger.Info("no evidence", "claim", claim)
		return verdict
	}

	stats := retrieve.Summarize(candidates)
	meta.NeighborCount = stats.Count
	meta.MeanRelevance = stats.MeanRelevance
	meta.MeanSimilarity = stats.MeanSimilarity

	stageCtx, stageCancel := context.WithTimeout(ctx, v.timeouts.StageTimeout)
	j := v.judge.Judge(stageCtx, claim, candidates)
	stageCancel()
	if j.Err != nil {
		meta.Warnings = append(meta.Warnings, "adjudication failed: "+j.Err.Error())
	} else if j.Strategy == adjudicate.StrategyFallback {
		meta.Warnings = append(meta.Warnings, "adjudication output could not be parsed")
	}

	d := v.policy.Decide(j, stats.MeanRelevance, stats.MeanSimilarity)
	meta.LLMLabel = string(j.Label)
	meta.LLMConfidence = j.Confidence
	meta.CombinedConfidence = d.Combined
	meta.Decision = d.Branch

	verdict.Label = d.Label
	verdict.Confidence = model.Float(d.Confidence)
	verdict.Evidence = evidenceItems(candidates)
	verdict.Summary = summary(d, j, stats)

	logger.Info("claim verified",
		"label", verdict.Label,
		"confidence", d.Confidence,
		"decision", d.Branch,
		"evidence", stats.Count,
		"dynamic_fetch", meta.DynamicFetch,
	)
	return verdict
}

func (v *Verifier) expand(ctx context.Context, claim string) ([]string, []model.QueryVariant) {
	original := []model.QueryVariant{{Text: claim, Lang: "orig", Kind: model.VariantOriginal}}
	if v.expander == nil {
		return nil, original
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeouts.StageTimeout)
	defer cancel()

	terms := v.expander.ExpandTerms(ctx, claim)
	variants := v.expander.BilingualQueries(ctx, claim)
	if len(variants) == 0 {
		variants = original
	}
	return terms, variants
}

func (v *Verifier) retrieve(ctx context.Context, claim string, variants []model.QueryVariant, terms []string, opts retrieve.Options, logger *slog.Logger) []model.RetrievalCandidate {
	ctx, cancel := context.WithTimeout(ctx, v.timeouts.StageTimeout)
	defer cancel()

	candidates, err := v.retriever.Retrieve(ctx, claim, variants, terms, opts)
	if err != nil {
		logger.Warn("retrieval failed", "error", err)
		return nil
	}
	return candidates
}

// dynamicFetch fetches fresh documents, retrieves once more and falls back
// to the fetched documents when the store still has nothing good enough.
// The candidates it was given are kept when the fetch brings nothing.
func (v *Verifier) dynamicFetch(ctx context.Context, claim string, candidates []model.RetrievalCandidate, variants []model.QueryVariant, terms []string, opts retrieve.Options, meta *model.VerdictMetadata, logger *slog.Logger) []model.RetrievalCandidate {
	meta.DynamicFetch = true

	stageCtx, cancel := context.WithTimeout(ctx, v.timeouts.StageTimeout)
	fetched := v.fetcher.Fetch(stageCtx, claim)
	cancel()
	meta.FetchedDocuments = fetched.Documents
	if fetched.Err != nil {
		meta.Warnings = append(meta.Warnings, "dynamic fetch: "+fetched.Err.Error())
	}

	if fetched.Ingested() {
		if again := v.retrieve(ctx, claim, variants, terms, opts, logger); len(again) > 0 {
			candidates = again
		}
		if !v.gate.NeedsDynamicFetch(candidates, claim) {
			metrics.DynamicFetches.WithLabelValues("recovered").Inc()
			return candidates
		}
	}

	if len(fetched.Selected) > 0 {
		metrics.DynamicFetches.WithLabelValues("direct").Inc()
		meta.DirectEvidence = true
		logger.Info("using fetched documents as direct evidence", "documents", len(fetched.Selected))
		return fetched.Selected
	}

	metrics.DynamicFetches.WithLabelValues("exhausted").Inc()
	return candidates
}

func evidenceItems(candidates []model.RetrievalCandidate) []model.EvidenceItem {
	items := make([]model.EvidenceItem, 0, len(candidates))
	for _, c := range candidates {
		url := c.URL
		if url == "" && c.Chunk.DOI != "" {
			url = "https://doi.org/" + c.Chunk.DOI
		}
		items = append(items, model.EvidenceItem{
			ID:             adjudicate.EvidenceID(c),
			Snippet:        snippet(c.Chunk.Text, evidenceSnippet),
			DOI:            c.Chunk.DOI,
			URL:            url,
			Source:         c.Chunk.SourceFile,
			RelevanceScore: c.Relevance,
		})
	}
	return items
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

func summary(d adjudicate.Decision, j adjudicate.Judgement, stats retrieve.Stats) string {
	if j.Reasoning != "" {
		return j.Reasoning
	}
	return fmt.Sprintf("Judged %s with confidence %.2f from %d evidence items (mean relevance %.2f).",
		strings.ReplaceAll(string(d.Label), "_", " "), d.Confidence, stats.Count, stats.MeanRelevance)
}
