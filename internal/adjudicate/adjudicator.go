// Package adjudicate asks the language model for a verdict on a claim
// against ranked evidence and turns its answer into a final label.
package adjudicate

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

// Completer is the language model used for adjudication
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Translator renders evidence snippets in the adjudication language
type Translator interface {
	Translate(ctx context.Context, text, target string) string
}

// Judgement is the model's normalized answer
type Judgement struct {
	Label      Label
	Confidence float64
	Reasoning  string
	Strategy   string // parse strategy that produced the answer
	Included   int    // evidence items that fit in the prompt
	Err        error  // model call failure, if any
}

// Adjudicator builds prompts, calls the model and parses its answer
type Adjudicator struct {
	llm        Completer
	translator Translator
	target     string
	cfg        model.AdjudicatorConfig
	unknown    Label
	logger     *slog.Logger
}

// NewAdjudicator creates an adjudicator. translator may be nil; snippets
// are then sent untranslated. target is the language snippets are
// translated into when cfg.TranslateSnippets is set.
func NewAdjudicator(l Completer, translator Translator, target string, cfg model.AdjudicatorConfig, logger *slog.Logger) *Adjudicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjudicator{
		llm:        l,
		translator: translator,
		target:     target,
		cfg:        cfg,
		unknown:    NormalizeLabel(cfg.UnknownLabel, Hoax),
		logger:     logger,
	}
}

// Judge asks the model about claim given candidates in rank order. It
// never fails: a model error or unusable output yields the configured
// unknown label with zero confidence and Err or Strategy telling why.
func (a *Adjudicator) Judge(ctx context.Context, claim string, candidates []model.RetrievalCandidate) Judgement {
	defer metrics.ObserveStage("adjudicate", time.Now())

	evidence := make([]Evidence, 0, len(candidates))
	for _, c := range candidates {
		evidence = append(evidence, a.evidence(c))
	}
	prompt, included := BuildPrompt(claim, evidence, a.cfg.PromptBudget, a.cfg.SnippetChars)
	if a.translating() && included > 0 {
		// only snippets that fit the budget are worth a model call
		fitted := evidence[:included]
		for i := range fitted {
			fitted[i].Snippet = a.translator.Translate(ctx, truncate(fitted[i].Snippet, max(a.cfg.SnippetChars, DefaultSnippetChars)), a.target)
		}
		prompt, included = BuildPrompt(claim, fitted, a.cfg.PromptBudget, a.cfg.SnippetChars)
	}

	j := Judgement{Included: included}
	if a.llm == nil {
		j.Err = llm.ErrDisabled
		j.Label, j.Strategy = a.unknown, StrategyFallback
		return j
	}

	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		a.logger.Warn("adjudication call failed", "error", err)
		j.Err = err
		j.Label, j.Strategy = a.unknown, StrategyFallback
		return j
	}

	parsed, strategy := ParseResponse(resp.Text)
	j.Strategy = strategy
	j.Reasoning = strings.TrimSpace(parsed.Reasoning)
	j.Confidence = clamp01(parsed.Confidence)
	j.Label = NormalizeLabel(parsed.Label, a.unknown)
	if strategy == StrategyFallback {
		j.Label = a.unknown
		a.logger.Warn("unparseable adjudication output", "model", resp.Model, "chars", len(resp.Text))
	} else if _, ok := ParseLabel(parsed.Label); !ok {
		a.logger.Warn("unknown adjudication label", "label", parsed.Label, "mapped_to", j.Label)
	}

	a.logger.Debug("adjudicated",
		"label", j.Label,
		"confidence", j.Confidence,
		"strategy", strategy,
		"evidence", included,
	)
	return j
}

func (a *Adjudicator) translating() bool {
	return a.cfg.TranslateSnippets && a.translator != nil && a.target != ""
}

func (a *Adjudicator) evidence(c model.RetrievalCandidate) Evidence {
	return Evidence{
		ID:        EvidenceID(c),
		DOI:       c.Chunk.DOI,
		Source:    c.Chunk.SourceFile,
		Relevance: c.Relevance,
		Snippet:   c.Chunk.Text,
	}
}

// EvidenceID is the stable identifier of a candidate in prompts and verdicts
func EvidenceID(c model.RetrievalCandidate) string {
	if c.Chunk.SafeID != "" {
		return c.Chunk.SafeID + "#" + strconv.Itoa(c.Chunk.ChunkIndex)
	}
	return c.Chunk.DocID + "#" + strconv.Itoa(c.Chunk.ChunkIndex)
}
