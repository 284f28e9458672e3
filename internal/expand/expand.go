// Package expand derives search terms and alternative queries from a claim.
package expand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

const maxQueryLength = 200

// Expander builds expanded terms and query variants for claims
type Expander struct {
	llm         Completer
	translator  *Translator
	cache       cache.Cache
	ttl         time.Duration
	enabled     bool
	target      string
	maxTerms    int
	maxVariants int
	logger      *slog.Logger
}

// NewExpander creates an expander
func NewExpander(l Completer, t *Translator, c cache.Cache, cfg model.ExpansionConfig, ttl time.Duration, logger *slog.Logger) *Expander {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxTerms := cfg.MaxTerms
	if maxTerms <= 0 || maxTerms > 12 {
		maxTerms = 12
	}
	maxVariants := cfg.MaxVariants
	if maxVariants <= 0 {
		maxVariants = 6
	}
	return &Expander{
		llm:         l,
		translator:  t,
		cache:       c,
		ttl:         ttl,
		enabled:     cfg.Enabled,
		target:      cfg.TargetLanguage,
		maxTerms:    maxTerms,
		maxVariants: maxVariants,
		logger:      logger,
	}
}

// ExpandTerms returns up to 12 lower-case domain search terms for claim.
// It never fails: without model output the fixed domain list is used.
func (e *Expander) ExpandTerms(ctx context.Context, claim string) []string {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil
	}
	if !e.enabled || e.llm == nil {
		return fallbackTerms(e.maxTerms)
	}
	defer metrics.ObserveStage("expand_terms", time.Now())

	terms, err := cache.Remember(e.cache, cache.TypeExpansion, cache.Key("terms", claim), e.ttl, func() ([]string, error) {
		resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
			System:      "You generate search terms for finding scholarly evidence.",
			Prompt:      fmt.Sprintf(termsPrompt, e.maxTerms, claim),
			Temperature: 0.2,
			MaxTokens:   300,
		})
		if err != nil {
			return nil, err
		}
		terms := ParseList(resp.Text, e.maxTerms, MaxTermLength)
		if len(terms) == 0 {
			return nil, errNoOutput
		}
		return terms, nil
	})
	if err != nil {
		e.warn("term expansion fell back to domain terms", err)
		return fallbackTerms(e.maxTerms)
	}
	return terms
}

// BilingualQueries returns the claim itself, its translation and 4 to 6
// paraphrased search queries, deduplicated, original first
func (e *Expander) BilingualQueries(ctx context.Context, claim string) []model.QueryVariant {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return nil
	}
	hash := ClaimHash(claim)
	original := model.QueryVariant{ClaimHash: hash, Text: claim, Lang: "orig", Kind: model.VariantOriginal}
	if !e.enabled || e.llm == nil {
		return []model.QueryVariant{original}
	}
	defer metrics.ObserveStage("expand_queries", time.Now())

	variants, err := cache.Remember(e.cache, cache.TypeExpansion, cache.Key("queries", e.target, claim), e.ttl, func() ([]model.QueryVariant, error) {
		out := []model.QueryVariant{original}

		if translated := e.translator.Translate(ctx, claim, e.target); translated != "" {
			out = append(out, model.QueryVariant{ClaimHash: hash, Text: translated, Lang: e.target, Kind: model.VariantTranslated})
		}

		resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
			System:      "You rewrite claims into search queries for scholarly databases.",
			Prompt:      fmt.Sprintf(queriesPrompt, e.maxVariants, languageName(e.target), claim),
			Temperature: 0.4,
			MaxTokens:   400,
		})
		if err != nil {
			return nil, err
		}
		for _, q := range ParseList(resp.Text, e.maxVariants, maxQueryLength) {
			out = append(out, model.QueryVariant{ClaimHash: hash, Text: q, Lang: e.target, Kind: model.VariantParaphrase})
		}
		return dedupe(out), nil
	})
	if err != nil {
		e.warn("query paraphrasing failed", err)
		variants = []model.QueryVariant{original}
		if translated := e.translator.Translate(ctx, claim, e.target); translated != "" {
			variants = dedupe(append(variants, model.QueryVariant{ClaimHash: hash, Text: translated, Lang: e.target, Kind: model.VariantTranslated}))
		}
	}
	return variants
}

// ClaimHash identifies a claim in query variants and cache keys
func ClaimHash(claim string) string {
	return cache.Key(strings.ToLower(strings.TrimSpace(claim)))[3:19]
}

func (e *Expander) warn(msg string, err error) {
	if errors.Is(err, llm.ErrDisabled) {
		return
	}
	e.logger.Warn(msg, "error", err)
}

func fallbackTerms(limit int) []string {
	return append([]string(nil), DomainTerms[:min(limit, len(DomainTerms))]...)
}

// dedupe keeps the first variant of each case-insensitive text
func dedupe(variants []model.QueryVariant) []model.QueryVariant {
	seen := make(map[string]bool)
	out := variants[:0:0]
	for _, v := range variants {
		key := strings.ToLower(strings.TrimSpace(v.Text))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

const termsPrompt = `List at most %d short search terms (1 to 4 words each) that a researcher would use to find scholarly evidence about the claim below. Include key entities, outcomes and technical synonyms.
Respond with a JSON array of strings only.

Claim: %s`

const queriesPrompt = `Write %d alternative search queries in %s for finding scholarly papers that support or refute the claim below. Vary the wording and use technical vocabulary.
Respond with a JSON array of strings only.

Claim: %s`
