package adjudicate

import (
	"github.com/ppiankov/claimcheck/internal/model"
)

// Decision branches
const (
	DecisionLLMLed     = "llm_led"
	DecisionBlended    = "blended"
	DecisionNoEvidence = "no_evidence"
)

// Policy blends the model's judgement with retrieval quality into the
// final label and confidence
type Policy struct {
	LLMLedThreshold  float64
	ValidTier        float64
	PartialTier      float64
	LLMWeight        float64
	RelevanceWeight  float64
	SimilarityWeight float64
}

// Decision is the outcome of Policy.Decide
type Decision struct {
	Label      model.Label
	Confidence float64
	Combined   float64
	Branch     string
}

// NewPolicy returns a policy from cfg. Zero fields take the defaults:
// threshold 0.75, tiers 0.7 and 0.4, weights 0.5, 0.3 and 0.2.
func NewPolicy(cfg model.DecisionConfig) Policy {
	p := Policy{
		LLMLedThreshold:  orDefault(cfg.LLMLedThreshold, 0.75),
		ValidTier:        orDefault(cfg.ValidTier, 0.7),
		PartialTier:      orDefault(cfg.PartialTier, 0.4),
		LLMWeight:        cfg.LLMWeight,
		RelevanceWeight:  cfg.RelevanceWeight,
		SimilarityWeight: cfg.SimilarityWeight,
	}
	if p.LLMWeight+p.RelevanceWeight+p.SimilarityWeight <= 0 {
		p.LLMWeight, p.RelevanceWeight, p.SimilarityWeight = 0.5, 0.3, 0.2
	}
	return p
}

// Decide maps a judgement and the evidence means onto a verdict label.
// A VALID judgement at or above the threshold is taken as is. Anything
// else is decided by the weighted blend of the model's confidence, mean
// relevance and mean similarity.
func (p Policy) Decide(j Judgement, meanRelevance, meanSimilarity float64) Decision {
	combined := clamp01(p.LLMWeight*j.Confidence + p.RelevanceWeight*meanRelevance + p.SimilarityWeight*meanSimilarity)

	if j.Label == Valid && j.Confidence >= p.LLMLedThreshold {
		return Decision{
			Label:      model.LabelValid,
			Confidence: clamp01(j.Confidence),
			Combined:   combined,
			Branch:     DecisionLLMLed,
		}
	}

	d := Decision{Confidence: combined, Combined: combined, Branch: DecisionBlended}
	switch {
	case combined >= p.ValidTier:
		d.Label = model.LabelValid
	case combined >= p.PartialTier:
		d.Label = model.LabelPartiallyValid
	default:
		d.Label = model.LabelHoax
	}
	return d
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
