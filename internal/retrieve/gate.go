package retrieve

import (
	"github.com/ppiankov/claimcheck/internal/model"
)

// Stats summarizes a candidate list
type Stats struct {
	Count          int     `json:"count"`
	MeanRelevance  float64 `json:"mean_relevance"`
	MeanSimilarity float64 `json:"mean_similarity"`
	MaxRelevance   float64 `json:"max_relevance"`
}

// Summarize computes mean relevance, mean similarity and max relevance
func Summarize(candidates []model.RetrievalCandidate) Stats {
	s := Stats{Count: len(candidates)}
	if len(candidates) == 0 {
		return s
	}
	var rel, sim float64
	for _, c := range candidates {
		rel += c.Relevance
		sim += c.Similarity
		s.MaxRelevance = max(s.MaxRelevance, c.Relevance)
	}
	s.MeanRelevance = rel / float64(len(candidates))
	s.MeanSimilarity = sim / float64(len(candidates))
	return s
}

// Gate decides whether retrieved evidence is too weak to adjudicate on
type Gate struct {
	MinMeanRelevance  float64
	MinMeanSimilarity float64
	MinMaxRelevance   float64
}

// NewGate returns a gate with cfg's thresholds, zero values taking the
// defaults 0.30, 0.30 and 0.45
func NewGate(cfg model.GateConfig) Gate {
	g := Gate{
		MinMeanRelevance:  cfg.MinMeanRelevance,
		MinMeanSimilarity: cfg.MinMeanSimilarity,
		MinMaxRelevance:   cfg.MinMaxRelevance,
	}
	if g.MinMeanRelevance <= 0 {
		g.MinMeanRelevance = 0.30
	}
	if g.MinMeanSimilarity <= 0 {
		g.MinMeanSimilarity = 0.30
	}
	if g.MinMaxRelevance <= 0 {
		g.MinMaxRelevance = 0.45
	}
	return g
}

// NeedsDynamicFetch is true unless every threshold holds and at least one
// candidate shares a word longer than two letters with the claim
func (g Gate) NeedsDynamicFetch(candidates []model.RetrievalCandidate, claim string) bool {
	if len(candidates) == 0 {
		return true
	}
	s := Summarize(candidates)
	if s.MeanRelevance < g.MinMeanRelevance ||
		s.MeanSimilarity < g.MinMeanSimilarity ||
		s.MaxRelevance < g.MinMaxRelevance {
		return true
	}
	for _, c := range candidates {
		if sharesWord(claim, c.Chunk.Text, 3) {
			return false
		}
	}
	return true
}
