package model

import "time"

// Label is the final verdict label exposed to callers
type Label string

const (
	LabelValid          Label = "valid"
	LabelHoax           Label = "hoax"
	LabelPartiallyValid Label = "partially_valid"
	LabelInconclusive   Label = "inconclusive"
)

// Valid reports whether l is one of the four verdict labels
func (l Label) Valid() bool {
	switch l {
	case LabelValid, LabelHoax, LabelPartiallyValid, LabelInconclusive:
		return true
	}
	return false
}

// Verdict is the final output of one verification call.
// Persisting it is the caller's responsibility.
type Verdict struct {
	RequestID  string          `json:"request_id"`
	Claim      string          `json:"claim"`
	Label      Label           `json:"label"`
	Confidence *float64        `json:"confidence"` // nil only when Label is inconclusive
	Summary    string          `json:"summary"`
	Evidence   []EvidenceItem  `json:"evidence"`
	Metadata   VerdictMetadata `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
}

// EvidenceItem is one ranked piece of evidence in a verdict
type EvidenceItem struct {
	ID             string  `json:"id"`
	Snippet        string  `json:"snippet"`
	DOI            string  `json:"doi,omitempty"`
	URL            string  `json:"url,omitempty"`
	Source         string  `json:"source,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// VerdictMetadata carries the retrieval-quality numbers behind a verdict
type VerdictMetadata struct {
	NeighborCount      int           `json:"neighbor_count"`
	MeanRelevance      float64       `json:"mean_relevance"`
	MeanSimilarity     float64       `json:"mean_similarity"`
	CombinedConfidence float64       `json:"combined_confidence"`
	LLMLabel           string        `json:"llm_label,omitempty"`
	LLMConfidence      float64       `json:"llm_confidence"`
	Decision           string        `json:"decision,omitempty"` // llm_led, blended, no_evidence
	QueryVariants      int           `json:"query_variants"`
	ExpandedTerms      int           `json:"expanded_terms"`
	DynamicFetch       bool          `json:"dynamic_fetch"`
	FetchedDocuments   int           `json:"fetched_documents"`
	DirectEvidence     bool          `json:"direct_evidence"`
	Warnings           []string      `json:"warnings,omitempty"`
	Elapsed            time.Duration `json:"elapsed_ns"`
}

// Float returns a pointer to v, used for optional confidences
func Float(v float64) *float64 {
	return &v
}
