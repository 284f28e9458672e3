package model

import "time"

// EvidenceChunk is one indexed slice of a source document.
// It doubles as the chunk interchange record (one JSON object per line).
type EvidenceChunk struct {
	ID         int64     `json:"-"`
	DocID      string    `json:"doc_id"`
	SafeID     string    `json:"safe_id"`
	SourceFile string    `json:"source_file"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	NWords     int       `json:"n_words"`
	DOI        string    `json:"doi"`
	Embedding  []float32 `json:"embedding"`
	CreatedAt  time.Time `json:"-"`
}

// Neighbor is a chunk returned by a nearest-neighbor query
type Neighbor struct {
	Chunk    EvidenceChunk
	Distance float64 // L2 distance to the query vector
}

// RawDocumentRecord is the normalized output of a source-specific parser.
// It only lives for the duration of one ingestion run.
type RawDocumentRecord struct {
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Authors  []string `json:"authors,omitempty"`
	Year     int      `json:"year,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	URL      string   `json:"url,omitempty"`
	Source   string   `json:"source"`
}

// Text returns the indexable text of the record (title + abstract)
func (r RawDocumentRecord) Text() string {
	switch {
	case r.Title == "":
		return r.Abstract
	case r.Abstract == "":
		return r.Title
	default:
		return r.Title + "\n\n" + r.Abstract
	}
}

// RetrievalCandidate is one EvidenceChunk scored against one claim
type RetrievalCandidate struct {
	Chunk        EvidenceChunk
	Distance     float64 // vector distance, 0 for direct candidates
	Similarity   float64 // distance-derived similarity in [0,1]
	PatternScore float64 // matched terms / expanded terms
	Relevance    float64 // combined score in [0,1]
	MatchedQuery string  // query variant that surfaced this chunk first
	Direct       bool    // fetched evidence used without passing through the store
	URL          string  // landing page, when known
}

// Key identifies a candidate for deduplication across query variants
func (c RetrievalCandidate) Key() ChunkKey {
	return ChunkKey{DocID: c.Chunk.DocID, ChunkIndex: c.Chunk.ChunkIndex}
}

// ChunkKey is the (document id, chunk index) identity of a chunk
type ChunkKey struct {
	DocID      string
	ChunkIndex int
}
