package models

import "fmt"

// RetrievalMode selects which stores participate in a retrieval.
type RetrievalMode string

const (
	ModeVector  RetrievalMode = "vector"
	ModeKeyword RetrievalMode = "keyword"
	ModeHybrid  RetrievalMode = "hybrid"
)

// TopK bounds accepted from the chat layer.
const (
	MinTopK     = 1
	MaxTopK     = 20
	DefaultTopK = 5
)

// RetrievalRequest is a retrieval query against one knowledge base.
type RetrievalRequest struct {
	KBID                string        `json:"kb_id"`
	Query               string        `json:"query"`
	TopK                int           `json:"top_k,omitempty"`
	Mode                RetrievalMode `json:"mode,omitempty"`
	SimilarityThreshold float64       `json:"similarity_threshold,omitempty"`
}

// Validate ensures the request has valid fields and sets defaults.
// TopK defaults to DefaultTopK and must be within [MinTopK, MaxTopK];
// the threshold must be within [0, 1]; mode defaults to hybrid.
func (r *RetrievalRequest) Validate() error {
	if r.KBID == "" {
		return fmt.Errorf("kb_id cannot be empty")
	}
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.TopK == 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK < MinTopK || r.TopK > MaxTopK {
		return fmt.Errorf("top_k must be in [%d, %d], got %d", MinTopK, MaxTopK, r.TopK)
	}
	if r.SimilarityThreshold < 0 || r.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %g", r.SimilarityThreshold)
	}
	switch r.Mode {
	case "":
		r.Mode = ModeHybrid
	case ModeVector, ModeKeyword, ModeHybrid:
	default:
		return fmt.Errorf("unknown retrieval mode %q", r.Mode)
	}
	return nil
}

// RetrievedChunk is a single retrieval hit with provenance. VectorScore and
// KeywordScore are set only when the corresponding store produced the hit.
type RetrievedChunk struct {
	Chunk            *Chunk   `json:"chunk"`
	Score            float64  `json:"score"`
	VectorScore      *float64 `json:"vector_score,omitempty"`
	KeywordScore     *float64 `json:"keyword_score,omitempty"`
	DocumentFilename string   `json:"document_filename"`
}

// RetrievalResult is the ranked answer for one retrieval request.
// TotalChunks counts fused candidates before threshold filtering and
// truncation, so an empty Chunks slice still reports how much material the
// stores produced. Degraded is set when hybrid retrieval fell back to
// keyword-only because the query embedding failed.
type RetrievalResult struct {
	Query       string            `json:"query"`
	Chunks      []*RetrievedChunk `json:"chunks"`
	TotalChunks int               `json:"total_chunks"`
	Degraded    bool              `json:"degraded,omitempty"`
}
