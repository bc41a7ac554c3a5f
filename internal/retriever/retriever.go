// Package retriever orchestrates vector and keyword search with rank fusion.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kaiwa-app/kioku/internal/embedding"
	"github.com/kaiwa-app/kioku/internal/keyword"
	"github.com/kaiwa-app/kioku/internal/models"
	"github.com/kaiwa-app/kioku/internal/storage"
	"github.com/kaiwa-app/kioku/internal/vector"
)

// overfetchFactor enlarges each leg's candidate count so fusion has enough
// material beyond the final top_k.
const overfetchFactor = 4

// Retriever answers retrieval requests against one storage/index set.
// It holds no per-query state; calls are safe to run concurrently.
type Retriever struct {
	store     storage.Storage
	vectors   vector.Store
	keywords  keyword.Index
	embedders *embedding.Registry
	logger    *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// New creates a Retriever over the given stores.
func New(store storage.Storage, vectors vector.Store, keywords keyword.Index, embedders *embedding.Registry, opts ...Option) *Retriever {
	r := &Retriever{
		store:     store,
		vectors:   vectors,
		keywords:  keywords,
		embedders: embedders,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs the request's mode against the knowledge base and returns
// ranked chunks with provenance. In hybrid mode a failed query embedding
// degrades to keyword-only with Degraded set; in vector mode it fails.
func (r *Retriever) Retrieve(ctx context.Context, req models.RetrievalRequest) (*models.RetrievalResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	kb, err := r.store.GetKnowledgeBase(ctx, req.KBID)
	if err != nil {
		return nil, err
	}

	fetch := req.TopK * overfetchFactor
	result := &models.RetrievalResult{Query: req.Query, Chunks: []*models.RetrievedChunk{}}

	var vectorHits, keywordHits []ranked

	if req.Mode == models.ModeVector || req.Mode == models.ModeHybrid {
		vectorHits, err = r.vectorSearch(ctx, kb, req.Query, fetch)
		if err != nil {
			if req.Mode == models.ModeVector {
				return nil, err
			}
			// Hybrid still has a keyword leg; keep going but say so.
			r.logger.Warn("query embedding failed, degrading to keyword-only",
				zap.String("kb_id", kb.ID),
				zap.Error(err))
			result.Degraded = true
			vectorHits = nil
		}
	}

	if req.Mode == models.ModeKeyword || req.Mode == models.ModeHybrid {
		hits, err := r.keywords.Search(ctx, kb.ID, req.Query, fetch)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		keywordHits = make([]ranked, len(hits))
		for i, h := range hits {
			keywordHits[i] = ranked{ChunkID: h.ChunkID, Score: h.Score}
		}
	}

	var candidates []fused
	switch req.Mode {
	case models.ModeVector:
		candidates = asFused(vectorHits, true)
	case models.ModeKeyword:
		candidates = asFused(keywordHits, false)
	default:
		candidates = fuseRRF(vectorHits, keywordHits)
	}
	result.TotalChunks = len(candidates)

	// The threshold compares against each mode's own score scale: cosine for
	// vector, native relevance for keyword, fused RRF score for hybrid.
	if req.SimilarityThreshold > 0 {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.Score >= req.SimilarityThreshold {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	if len(candidates) > req.TopK {
		candidates = candidates[:req.TopK]
	}
	if len(candidates) == 0 {
		return result, nil
	}

	chunks, filenames, err := r.provenance(ctx, candidates)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		chunk, ok := chunks[c.ChunkID]
		if !ok {
			// Index and metadata can briefly disagree during a concurrent
			// delete; skip rather than fail the query.
			r.logger.Debug("hit without chunk row", zap.String("chunk_id", c.ChunkID))
			continue
		}
		result.Chunks = append(result.Chunks, &models.RetrievedChunk{
			Chunk:            chunk,
			Score:            c.Score,
			VectorScore:      c.VectorScore,
			KeywordScore:     c.KeywordScore,
			DocumentFilename: filenames[chunk.DocumentID],
		})
	}
	return result, nil
}

// vectorSearch embeds the query and scans the knowledge base's vectors. The
// query embedding must match the dimension the corpus was embedded with.
func (r *Retriever) vectorSearch(ctx context.Context, kb *models.KnowledgeBase, query string, fetch int) ([]ranked, error) {
	embedder, err := r.embedders.EmbedderFor(kb.EmbeddingConfigRef)
	if err != nil {
		return nil, err
	}
	qv, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) != kb.EmbeddingDim {
		return nil, fmt.Errorf("%w: query embedding has %d dims, knowledge base uses %d",
			embedding.ErrDimensionMismatch, len(qv), kb.EmbeddingDim)
	}
	hits, err := r.vectors.Search(ctx, kb.ID, qv, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	out := make([]ranked, len(hits))
	for i, h := range hits {
		out[i] = ranked{ChunkID: h.ChunkID, Score: h.Score}
	}
	return out, nil
}

// provenance loads chunk rows and their documents' filenames for enrichment.
func (r *Retriever) provenance(ctx context.Context, candidates []fused) (map[string]*models.Chunk, map[string]string, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	chunks, err := r.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load chunks: %w", err)
	}
	filenames := make(map[string]string)
	for _, chunk := range chunks {
		if _, ok := filenames[chunk.DocumentID]; ok {
			continue
		}
		doc, err := r.store.GetDocument(ctx, chunk.DocumentID)
		if err != nil {
			return nil, nil, fmt.Errorf("load document %s: %w", chunk.DocumentID, err)
		}
		filenames[chunk.DocumentID] = doc.Filename
	}
	return chunks, filenames, nil
}

// asFused lifts a single leg's hits into the fused shape with native scores.
func asFused(hits []ranked, vector bool) []fused {
	out := make([]fused, len(hits))
	for i, h := range hits {
		score := h.Score
		out[i] = fused{ChunkID: h.ChunkID, Score: h.Score}
		if vector {
			out[i].VectorScore = &score
		} else {
			out[i].KeywordScore = &score
		}
	}
	return out
}

// BuildContext formats a retrieval result into a prompt block for the chat
// layer, citing each chunk's source document.
func BuildContext(result *models.RetrievalResult) string {
	if result == nil || len(result.Chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant reference material:\n\n")
	for i, rc := range result.Chunks {
		fmt.Fprintf(&b, "[%d] (from %s)\n%s\n\n", i+1, rc.DocumentFilename, rc.Chunk.Content)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
