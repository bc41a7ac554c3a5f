package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// bleveEntry is the document shape stored in the index.
type bleveEntry struct {
	DocumentID string `json:"document_id"`
	KBID       string `json:"kb_id"`
	Content    string `json:"content"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reused so chunks survive restarts without re-indexing. If the mapping
// changes in code, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	chunkMapping := bleve.NewDocumentMapping()
	contentMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match
	// the exact word across languages instead of English stems.
	contentMapping.Analyzer = standard.Name
	chunkMapping.AddFieldMappingsAt("content", contentMapping)

	exactMapping := bleve.NewKeywordFieldMapping()
	chunkMapping.AddFieldMappingsAt("kb_id", exactMapping)
	chunkMapping.AddFieldMappingsAt("document_id", exactMapping)

	im.AddDocumentMapping("chunk", chunkMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = chunkMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds entries in one batch, keyed by chunk ID.
func (b *BleveIndex) Index(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(e.ChunkID, bleveEntry{
			DocumentID: e.DocumentID,
			KBID:       e.KBID,
			Content:    e.Content,
		}); err != nil {
			return fmt.Errorf("index chunk %s: %w", e.ChunkID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("commit index batch: %w", err)
	}
	return nil
}

// Search runs a match query over content, restricted to one knowledge base,
// and returns up to limit hits by BM25 score.
func (b *BleveIndex) Search(ctx context.Context, kbID, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	scope := bleve.NewTermQuery(kbID)
	scope.SetField("kb_id")
	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(match, scope))
	req.Size = limit

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	out := make([]Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = Result{ChunkID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DeleteChunk removes a single chunk from the index.
func (b *BleveIndex) DeleteChunk(ctx context.Context, chunkID string) error {
	if err := b.index.Delete(chunkID); err != nil {
		return fmt.Errorf("delete chunk %s: %w", chunkID, err)
	}
	return nil
}

// DeleteDocument removes every chunk indexed under a document.
func (b *BleveIndex) DeleteDocument(ctx context.Context, documentID string) error {
	return b.deleteByField(ctx, "document_id", documentID)
}

// DeleteKB removes every chunk indexed under a knowledge base.
func (b *BleveIndex) DeleteKB(ctx context.Context, kbID string) error {
	return b.deleteByField(ctx, "kb_id", kbID)
}

// deleteByField pages through term-query hits and batch-deletes them.
func (b *BleveIndex) deleteByField(ctx context.Context, field, value string) error {
	const pageSize = 500
	for {
		q := bleve.NewTermQuery(value)
		q.SetField(field)
		req := bleve.NewSearchRequest(q)
		req.Size = pageSize

		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("find chunks to delete: %w", err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("delete index batch: %w", err)
		}
		if len(results.Hits) < pageSize {
			return nil
		}
	}
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
