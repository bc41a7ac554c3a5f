// Package keyword provides full-text chunk indexing and search.
package keyword

import "context"

// Entry is what gets indexed per chunk. kb_id and document_id are stored as
// exact-match fields so searches scope to one knowledge base and deletes can
// sweep a document.
type Entry struct {
	ChunkID    string
	DocumentID string
	KBID       string
	Content    string
}

// Result is a single keyword search hit.
type Result struct {
	ChunkID string
	Score   float64
}

// Index defines full-text indexing and search over chunks.
type Index interface {
	Index(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, kbID, query string, limit int) ([]Result, error)
	DeleteChunk(ctx context.Context, chunkID string) error
	DeleteDocument(ctx context.Context, documentID string) error
	DeleteKB(ctx context.Context, kbID string) error
	Close() error
}
