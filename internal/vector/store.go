// Package vector provides embedding storage and brute-force similarity search.
package vector

import (
	"context"
	"database/sql"
)

// Record is one stored embedding, keyed by chunk within a knowledge base.
type Record struct {
	ChunkID    string
	DocumentID string
	KBID       string
	Embedding  []float32
}

// Result is a single similarity hit.
type Result struct {
	ChunkID string
	Score   float64 // cosine similarity, -1 to 1
}

// Store persists embeddings and answers top-k similarity queries scoped to a
// knowledge base.
type Store interface {
	Add(ctx context.Context, records []Record) error
	// AddTx writes records inside a caller-owned transaction so chunk rows
	// and their vectors commit atomically.
	AddTx(tx *sql.Tx, records []Record) error
	Search(ctx context.Context, kbID string, query []float32, k int) ([]Result, error)
	DeleteChunk(ctx context.Context, chunkID string) error
	DeleteDocument(ctx context.Context, documentID string) error
	DeleteKB(ctx context.Context, kbID string) error
	Count(ctx context.Context, kbID string) (int, error)
	Close() error
}
