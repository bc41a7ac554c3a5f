// Package models defines core data structures for knowledge bases, documents,
// chunks, and retrieval requests/results.
package models

import (
	"fmt"
	"time"
)

// Default chunking parameters applied when a create request leaves them unset.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// KnowledgeBase is a named collection of documents sharing one embedding space.
// EmbeddingConfigRef and EmbeddingDim are fixed at creation: every chunk vector
// in the knowledge base must come from the same provider/model. Changing the
// embedding config invalidates the vector store and requires a rebuild.
type KnowledgeBase struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	Description        string    `json:"description" db:"description"`
	EmbeddingConfigRef string    `json:"embedding_config_ref" db:"embedding_config_ref"`
	EmbeddingDim       int       `json:"embedding_dim" db:"embedding_dim"`
	ChunkSize          int       `json:"chunk_size" db:"chunk_size"`
	ChunkOverlap       int       `json:"chunk_overlap" db:"chunk_overlap"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
	DocumentCount      int       `json:"document_count" db:"document_count"`
}

// CreateKnowledgeBaseRequest is the input for creating a knowledge base.
type CreateKnowledgeBaseRequest struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	EmbeddingConfigRef string `json:"embedding_config_ref"`
	ChunkSize          int    `json:"chunk_size,omitempty"`
	ChunkOverlap       int    `json:"chunk_overlap,omitempty"`
}

// Validate checks required fields, applies chunking defaults, and enforces
// the chunk_overlap < chunk_size invariant.
func (r *CreateKnowledgeBaseRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if r.EmbeddingConfigRef == "" {
		return fmt.Errorf("embedding_config_ref cannot be empty")
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = DefaultChunkSize
	}
	if r.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", r.ChunkSize)
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = DefaultChunkOverlap
	}
	if r.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap cannot be negative, got %d", r.ChunkOverlap)
	}
	if r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", r.ChunkOverlap, r.ChunkSize)
	}
	return nil
}
