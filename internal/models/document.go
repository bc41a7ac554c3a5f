package models

import "time"

// DocumentStatus is the import state of a document. The transition is
// processing -> completed | error; completed and error are terminal.
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
)

// Document is an imported file's metadata. A document belongs to exactly one
// knowledge base; deleting the knowledge base cascades to its documents,
// chunks, and vectors.
type Document struct {
	ID             string         `json:"id" db:"id"`
	KBID           string         `json:"kb_id" db:"kb_id"`
	Filename       string         `json:"filename" db:"filename"`
	FileType       string         `json:"file_type" db:"file_type"`
	FileSize       int64          `json:"file_size" db:"file_size"`
	FileHash       string         `json:"file_hash" db:"file_hash"`
	ContentPreview string         `json:"content_preview" db:"content_preview"`
	ChunkCount     int            `json:"chunk_count" db:"chunk_count"`
	Status         DocumentStatus `json:"status" db:"status"`
	ErrorMessage   string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Chunk is a bounded slice of a document's text, the atomic unit of embedding
// and retrieval. ChunkIndex is the 0-based position within the source document
// and is stable for the document's lifetime. Chunks are immutable after import.
type Chunk struct {
	ID         string `json:"id" db:"id"`
	DocumentID string `json:"document_id" db:"document_id"`
	KBID       string `json:"kb_id" db:"kb_id"`
	Content    string `json:"content" db:"content"`
	ChunkIndex int    `json:"chunk_index" db:"chunk_index"`
	TokenCount int    `json:"token_count" db:"token_count"`
}
