// Package storage defines persistence for knowledge bases, documents, and chunks.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kaiwa-app/kioku/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines knowledge base, document, and chunk persistence operations.
type Storage interface {
	// Knowledge base operations
	CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error)
	UpdateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error
	DeleteKnowledgeBase(ctx context.Context, id string) error
	ListKnowledgeBases(ctx context.Context) ([]*models.KnowledgeBase, error)

	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, kbID string) ([]*models.Document, error)
	FindDocumentByHash(ctx context.Context, kbID, hash string) (*models.Document, error)

	// Chunk operations
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunks(ctx context.Context, ids []string) (map[string]*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	MaxChunkIndex(ctx context.Context, docID string) (int, error)
	BatchCreateChunks(ctx context.Context, tx *sql.Tx, chunks []*models.Chunk) error

	// Stats
	CountChunks(ctx context.Context, kbID string) (int64, error)

	// BeginTx starts a transaction for batched chunk+vector writes.
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// DB exposes the shared handle so the vector store and the fallback
	// keyword index can live in the same database file.
	DB() *sql.DB

	Close() error
}
