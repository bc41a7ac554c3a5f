// Package manager owns knowledge base lifecycle and the document import pipeline.
package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaiwa-app/kioku/internal/chunker"
	"github.com/kaiwa-app/kioku/internal/embedding"
	"github.com/kaiwa-app/kioku/internal/extract"
	"github.com/kaiwa-app/kioku/internal/keyword"
	"github.com/kaiwa-app/kioku/internal/models"
	"github.com/kaiwa-app/kioku/internal/storage"
	"github.com/kaiwa-app/kioku/internal/vector"
	"github.com/kaiwa-app/kioku/pkg/utils"
)

const (
	// embedBatchSize chunks go to the embedder per round trip; each round
	// trip's chunk rows and vectors commit in one transaction so a crash or
	// cancellation never leaves a chunk without its vector.
	embedBatchSize = 16
	previewRunes   = 200
)

// Manager coordinates storage, the vector store, the keyword index, and the
// embedding providers. Imports into the same knowledge base are serialized;
// different knowledge bases import concurrently.
type Manager struct {
	store     storage.Storage
	vectors   vector.Store
	keywords  keyword.Index
	embedders *embedding.Registry
	extractor *extract.Extractor
	logger    *zap.Logger

	mu      sync.Mutex
	kbLocks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager over the given stores.
func New(store storage.Storage, vectors vector.Store, keywords keyword.Index, embedders *embedding.Registry, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		vectors:   vectors,
		keywords:  keywords,
		embedders: embedders,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
		kbLocks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockKB returns the serialization mutex for one knowledge base.
func (m *Manager) lockKB(kbID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.kbLocks[kbID]
	if !ok {
		l = &sync.Mutex{}
		m.kbLocks[kbID] = l
	}
	return l
}

// CreateKnowledgeBase validates the request, resolves the embedding provider,
// and persists the knowledge base with the provider's dimension pinned.
func (m *Manager) CreateKnowledgeBase(ctx context.Context, req models.CreateKnowledgeBaseRequest) (*models.KnowledgeBase, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	provider, ok := m.embedders.Lookup(req.EmbeddingConfigRef)
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider config %q", req.EmbeddingConfigRef)
	}
	kb := &models.KnowledgeBase{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		Description:        req.Description,
		EmbeddingConfigRef: req.EmbeddingConfigRef,
		EmbeddingDim:       provider.Dimensions,
		ChunkSize:          req.ChunkSize,
		ChunkOverlap:       req.ChunkOverlap,
	}
	if err := m.store.CreateKnowledgeBase(ctx, kb); err != nil {
		return nil, fmt.Errorf("create knowledge base: %w", err)
	}
	m.logger.Info("knowledge base created",
		zap.String("kb_id", kb.ID),
		zap.String("name", kb.Name),
		zap.String("provider", kb.EmbeddingConfigRef))
	return kb, nil
}

// GetKnowledgeBase returns one knowledge base with its document count.
func (m *Manager) GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	return m.store.GetKnowledgeBase(ctx, id)
}

// ListKnowledgeBases returns all knowledge bases.
func (m *Manager) ListKnowledgeBases(ctx context.Context) ([]*models.KnowledgeBase, error) {
	return m.store.ListKnowledgeBases(ctx)
}

// UpdateKnowledgeBase updates name, description, and chunking settings.
// New chunking settings apply to future imports only.
func (m *Manager) UpdateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	if kb.ChunkOverlap >= kb.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", kb.ChunkOverlap, kb.ChunkSize)
	}
	return m.store.UpdateKnowledgeBase(ctx, kb)
}

// DeleteKnowledgeBase removes the knowledge base and everything under it:
// documents, chunks, vectors, and keyword index entries.
func (m *Manager) DeleteKnowledgeBase(ctx context.Context, id string) error {
	lock := m.lockKB(id)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.DeleteKnowledgeBase(ctx, id); err != nil {
		return err
	}
	if err := m.vectors.DeleteKB(ctx, id); err != nil {
		return fmt.Errorf("delete kb vectors: %w", err)
	}
	if err := m.keywords.DeleteKB(ctx, id); err != nil {
		return fmt.Errorf("delete kb index entries: %w", err)
	}
	m.logger.Info("knowledge base deleted", zap.String("kb_id", id))
	return nil
}

// GetDocument returns one document's metadata.
func (m *Manager) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return m.store.GetDocument(ctx, id)
}

// ListDocuments returns a knowledge base's documents.
func (m *Manager) ListDocuments(ctx context.Context, kbID string) ([]*models.Document, error) {
	return m.store.ListDocuments(ctx, kbID)
}

// DeleteDocument removes a document, its chunks, vectors, and index entries.
func (m *Manager) DeleteDocument(ctx context.Context, id string) error {
	doc, err := m.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	lock := m.lockKB(doc.KBID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := m.vectors.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	if err := m.keywords.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document index entries: %w", err)
	}
	m.logger.Info("document deleted", zap.String("document_id", id), zap.String("kb_id", doc.KBID))
	return nil
}

// ImportDocument runs the full pipeline for one file: extract, chunk, embed,
// persist. The returned document is terminal: status completed, or status
// error with the failure recorded. A re-import of a file whose previous
// attempt errored resumes after the last committed chunk instead of
// re-embedding from scratch.
func (m *Manager) ImportDocument(ctx context.Context, kbID, filePath string) (*models.Document, error) {
	kb, err := m.store.GetKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, err
	}

	lock := m.lockKB(kbID)
	lock.Lock()
	defer lock.Unlock()

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	filename := filepath.Base(filePath)
	ext := strings.ToLower(filepath.Ext(filename))

	text, err := m.extractor.ExtractBytes(raw, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}

	doc, resumeFrom, err := m.resolveDocument(ctx, kb, filename, ext, hash, int64(len(raw)), text)
	if err != nil {
		return nil, err
	}
	if doc.Status == models.StatusCompleted {
		return doc, nil
	}

	if err := m.ingest(ctx, kb, doc, text, resumeFrom); err != nil {
		doc.Status = models.StatusError
		doc.ErrorMessage = err.Error()
		// Record the failure even when ctx is already cancelled.
		if updErr := m.store.UpdateDocument(context.WithoutCancel(ctx), doc); updErr != nil {
			m.logger.Error("mark document failed", zap.String("document_id", doc.ID), zap.Error(updErr))
		}
		m.logger.Warn("document import failed",
			zap.String("document_id", doc.ID),
			zap.String("filename", filename),
			zap.Error(err))
		return doc, nil
	}

	doc.Status = models.StatusCompleted
	doc.ErrorMessage = ""
	// The terminal status must land even if the caller cancelled after the
	// last batch committed; a lingering processing row would force a resume.
	if err := m.store.UpdateDocument(context.WithoutCancel(ctx), doc); err != nil {
		return nil, fmt.Errorf("mark document completed: %w", err)
	}
	m.logger.Info("document imported",
		zap.String("document_id", doc.ID),
		zap.String("kb_id", kbID),
		zap.String("filename", filename),
		zap.Int("chunks", doc.ChunkCount))
	return doc, nil
}

// resolveDocument creates the processing row, or reuses a previous attempt
// for the same content. A completed duplicate is returned as-is with an
// advisory log; an errored duplicate resumes after its last committed chunk.
func (m *Manager) resolveDocument(ctx context.Context, kb *models.KnowledgeBase, filename, ext, hash string, size int64, text string) (*models.Document, int, error) {
	prev, err := m.store.FindDocumentByHash(ctx, kb.ID, hash)
	if err == nil {
		switch prev.Status {
		case models.StatusCompleted:
			m.logger.Warn("duplicate import skipped, content already indexed",
				zap.String("kb_id", kb.ID),
				zap.String("filename", filename),
				zap.String("existing_document_id", prev.ID))
			return prev, 0, nil
		case models.StatusError, models.StatusProcessing:
			last, err := m.store.MaxChunkIndex(ctx, prev.ID)
			if err != nil {
				return nil, 0, fmt.Errorf("find resume point: %w", err)
			}
			prev.Status = models.StatusProcessing
			prev.ErrorMessage = ""
			if err := m.store.UpdateDocument(ctx, prev); err != nil {
				return nil, 0, fmt.Errorf("reopen document: %w", err)
			}
			m.logger.Info("resuming failed import",
				zap.String("document_id", prev.ID),
				zap.Int("chunks_already_committed", last+1))
			return prev, last + 1, nil
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, 0, err
	}

	doc := &models.Document{
		ID:             uuid.New().String(),
		KBID:           kb.ID,
		Filename:       filename,
		FileType:       extract.FileType(ext),
		FileSize:       size,
		FileHash:       hash,
		ContentPreview: preview(text),
		Status:         models.StatusProcessing,
	}
	if err := m.store.CreateDocument(ctx, doc); err != nil {
		return nil, 0, fmt.Errorf("create document: %w", err)
	}
	return doc, 0, nil
}

// ingest chunks the text and writes embeddings batch by batch. Each batch's
// chunk rows and vectors commit in one transaction; the keyword index entry
// follows the commit, so index state can only ever lag storage, never lead it.
func (m *Manager) ingest(ctx context.Context, kb *models.KnowledgeBase, doc *models.Document, text string, resumeFrom int) error {
	ck, err := chunker.New(kb.ChunkSize, kb.ChunkOverlap)
	if err != nil {
		return err
	}
	pieces := ck.Chunk(text)
	if len(pieces) == 0 {
		return fmt.Errorf("document produced no chunks")
	}
	doc.ChunkCount = len(pieces)

	embedder, err := m.embedders.EmbedderFor(kb.EmbeddingConfigRef)
	if err != nil {
		return err
	}

	for start := resumeFrom; start < len(pieces); start += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + embedBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Content
		}
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		for i, v := range vecs {
			if len(v) != kb.EmbeddingDim {
				return fmt.Errorf("%w: chunk %d got %d dims, knowledge base uses %d",
					embedding.ErrDimensionMismatch, start+i, len(v), kb.EmbeddingDim)
			}
		}

		chunks := make([]*models.Chunk, len(batch))
		records := make([]vector.Record, len(batch))
		entries := make([]keyword.Entry, len(batch))
		for i, p := range batch {
			chunk := &models.Chunk{
				ID:         uuid.New().String(),
				DocumentID: doc.ID,
				KBID:       kb.ID,
				Content:    p.Content,
				ChunkIndex: start + i,
				TokenCount: p.TokenCount,
			}
			chunks[i] = chunk
			records[i] = vector.Record{ChunkID: chunk.ID, DocumentID: doc.ID, KBID: kb.ID, Embedding: vecs[i]}
			entries[i] = keyword.Entry{ChunkID: chunk.ID, DocumentID: doc.ID, KBID: kb.ID, Content: p.Content}
		}

		// Embeddings for this batch are already paid for; let the write
		// drain even if the caller cancelled mid-import.
		commitCtx := context.WithoutCancel(ctx)
		tx, err := m.store.BeginTx(commitCtx)
		if err != nil {
			return fmt.Errorf("begin chunk batch: %w", err)
		}
		if err := m.store.BatchCreateChunks(commitCtx, tx, chunks); err != nil {
			tx.Rollback()
			return fmt.Errorf("write chunks: %w", err)
		}
		if err := m.vectors.AddTx(tx, records); err != nil {
			tx.Rollback()
			return fmt.Errorf("write vectors: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit chunk batch: %w", err)
		}
		if err := m.keywords.Index(commitCtx, entries); err != nil {
			return fmt.Errorf("index chunks: %w", err)
		}
	}
	return nil
}

func preview(text string) string {
	return strings.TrimSpace(utils.Truncate(text, previewRunes))
}
