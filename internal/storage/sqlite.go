package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kaiwa-app/kioku/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_bases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		embedding_config_ref TEXT NOT NULL,
		embedding_dim INTEGER NOT NULL,
		chunk_size INTEGER NOT NULL,
		chunk_overlap INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		kb_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_hash TEXT NOT NULL,
		content_preview TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (kb_id) REFERENCES knowledge_bases(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_kb ON documents(kb_id);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(kb_id, file_hash);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		kb_id TEXT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_kb ON chunks(kb_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateKnowledgeBase inserts a knowledge base.
func (s *SQLiteStorage) CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	now := time.Now()
	kb.CreatedAt = now
	kb.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_bases (id, name, description, embedding_config_ref, embedding_dim, chunk_size, chunk_overlap, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kb.ID, kb.Name, kb.Description, kb.EmbeddingConfigRef, kb.EmbeddingDim, kb.ChunkSize, kb.ChunkOverlap, kb.CreatedAt, kb.UpdatedAt,
	)
	return err
}

const kbColumns = `id, name, description, embedding_config_ref, embedding_dim, chunk_size, chunk_overlap, created_at, updated_at`

func scanKB(row interface{ Scan(...any) error }) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := row.Scan(&kb.ID, &kb.Name, &kb.Description, &kb.EmbeddingConfigRef, &kb.EmbeddingDim, &kb.ChunkSize, &kb.ChunkOverlap, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

// GetKnowledgeBase returns a knowledge base by ID, including its document count.
func (s *SQLiteStorage) GetKnowledgeBase(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	kb, err := scanKB(s.db.QueryRowContext(ctx,
		`SELECT `+kbColumns+` FROM knowledge_bases WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: knowledge base %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE kb_id = ?`, id).Scan(&kb.DocumentCount); err != nil {
		return nil, err
	}
	return kb, nil
}

// UpdateKnowledgeBase updates name, description, and chunking settings.
// Embedding settings are immutable after creation: stored vectors would no
// longer match a changed provider or dimension.
func (s *SQLiteStorage) UpdateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	kb.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_bases SET name = ?, description = ?, chunk_size = ?, chunk_overlap = ?, updated_at = ?
		 WHERE id = ?`,
		kb.Name, kb.Description, kb.ChunkSize, kb.ChunkOverlap, kb.UpdatedAt, kb.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: knowledge base %s", ErrNotFound, kb.ID)
	}
	return nil
}

// DeleteKnowledgeBase removes a knowledge base; documents and chunks cascade.
func (s *SQLiteStorage) DeleteKnowledgeBase(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: knowledge base %s", ErrNotFound, id)
	}
	return nil
}

// ListKnowledgeBases returns all knowledge bases, newest first, with document counts.
func (s *SQLiteStorage) ListKnowledgeBases(ctx context.Context) ([]*models.KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kb.id, kb.name, kb.description, kb.embedding_config_ref, kb.embedding_dim, kb.chunk_size, kb.chunk_overlap, kb.created_at, kb.updated_at,
		        (SELECT COUNT(*) FROM documents d WHERE d.kb_id = kb.id)
		 FROM knowledge_bases kb ORDER BY kb.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kbs []*models.KnowledgeBase
	for rows.Next() {
		var kb models.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.Description, &kb.EmbeddingConfigRef, &kb.EmbeddingDim, &kb.ChunkSize, &kb.ChunkOverlap, &kb.CreatedAt, &kb.UpdatedAt, &kb.DocumentCount); err != nil {
			return nil, err
		}
		kbs = append(kbs, &kb)
	}
	return kbs, rows.Err()
}

const docColumns = `id, kb_id, filename, file_type, file_size, file_hash, content_preview, chunk_count, status, error_message, created_at`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(&doc.ID, &doc.KBID, &doc.Filename, &doc.FileType, &doc.FileSize, &doc.FileHash, &doc.ContentPreview, &doc.ChunkCount, &doc.Status, &doc.ErrorMessage, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+docColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.KBID, doc.Filename, doc.FileType, doc.FileSize, doc.FileHash, doc.ContentPreview, doc.ChunkCount, doc.Status, doc.ErrorMessage, doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return doc, err
}

// UpdateDocument updates status, chunk count, preview, and error message.
func (s *SQLiteStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content_preview = ?, chunk_count = ?, status = ?, error_message = ?
		 WHERE id = ?`,
		doc.ContentPreview, doc.ChunkCount, doc.Status, doc.ErrorMessage, doc.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, doc.ID)
	}
	return nil
}

// DeleteDocument removes a document; chunks cascade.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

// ListDocuments returns a knowledge base's documents, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, kbID string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE kb_id = ? ORDER BY created_at DESC`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindDocumentByHash returns the most recent document in the knowledge base
// with the given content hash, or ErrNotFound.
func (s *SQLiteStorage) FindDocumentByHash(ctx context.Context, kbID, hash string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE kb_id = ? AND file_hash = ? ORDER BY created_at DESC LIMIT 1`,
		kbID, hash))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no document with hash %s", ErrNotFound, hash)
	}
	return doc, err
}

const chunkColumns = `id, document_id, kb_id, content, chunk_index, token_count`

func scanChunk(row interface{ Scan(...any) error }) (*models.Chunk, error) {
	var c models.Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.KBID, &c.Content, &c.ChunkIndex, &c.TokenCount)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.Chunk, error) {
	c, err := scanChunk(s.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, id)
	}
	return c, err
}

// GetChunks returns the chunks for the given IDs, keyed by ID. Missing IDs
// are simply absent from the map.
func (s *SQLiteStorage) GetChunks(ctx context.Context, ids []string) (map[string]*models.Chunk, error) {
	out := make(map[string]*models.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// MaxChunkIndex returns the highest chunk_index written for a document, or -1
// when the document has no chunks. Used to resume a failed import without
// re-embedding chunks already committed.
func (s *SQLiteStorage) MaxChunkIndex(ctx context.Context, docID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(chunk_index) FROM chunks WHERE document_id = ?`, docID).Scan(&max)
	if err != nil {
		return -1, err
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// BatchCreateChunks inserts chunks inside a caller-owned transaction so chunk
// rows and their vectors commit together.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, tx *sql.Tx, chunks []*models.Chunk) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.KBID, c.Content, c.ChunkIndex, c.TokenCount); err != nil {
			return err
		}
	}
	return nil
}

// CountChunks returns the number of chunks in a knowledge base.
func (s *SQLiteStorage) CountChunks(ctx context.Context, kbID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE kb_id = ?`, kbID).Scan(&count)
	return count, err
}

// BeginTx starts a transaction on the shared handle.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// DB returns the shared database handle.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
