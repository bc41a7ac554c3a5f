package vector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// SQLiteStore keeps embeddings in a vectors table alongside the metadata
// database and scans them brute-force per knowledge base. Collections are
// small enough (thousands of chunks) that a full scan beats maintaining an
// approximate index.
type SQLiteStore struct {
	db *sql.DB
}

const vectorSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	chunk_id    TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	kb_id       TEXT NOT NULL,
	embedding   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vectors_kb ON vectors(kb_id);
CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id);
`

// NewSQLiteStore creates the vectors table on the shared database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(vectorSchema); err != nil {
		return nil, fmt.Errorf("create vectors table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Add inserts records in a single transaction.
func (s *SQLiteStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector insert: %w", err)
	}
	if err := s.AddTx(tx, records); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// AddTx inserts records inside a caller-owned transaction, so chunk rows and
// their vectors commit atomically.
func (s *SQLiteStore) AddTx(tx *sql.Tx, records []Record) error {
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO vectors (chunk_id, document_id, kb_id, embedding) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare vector insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.Exec(r.ChunkID, r.DocumentID, r.KBID, encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("insert vector for chunk %s: %w", r.ChunkID, err)
		}
	}
	return nil
}

// Search scans every vector in the knowledge base and returns the top k by
// cosine similarity, highest first. Equal scores keep insertion order.
func (s *SQLiteStore) Search(ctx context.Context, kbID string, query []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, embedding FROM vectors WHERE kb_id = ? ORDER BY rowid`, kbID)
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunkID, err)
		}
		if len(vec) != len(query) {
			return nil, fmt.Errorf("chunk %s has %d dims, query has %d", chunkID, len(vec), len(query))
		}
		results = append(results, Result{ChunkID: chunkID, Score: Cosine(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteChunk removes a single chunk's vector.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, chunkID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("delete chunk vector: %w", err)
	}
	return nil
}

// DeleteDocument removes all vectors belonging to a document.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	return nil
}

// DeleteKB removes all vectors in a knowledge base.
func (s *SQLiteStore) DeleteKB(ctx context.Context, kbID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vectors WHERE kb_id = ?`, kbID); err != nil {
		return fmt.Errorf("delete kb vectors: %w", err)
	}
	return nil
}

// Count returns the number of stored vectors in a knowledge base.
func (s *SQLiteStore) Count(ctx context.Context, kbID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE kb_id = ?`, kbID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

// Close is a no-op; the shared database handle is owned by the caller.
func (s *SQLiteStore) Close() error {
	return nil
}
