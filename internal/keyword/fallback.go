package keyword

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// SubstringIndex is the degraded keyword path used only when the full-text
// index cannot be opened. It scans chunk content in the metadata database and
// scores by query-term occurrence count, which is strictly less precise than
// ranked full-text scoring.
type SubstringIndex struct {
	db *sql.DB
}

// NewSubstringIndex creates a fallback index over the shared chunks table.
func NewSubstringIndex(db *sql.DB) *SubstringIndex {
	return &SubstringIndex{db: db}
}

// Index is a no-op: content already lives in the chunks table.
func (s *SubstringIndex) Index(ctx context.Context, entries []Entry) error {
	return nil
}

// Search scans all chunks in the knowledge base and counts case-insensitive
// occurrences of each query term.
func (s *SubstringIndex) Search(ctx context.Context, kbID, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM chunks WHERE kb_id = ? ORDER BY rowid`, kbID)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		lower := strings.ToLower(content)
		score := 0
		for _, term := range terms {
			score += strings.Count(lower, term)
		}
		if score > 0 {
			results = append(results, Result{ChunkID: id, Score: float64(score)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteChunk is a no-op: the chunk row is deleted in the metadata database.
func (s *SubstringIndex) DeleteChunk(ctx context.Context, chunkID string) error {
	return nil
}

// DeleteDocument is a no-op: chunk rows cascade in the metadata database.
func (s *SubstringIndex) DeleteDocument(ctx context.Context, documentID string) error {
	return nil
}

// DeleteKB is a no-op for the same reason.
func (s *SubstringIndex) DeleteKB(ctx context.Context, kbID string) error {
	return nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *SubstringIndex) Close() error {
	return nil
}
