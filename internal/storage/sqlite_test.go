package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kaiwa-app/kioku/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testKB(id string) *models.KnowledgeBase {
	return &models.KnowledgeBase{
		ID:                 id,
		Name:               "notes",
		EmbeddingConfigRef: "mock-1",
		EmbeddingDim:       64,
		ChunkSize:          1000,
		ChunkOverlap:       200,
	}
}

func TestKnowledgeBaseCRUD(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	kb := testKB("kb1")
	if err := s.CreateKnowledgeBase(ctx, kb); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetKnowledgeBase(ctx, "kb1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "notes" || got.EmbeddingDim != 64 {
		t.Errorf("got %+v", got)
	}

	got.Name = "renamed"
	got.ChunkSize = 500
	if err := s.UpdateKnowledgeBase(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := s.GetKnowledgeBase(ctx, "kb1")
	if again.Name != "renamed" || again.ChunkSize != 500 {
		t.Errorf("update not applied: %+v", again)
	}

	kbs, err := s.ListKnowledgeBases(ctx)
	if err != nil || len(kbs) != 1 {
		t.Fatalf("list: %v, %d entries", err, len(kbs))
	}

	if err := s.DeleteKnowledgeBase(ctx, "kb1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetKnowledgeBase(ctx, "kb1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v, want ErrNotFound", err)
	}
	if err := s.DeleteKnowledgeBase(ctx, "kb1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v, want ErrNotFound", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	s.CreateKnowledgeBase(ctx, testKB("kb1"))

	doc := &models.Document{
		ID: "d1", KBID: "kb1", Filename: "a.txt", FileType: "txt",
		FileSize: 42, FileHash: "abc123", Status: models.StatusProcessing,
	}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	doc.Status = models.StatusCompleted
	doc.ChunkCount = 3
	doc.ContentPreview = "hello"
	if err := s.UpdateDocument(ctx, doc); err != nil {
		t.Fatalf("update document: %v", err)
	}

	got, err := s.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != models.StatusCompleted || got.ChunkCount != 3 {
		t.Errorf("got %+v", got)
	}

	byHash, err := s.FindDocumentByHash(ctx, "kb1", "abc123")
	if err != nil || byHash.ID != "d1" {
		t.Errorf("FindDocumentByHash: %v, %v", byHash, err)
	}
	if _, err := s.FindDocumentByHash(ctx, "kb1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing hash: %v, want ErrNotFound", err)
	}

	docs, err := s.ListDocuments(ctx, "kb1")
	if err != nil || len(docs) != 1 {
		t.Fatalf("list documents: %v, %d", err, len(docs))
	}

	kb, _ := s.GetKnowledgeBase(ctx, "kb1")
	if kb.DocumentCount != 1 {
		t.Errorf("document count = %d, want 1", kb.DocumentCount)
	}
}

func TestChunkBatchAndResume(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	s.CreateKnowledgeBase(ctx, testKB("kb1"))
	s.CreateDocument(ctx, &models.Document{
		ID: "d1", KBID: "kb1", Filename: "a.txt", FileType: "txt",
		FileHash: "h", Status: models.StatusProcessing,
	})

	if idx, _ := s.MaxChunkIndex(ctx, "d1"); idx != -1 {
		t.Errorf("empty document MaxChunkIndex = %d, want -1", idx)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	chunks := []*models.Chunk{
		{ID: "c1", DocumentID: "d1", KBID: "kb1", Content: "first", ChunkIndex: 0, TokenCount: 1},
		{ID: "c2", DocumentID: "d1", KBID: "kb1", Content: "second", ChunkIndex: 1, TokenCount: 1},
	}
	if err := s.BatchCreateChunks(ctx, tx, chunks); err != nil {
		t.Fatalf("batch create: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if idx, _ := s.MaxChunkIndex(ctx, "d1"); idx != 1 {
		t.Errorf("MaxChunkIndex = %d, want 1", idx)
	}

	byDoc, err := s.GetChunksByDocumentID(ctx, "d1")
	if err != nil || len(byDoc) != 2 || byDoc[0].ChunkIndex != 0 {
		t.Fatalf("GetChunksByDocumentID: %v, %v", byDoc, err)
	}

	m, err := s.GetChunks(ctx, []string{"c1", "c2", "missing"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(m) != 2 || m["c1"].Content != "first" {
		t.Errorf("GetChunks map: %v", m)
	}

	if n, _ := s.CountChunks(ctx, "kb1"); n != 2 {
		t.Errorf("CountChunks = %d, want 2", n)
	}
}

func TestCascadeDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	s.CreateKnowledgeBase(ctx, testKB("kb1"))
	s.CreateDocument(ctx, &models.Document{
		ID: "d1", KBID: "kb1", Filename: "a.txt", FileType: "txt",
		FileHash: "h", Status: models.StatusCompleted,
	})
	tx, _ := s.BeginTx(ctx)
	s.BatchCreateChunks(ctx, tx, []*models.Chunk{
		{ID: "c1", DocumentID: "d1", KBID: "kb1", Content: "x", ChunkIndex: 0},
	})
	tx.Commit()

	if err := s.DeleteKnowledgeBase(ctx, "kb1"); err != nil {
		t.Fatalf("delete kb: %v", err)
	}
	if _, err := s.GetDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("document survived kb delete: %v", err)
	}
	if _, err := s.GetChunk(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("chunk survived kb delete: %v", err)
	}
}
