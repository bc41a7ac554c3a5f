package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kaiwa-app/kioku/internal/embedding"
	"github.com/kaiwa-app/kioku/internal/keyword"
	"github.com/kaiwa-app/kioku/internal/models"
	"github.com/kaiwa-app/kioku/internal/retriever"
	"github.com/kaiwa-app/kioku/internal/storage"
	"github.com/kaiwa-app/kioku/internal/vector"
)

type env struct {
	manager   *Manager
	retriever *retriever.Retriever
	store     *storage.SQLiteStorage
	vectors   *vector.SQLiteStore
	keywords  *keyword.BleveIndex
	registry  *embedding.Registry
	dir       string
}

func newEnv(t *testing.T, providers []embedding.ProviderConfig) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	vectors, err := vector.NewSQLiteStore(store.DB())
	if err != nil {
		t.Fatalf("vectors: %v", err)
	}
	keywords, err := keyword.NewBleveIndex(filepath.Join(dir, "chunks.bleve"))
	if err != nil {
		t.Fatalf("bleve: %v", err)
	}
	t.Cleanup(func() { keywords.Close() })
	registry := embedding.NewRegistry(providers, 64)
	t.Cleanup(func() { registry.Close() })

	return &env{
		manager:   New(store, vectors, keywords, registry),
		retriever: retriever.New(store, vectors, keywords, registry),
		store:     store,
		vectors:   vectors,
		keywords:  keywords,
		registry:  registry,
		dir:       dir,
	}
}

func mockEnv(t *testing.T) *env {
	return newEnv(t, []embedding.ProviderConfig{
		{ID: "mock-1", Family: "mock", Dimensions: 128},
	})
}

func (e *env) createKB(t *testing.T, chunkSize, chunkOverlap int) *models.KnowledgeBase {
	t.Helper()
	kb, err := e.manager.CreateKnowledgeBase(context.Background(), models.CreateKnowledgeBaseRequest{
		Name:               "notes",
		EmbeddingConfigRef: "mock-1",
		ChunkSize:          chunkSize,
		ChunkOverlap:       chunkOverlap,
	})
	if err != nil {
		t.Fatalf("CreateKnowledgeBase: %v", err)
	}
	return kb
}

func (e *env) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCreateKnowledgeBase(t *testing.T) {
	e := mockEnv(t)
	kb := e.createKB(t, 0, 0)

	if kb.ChunkSize != models.DefaultChunkSize || kb.ChunkOverlap != models.DefaultChunkOverlap {
		t.Errorf("defaults not applied: %+v", kb)
	}
	if kb.EmbeddingDim != 128 {
		t.Errorf("dimension not pinned from provider: %d", kb.EmbeddingDim)
	}

	_, err := e.manager.CreateKnowledgeBase(context.Background(), models.CreateKnowledgeBaseRequest{
		Name: "bad", EmbeddingConfigRef: "unknown-provider",
	})
	if err == nil {
		t.Error("unknown provider ref should be rejected")
	}
}

func TestImportAndHybridRetrieval(t *testing.T) {
	e := mockEnv(t)
	ctx := context.Background()
	kb := e.createKB(t, 50, 10)

	text := "Cats sleep most of the day.\n\n" +
		"Quantum computers use qubits for parallel work.\n\n" +
		"Bread rises because yeast makes gas."
	path := e.writeFile(t, "facts.txt", text)

	doc, err := e.manager.ImportDocument(ctx, kb.ID, path)
	if err != nil {
		t.Fatalf("ImportDocument: %v", err)
	}
	if doc.Status != models.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", doc.Status, doc.ErrorMessage)
	}
	if doc.ChunkCount != 3 {
		t.Errorf("chunk_count = %d, want 3 (one per paragraph)", doc.ChunkCount)
	}
	if doc.FileHash == "" || doc.ContentPreview == "" {
		t.Errorf("missing hash or preview: %+v", doc)
	}

	result, err := e.retriever.Retrieve(ctx, models.RetrievalRequest{
		KBID:  kb.ID,
		Query: "qubits quantum computers",
		TopK:  2,
		Mode:  models.ModeHybrid,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Chunks) == 0 {
		t.Fatal("no chunks retrieved")
	}
	top := result.Chunks[0]
	if top.Chunk.ChunkIndex != 1 {
		t.Errorf("top chunk index = %d, want 1 (quantum paragraph), content %q",
			top.Chunk.ChunkIndex, top.Chunk.Content)
	}
	if top.DocumentFilename != "facts.txt" {
		t.Errorf("filename = %q", top.DocumentFilename)
	}
}

func TestImportExtensionDispatch(t *testing.T) {
	e := mockEnv(t)
	ctx := context.Background()
	kb := e.createKB(t, 0, 0)

	tests := []struct {
		name     string
		content  string
		fileType string
	}{
		{"note.txt", "plain text body", "txt"},
		{"readme.md", "# heading\n\nmarkdown body", "md"},
		{"rows.csv", "a,b,c\n1,2,3", "csv"},
		{"main.go", "package main\n\nfunc main() {}", "go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := e.writeFile(t, tt.name, tt.content)
			doc, err := e.manager.ImportDocument(ctx, kb.ID, path)
			if err != nil {
				t.Fatalf("ImportDocument: %v", err)
			}
			if doc.Status != models.StatusCompleted {
				t.Fatalf("status = %s (%s), want completed", doc.Status, doc.ErrorMessage)
			}
			if doc.FileType != tt.fileType {
				t.Errorf("file_type = %q, want %q", doc.FileType, tt.fileType)
			}
		})
	}
}

func TestImportUnsupportedFormat(t *testing.T) {
	e := mockEnv(t)
	kb := e.createKB(t, 0, 0)
	path := e.writeFile(t, "binary.exe", "MZ\x00\x01")

	if _, err := e.manager.ImportDocument(context.Background(), kb.ID, path); err == nil {
		t.Error("unsupported format should fail before creating a document")
	}
	docs, _ := e.manager.ListDocuments(context.Background(), kb.ID)
	if len(docs) != 0 {
		t.Errorf("no document row should exist, got %d", len(docs))
	}
}

func TestImportEmbedFailureMarksError(t *testing.T) {
	e := newEnv(t, []embedding.ProviderConfig{{
		ID: "mock-1", Family: "openai", BaseURL: "http://127.0.0.1:1",
		APIKey: "k", Model: "m", Dimensions: 8,
	}})
	kb := e.createKB(t, 0, 0)
	path := e.writeFile(t, "doc.txt", "some text that will fail to embed")

	doc, err := e.manager.ImportDocument(context.Background(), kb.ID, path)
	if err != nil {
		t.Fatalf("pipeline errors are recorded on the document, not returned: %v", err)
	}
	if doc.Status != models.StatusError {
		t.Fatalf("status = %s, want error", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Error("error_message should be populated")
	}
}

func TestImportDuplicateHash(t *testing.T) {
	e := mockEnv(t)
	ctx := context.Background()
	kb := e.createKB(t, 0, 0)
	path := e.writeFile(t, "dup.txt", "identical content")

	first, err := e.manager.ImportDocument(ctx, kb.ID, path)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := e.manager.ImportDocument(ctx, kb.ID, path)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate content should return the existing document")
	}
	docs, _ := e.manager.ListDocuments(ctx, kb.ID)
	if len(docs) != 1 {
		t.Errorf("got %d documents, want 1", len(docs))
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	e := mockEnv(t)
	ctx := context.Background()
	kb := e.createKB(t, 0, 0)
	path := e.writeFile(t, "doc.txt", "searchable cascade content here")

	doc, _ := e.manager.ImportDocument(ctx, kb.ID, path)
	if doc.Status != models.StatusCompleted {
		t.Fatalf("import failed: %s", doc.ErrorMessage)
	}

	if err := e.manager.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if n, _ := e.vectors.Count(ctx, kb.ID); n != 0 {
		t.Errorf("vectors survived document delete: %d", n)
	}
	hits, _ := e.keywords.Search(ctx, kb.ID, "cascade", 10)
	if len(hits) != 0 {
		t.Errorf("keyword entries survived document delete: %v", hits)
	}
	if _, err := e.store.GetDocument(ctx, doc.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("document row survived: %v", err)
	}
}

func TestDeleteKnowledgeBaseCascades(t *testing.T) {
	e := mockEnv(t)
	ctx := context.Background()
	kb := e.createKB(t, 0, 0)
	path := e.writeFile(t, "doc.txt", "knowledge base cascade material")
	e.manager.ImportDocument(ctx, kb.ID, path)

	if err := e.manager.DeleteKnowledgeBase(ctx, kb.ID); err != nil {
		t.Fatalf("DeleteKnowledgeBase: %v", err)
	}

	if n, _ := e.vectors.Count(ctx, kb.ID); n != 0 {
		t.Errorf("vectors survived kb delete: %d", n)
	}
	hits, _ := e.keywords.Search(ctx, kb.ID, "cascade", 10)
	if len(hits) != 0 {
		t.Errorf("keyword entries survived kb delete: %v", hits)
	}
	if n, _ := e.store.CountChunks(ctx, kb.ID); n != 0 {
		t.Errorf("chunks survived kb delete: %d", n)
	}
	result, err := e.retriever.Retrieve(ctx, models.RetrievalRequest{
		KBID: kb.ID, Query: "cascade",
	})
	if err == nil {
		t.Errorf("retrieval against deleted kb should fail, got %+v", result)
	}
}

// cancelAfterIndex fires a cancel once the keyword entries for a batch land,
// which is the last pipeline step before the terminal status write.
type cancelAfterIndex struct {
	inner  keyword.Index
	cancel context.CancelFunc
}

func (c *cancelAfterIndex) Index(ctx context.Context, entries []keyword.Entry) error {
	err := c.inner.Index(ctx, entries)
	c.cancel()
	return err
}

func (c *cancelAfterIndex) Search(ctx context.Context, kbID, query string, limit int) ([]keyword.Result, error) {
	return c.inner.Search(ctx, kbID, query, limit)
}

func (c *cancelAfterIndex) DeleteChunk(ctx context.Context, chunkID string) error {
	return c.inner.DeleteChunk(ctx, chunkID)
}

func (c *cancelAfterIndex) DeleteDocument(ctx context.Context, documentID string) error {
	return c.inner.DeleteDocument(ctx, documentID)
}

func (c *cancelAfterIndex) DeleteKB(ctx context.Context, kbID string) error {
	return c.inner.DeleteKB(ctx, kbID)
}

func (c *cancelAfterIndex) Close() error {
	return c.inner.Close()
}

func TestImportCancelledAfterFinalBatchCompletes(t *testing.T) {
	e := mockEnv(t)
	kb := e.createKB(t, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := New(e.store, e.vectors, &cancelAfterIndex{inner: e.keywords, cancel: cancel}, e.registry)
	path := e.writeFile(t, "late-cancel.txt", "content whose import is cancelled at the finish line")

	doc, err := mgr.ImportDocument(ctx, kb.ID, path)
	if err != nil {
		t.Fatalf("ImportDocument: %v", err)
	}
	if doc.Status != models.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", doc.Status, doc.ErrorMessage)
	}
	stored, err := e.store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if stored.Status != models.StatusCompleted {
		t.Errorf("stored status = %s, a cancelled caller must not leave a processing row", stored.Status)
	}
}

func TestConcurrentImportsDifferentKBs(t *testing.T) {
	e := mockEnv(t)
	ctx := context.Background()
	kb1 := e.createKB(t, 0, 0)
	kb2, err := e.manager.CreateKnowledgeBase(ctx, models.CreateKnowledgeBaseRequest{
		Name: "other", EmbeddingConfigRef: "mock-1",
	})
	if err != nil {
		t.Fatalf("second kb: %v", err)
	}
	p1 := e.writeFile(t, "one.txt", "alpha beta gamma delta")
	p2 := e.writeFile(t, "two.txt", "epsilon zeta eta theta")

	done := make(chan error, 2)
	go func() {
		_, err := e.manager.ImportDocument(ctx, kb1.ID, p1)
		done <- err
	}()
	go func() {
		_, err := e.manager.ImportDocument(ctx, kb2.ID, p2)
		done <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent import %d: %v", i, err)
		}
	}
	for _, kb := range []*models.KnowledgeBase{kb1, kb2} {
		docs, _ := e.manager.ListDocuments(ctx, kb.ID)
		if len(docs) != 1 || docs[0].Status != models.StatusCompleted {
			t.Errorf("kb %s documents: %+v", kb.Name, docs)
		}
	}
}
