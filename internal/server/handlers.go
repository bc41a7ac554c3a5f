package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kaiwa-app/kioku/internal/models"
	"github.com/kaiwa-app/kioku/internal/retriever"
	"github.com/kaiwa-app/kioku/internal/storage"
)

func (s *Server) handleCreateKB(w http.ResponseWriter, r *http.Request) {
	var req models.CreateKnowledgeBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kb, err := s.manager.CreateKnowledgeBase(r.Context(), req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, kb)
}

func (s *Server) handleListKBs(w http.ResponseWriter, r *http.Request) {
	kbs, err := s.manager.ListKnowledgeBases(r.Context())
	if err != nil {
		s.logger.Error("list knowledge bases failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if kbs == nil {
		kbs = []*models.KnowledgeBase{}
	}
	s.respondJSON(w, http.StatusOK, kbs)
}

func (s *Server) handleGetKB(w http.ResponseWriter, r *http.Request) {
	kb, err := s.manager.GetKnowledgeBase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, kb)
}

func (s *Server) handleUpdateKB(w http.ResponseWriter, r *http.Request) {
	kb, err := s.manager.GetKnowledgeBase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	// Decode over the current state so omitted fields keep their values.
	if err := json.NewDecoder(r.Body).Decode(kb); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kb.ID = chi.URLParam(r, "id")
	if err := s.manager.UpdateKnowledgeBase(r.Context(), kb); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, kb)
}

func (s *Server) handleDeleteKB(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteKnowledgeBase(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// importRequest names a file on the local filesystem; the engine and the
// desktop client share a machine, so paths come from the client's file picker.
type importRequest struct {
	FilePath string `json:"file_path"`
}

func (s *Server) handleImportDocument(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FilePath == "" {
		s.respondError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	kbID := chi.URLParam(r, "id")
	doc, err := s.manager.ImportDocument(r.Context(), kbID, req.FilePath)
	if err != nil {
		s.logger.Error("import failed",
			zap.String("kb_id", kbID),
			zap.String("file_path", req.FilePath),
			zap.Error(err))
		s.respondNotFoundOrError(w, err)
		return
	}
	// Pipeline failures are reported in the document's status, not as HTTP errors.
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	kbID := chi.URLParam(r, "id")
	if _, err := s.manager.GetKnowledgeBase(r.Context(), kbID); err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	docs, err := s.manager.ListDocuments(r.Context(), kbID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.manager.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondNotFoundOrError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.retriever.Retrieve(r.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("retrieval failed", zap.String("kb_id", req.KBID), zap.Error(err))
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleRetrieveContext runs a retrieval and returns the chunks already
// formatted as a prompt block, which is what the chat layer injects.
func (s *Server) handleRetrieveContext(w http.ResponseWriter, r *http.Request) {
	var req models.RetrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.retriever.Retrieve(r.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"context":      retriever.BuildContext(result),
		"total_chunks": result.TotalChunks,
		"degraded":     result.Degraded,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondNotFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
