// Package cli provides output formatting for the kioku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kaiwa-app/kioku/internal/models"
	"github.com/kaiwa-app/kioku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRetrievalResult writes a retrieval result to w in the given format.
func WriteRetrievalResult(w io.Writer, result *models.RetrievalResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "\nQuery: %s\n", result.Query)
	fmt.Fprintf(w, "Returned %d of %d candidates", len(result.Chunks), result.TotalChunks)
	if result.Degraded {
		fmt.Fprint(w, " (degraded: keyword-only, query embedding failed)")
	}
	fmt.Fprint(w, "\n\n")
	for i, rc := range result.Chunks {
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", 60))
		fmt.Fprintf(w, "#%d  score %.4f", i+1, rc.Score)
		if rc.VectorScore != nil {
			fmt.Fprintf(w, "  vector %.4f", *rc.VectorScore)
		}
		if rc.KeywordScore != nil {
			fmt.Fprintf(w, "  keyword %.4f", *rc.KeywordScore)
		}
		fmt.Fprintf(w, "\n%s (chunk %d)\n\n%s\n\n",
			rc.DocumentFilename, rc.Chunk.ChunkIndex, utils.Truncate(rc.Chunk.Content, 300))
	}
	return nil
}

// WriteKnowledgeBases writes a knowledge base listing to w.
func WriteKnowledgeBases(w io.Writer, kbs []*models.KnowledgeBase, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, kbs)
	}
	if len(kbs) == 0 {
		fmt.Fprintln(w, "No knowledge bases.")
		return nil
	}
	for _, kb := range kbs {
		fmt.Fprintf(w, "%s  %s\n", kb.ID, kb.Name)
		if kb.Description != "" {
			fmt.Fprintf(w, "    %s\n", kb.Description)
		}
		fmt.Fprintf(w, "    provider %s (dim %d), chunk %d/%d, %d document(s)\n",
			kb.EmbeddingConfigRef, kb.EmbeddingDim, kb.ChunkSize, kb.ChunkOverlap, kb.DocumentCount)
	}
	return nil
}

// WriteDocuments writes a document listing to w.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %s  [%s]  %d chunk(s)\n", d.ID, d.Filename, d.Status, d.ChunkCount)
		if d.Status == models.StatusError && d.ErrorMessage != "" {
			fmt.Fprintf(w, "    error: %s\n", d.ErrorMessage)
		}
	}
	return nil
}

// WriteDocument writes one document's details to w.
func WriteDocument(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "%s  %s\n", doc.ID, doc.Filename)
	fmt.Fprintf(w, "  type %s, %d bytes, hash %s\n", doc.FileType, doc.FileSize, utils.Truncate(doc.FileHash, 12))
	fmt.Fprintf(w, "  status %s, %d chunk(s)\n", doc.Status, doc.ChunkCount)
	if doc.ErrorMessage != "" {
		fmt.Fprintf(w, "  error: %s\n", doc.ErrorMessage)
	}
	if doc.ContentPreview != "" {
		fmt.Fprintf(w, "\n%s\n", doc.ContentPreview)
	}
	return nil
}
