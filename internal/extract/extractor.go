// Package extract provides text extraction from the document formats a
// knowledge base can import: PDF, DOCX, XLSX, CSV, Markdown, HTML, plain
// text, and source code.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extraction error kinds. Callers match with errors.Is.
var (
	// ErrUnsupportedFormat means the file extension is not recognized.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrCorruptFile means the container (zip, PDF, workbook) cannot be opened.
	ErrCorruptFile = errors.New("corrupt file")
	// ErrEncoding means the bytes cannot be decoded as text even after a
	// lossy UTF-8 pass (the content is effectively binary).
	ErrEncoding = errors.New("encoding error")
)

// codeExtensions are source-code files read as plain UTF-8 text.
var codeExtensions = map[string]bool{
	".go": true, ".rs": true, ".py": true, ".js": true, ".ts": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".rb": true,
	".sh": true, ".sql": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".xml": true,
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content. The source
// file is only read, never modified. Returns ErrUnsupportedFormat,
// ErrCorruptFile, or ErrEncoding (wrapped) on failure.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch {
	case ext == ".pdf":
		return extractPDF(content)
	case ext == ".docx" || ext == ".doc":
		return extractDOCX(content)
	case ext == ".xlsx" || ext == ".xls":
		return extractExcel(content)
	case ext == ".csv" || ext == ".tsv":
		// Row-major cell values with their delimiters are already plain text.
		return extractPlain(content)
	case ext == ".html" || ext == ".htm":
		return extractHTML(content)
	case ext == ".md" || ext == ".markdown" || ext == ".txt" || ext == ".text" || ext == ".rst":
		return extractPlain(content)
	case codeExtensions[ext]:
		return extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Supported reports whether the extension maps to a known format.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf", ".docx", ".doc", ".xlsx", ".xls", ".csv", ".tsv",
		".html", ".htm", ".md", ".markdown", ".txt", ".text", ".rst":
		return true
	}
	return codeExtensions[ext]
}

// FileType returns the normalized file type stored on Document rows
// (e.g. "pdf", "docx", "md"). The leading dot is stripped and doc/xls
// variants collapse onto their modern names.
func FileType(ext string) string {
	t := strings.TrimPrefix(strings.ToLower(ext), ".")
	switch t {
	case "doc":
		return "docx"
	case "xls":
		return "xlsx"
	case "markdown":
		return "md"
	case "htm":
		return "html"
	case "text":
		return "txt"
	}
	return t
}
