package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is the path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

var (
	// wpTag matches one paragraph element including its runs.
	wpTag = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	// wtTag matches <w:t>text</w:t> with any attributes (e.g. xml:space="preserve").
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
)

// extractDOCX extracts text from .docx bytes. DOCX is a ZIP containing
// word/document.xml (OOXML); we concatenate the <w:t> text nodes of each
// <w:p> paragraph and join paragraphs with blank lines, discarding all
// formatting. A zip that cannot be opened or has no document part is
// reported as ErrCorruptFile.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: docx is not a zip: %v", ErrCorruptFile, err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docxDocumentXMLPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %v", ErrCorruptFile, f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", fmt.Errorf("%w: read %s: %v", ErrCorruptFile, f.Name, err)
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("%w: %s not found", ErrCorruptFile, docxDocumentXMLPath)
	}

	paragraphs := wpTag.FindAllString(string(docXML), -1)
	var out []string
	for _, p := range paragraphs {
		runs := wtTag.FindAllStringSubmatch(p, -1)
		if len(runs) == 0 {
			continue
		}
		var b strings.Builder
		for _, r := range runs {
			b.WriteString(r[1])
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			out = append(out, text)
		}
	}
	return strings.Join(out, "\n\n"), nil
}
