package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExtractBytes_Plain(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte("hello world"), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes() error = %v", err)
	}
	if text != "hello world" {
		t.Errorf("got %q", text)
	}
}

func TestExtractBytes_Markdown(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte("# Title\n\nbody"), ".md")
	if err != nil {
		t.Fatalf("ExtractBytes() error = %v", err)
	}
	if !strings.Contains(text, "Title") || !strings.Contains(text, "body") {
		t.Errorf("markdown content lost: %q", text)
	}
}

func TestExtractBytes_CSVKeepsDelimiters(t *testing.T) {
	e := NewExtractor()
	text, err := e.ExtractBytes([]byte("a,b,c\n1,2,3\n"), ".csv")
	if err != nil {
		t.Fatalf("ExtractBytes() error = %v", err)
	}
	if text != "a,b,c\n1,2,3\n" {
		t.Errorf("csv should pass through unchanged, got %q", text)
	}
}

func TestExtractBytes_UnsupportedFormat(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte{0x00}, ".exe")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtractBytes_LossyUTF8(t *testing.T) {
	e := NewExtractor()
	// One bad byte in mostly-valid text: lossy fallback should succeed.
	content := append([]byte("mostly valid text here with plenty of words "), 0xff)
	content = append(content, []byte(" and more text after the bad byte")...)
	text, err := e.ExtractBytes(content, ".txt")
	if err != nil {
		t.Fatalf("expected lossy fallback to succeed, got %v", err)
	}
	if !strings.Contains(text, "mostly valid text") {
		t.Errorf("text lost in lossy pass: %q", text)
	}
}

func TestExtractBytes_BinaryRejected(t *testing.T) {
	e := NewExtractor()
	content := bytes.Repeat([]byte{0xfe, 0xff, 0x80}, 100)
	_, err := e.ExtractBytes(content, ".txt")
	if !errors.Is(err, ErrEncoding) {
		t.Errorf("expected ErrEncoding for binary content, got %v", err)
	}
}

func TestExtractBytes_CorruptDOCX(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte("not a zip"), ".docx")
	if !errors.Is(err, ErrCorruptFile) {
		t.Errorf("expected ErrCorruptFile, got %v", err)
	}
}

func TestExtractBytes_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte(`<w:document><w:body>` +
		`<w:p w:rsidR="00A"><w:r><w:t>First paragraph</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor()
	text, err := e.ExtractBytes(buf.Bytes(), ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes() error = %v", err)
	}
	want := "First paragraph\n\nSecond paragraph"
	if text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestExtractBytes_HTML(t *testing.T) {
	e := NewExtractor()
	html := `<html><head><style>p{color:red}</style><script>var x=1;</script></head>` +
		`<body><h1>Heading</h1><p>First &amp; foremost.</p><p>Second.</p></body></html>`
	text, err := e.ExtractBytes([]byte(html), ".html")
	if err != nil {
		t.Fatalf("ExtractBytes() error = %v", err)
	}
	if strings.Contains(text, "color:red") || strings.Contains(text, "var x") {
		t.Errorf("script/style leaked into text: %q", text)
	}
	if !strings.Contains(text, "First & foremost.") {
		t.Errorf("entity not unescaped: %q", text)
	}
	if !strings.Contains(text, "Heading") || !strings.Contains(text, "Second.") {
		t.Errorf("text nodes lost: %q", text)
	}
}

func TestFileType(t *testing.T) {
	tests := []struct{ ext, want string }{
		{".pdf", "pdf"},
		{".doc", "docx"},
		{".DOCX", "docx"},
		{".xls", "xlsx"},
		{".markdown", "md"},
		{".htm", "html"},
		{".go", "go"},
	}
	for _, tt := range tests {
		if got := FileType(tt.ext); got != tt.want {
			t.Errorf("FileType(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", ".docx", ".csv", ".md", ".go", ".html"} {
		if !Supported(ext) {
			t.Errorf("expected %q to be supported", ext)
		}
	}
	for _, ext := range []string{".exe", ".png", ""} {
		if Supported(ext) {
			t.Errorf("expected %q to be unsupported", ext)
		}
	}
}
