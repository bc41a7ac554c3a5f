package chunker

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(0, 0); err == nil {
		t.Error("expected error for zero chunk size")
	}
	if _, err := New(100, 100); err == nil {
		t.Error("expected error for overlap == size")
	}
	if _, err := New(100, -1); err == nil {
		t.Error("expected error for negative overlap")
	}
	if _, err := New(100, 20); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestChunk_Empty(t *testing.T) {
	c, _ := New(50, 10)
	if pieces := c.Chunk("   \n\t  "); pieces != nil {
		t.Errorf("whitespace-only text should return nil, got %v", pieces)
	}
}

func TestChunk_OnePerParagraph(t *testing.T) {
	c, _ := New(50, 10)
	text := "First paragraph is short.\n\nSecond one also fits.\n\nThird paragraph here."
	pieces := c.Chunk(text)
	if len(pieces) != 3 {
		t.Fatalf("expected 3 chunks (one per paragraph), got %d", len(pieces))
	}
	for i, p := range pieces {
		if utf8.RuneCountInString(p.Content) > 50 {
			t.Errorf("chunk %d exceeds size bound: %d runes", i, utf8.RuneCountInString(p.Content))
		}
	}
	if !strings.HasSuffix(pieces[1].Content, "Second one also fits.") {
		t.Errorf("chunk 1 should end with paragraph 2 text: %q", pieces[1].Content)
	}
}

func TestChunk_SizeBound(t *testing.T) {
	c, _ := New(40, 8)
	text := strings.Repeat("This is a sentence that keeps going on. ", 20) +
		"\n\n" + strings.Repeat("x", 200)
	for i, p := range c.Chunk(text) {
		if n := utf8.RuneCountInString(p.Content); n > 40 {
			t.Errorf("chunk %d has %d runes, want <= 40", i, n)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c, _ := New(30, 5)
	text := "Alpha beta gamma. Delta epsilon zeta eta theta iota. Kappa.\n\nLambda mu nu xi."
	a := c.Chunk(text)
	b := c.Chunk(text)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic chunk count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunk_ContentPreserved(t *testing.T) {
	c, _ := New(25, 5)
	text := "The quick brown fox jumps. Over the lazy dog it went. Then it stopped."
	var joined strings.Builder
	for _, p := range c.Chunk(text) {
		joined.WriteString(p.Content)
		joined.WriteByte(' ')
	}
	// Overlap duplicates characters but must never lose any: every
	// non-whitespace rune of the input appears in the concatenation.
	strip := func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s)
	}
	all := strip(joined.String())
	for _, word := range strings.Fields(text) {
		if !strings.Contains(all, strip(word)) {
			t.Errorf("word %q missing from chunked output", word)
		}
	}
}

func TestChunk_OverlapCarried(t *testing.T) {
	c, _ := New(30, 6)
	text := "aaaaaaaaaa bbbbbbbbbb.\n\ncccccccccc dddddddddd."
	pieces := c.Chunk(text)
	if len(pieces) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(pieces))
	}
	// Second chunk starts with the tail of the first paragraph.
	if !strings.HasPrefix(pieces[1].Content, "bbbbb") {
		t.Errorf("expected overlap prefix from previous chunk, got %q", pieces[1].Content)
	}
}

func TestChunk_HardCut(t *testing.T) {
	c, _ := New(10, 0)
	text := strings.Repeat("a", 35) // no spaces, no sentence breaks
	pieces := c.Chunk(text)
	if len(pieces) != 4 {
		t.Fatalf("expected 4 hard-cut chunks, got %d", len(pieces))
	}
	for i := 0; i < 3; i++ {
		if len(pieces[i].Content) != 10 {
			t.Errorf("chunk %d should be exactly 10 chars, got %d", i, len(pieces[i].Content))
		}
	}
	if len(pieces[3].Content) != 5 {
		t.Errorf("final chunk should hold the 5-char remainder, got %d", len(pieces[3].Content))
	}
}

func TestTokenCount(t *testing.T) {
	if n := TokenCount("one two  three\nfour"); n != 4 {
		t.Errorf("TokenCount = %d, want 4", n)
	}
	if n := TokenCount("  "); n != 0 {
		t.Errorf("TokenCount of blank = %d, want 0", n)
	}
}
