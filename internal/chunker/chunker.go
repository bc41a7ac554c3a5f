// Package chunker splits document text into bounded, overlapping segments
// for embedding and indexing.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

// Piece is one chunk of text with its approximate token count (whitespace
// word count, not a model-exact tokenizer).
type Piece struct {
	Content    string
	TokenCount int
}

// Chunker splits text into chunks of at most chunkSize characters with
// chunkOverlap characters of context carried across adjacent cuts.
//
// Splitting is staged: paragraph boundaries (double newline) first, then
// sentence boundaries for paragraphs that exceed chunkSize, then a hard cut
// at exactly chunkSize for anything still too long. Paragraphs are never
// merged, so chunk boundaries follow the document's own structure.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a chunker. chunkSize must be positive and chunkOverlap must be
// smaller than chunkSize.
func New(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", chunkOverlap)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk splits text into ordered pieces. The output is deterministic for a
// given input, every piece is at most chunkSize characters, and empty pieces
// are dropped. The tail of each base segment is prepended to the next piece
// as overlap, trimmed when needed so the size bound still holds.
func (c *Chunker) Chunk(text string) []Piece {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var units [][]rune
	for _, para := range splitParagraphs(text) {
		runes := []rune(para)
		if len(runes) <= c.chunkSize {
			units = append(units, runes)
			continue
		}
		for _, unit := range c.splitLongParagraph(runes) {
			units = append(units, unit)
		}
	}

	pieces := make([]Piece, 0, len(units))
	for i, unit := range units {
		content := unit
		if i > 0 && c.chunkOverlap > 0 {
			prev := units[i-1]
			ov := c.chunkOverlap
			if ov > len(prev) {
				ov = len(prev)
			}
			// Never let the prepended overlap push the piece past chunkSize.
			if room := c.chunkSize - len(unit); ov > room {
				ov = room
			}
			if ov > 0 {
				content = append(append([]rune{}, prev[len(prev)-ov:]...), unit...)
			}
		}
		s := string(content)
		pieces = append(pieces, Piece{Content: s, TokenCount: TokenCount(s)})
	}
	return pieces
}

// splitLongParagraph splits an over-long paragraph on sentence boundaries,
// packing consecutive sentences up to chunkSize, and hard-cuts any single
// sentence that still exceeds the bound.
func (c *Chunker) splitLongParagraph(para []rune) [][]rune {
	var units [][]rune
	var current []rune
	for _, sentence := range splitSentences(para) {
		if len(current) > 0 && len(current)+len(sentence) > c.chunkSize {
			units = append(units, current)
			current = nil
		}
		if len(sentence) > c.chunkSize {
			for start := 0; start < len(sentence); start += c.chunkSize {
				end := start + c.chunkSize
				if end > len(sentence) {
					end = len(sentence)
				}
				units = append(units, sentence[start:end])
			}
			continue
		}
		current = append(current, sentence...)
	}
	if len(current) > 0 {
		units = append(units, current)
	}
	return units
}

// splitParagraphs splits on blank lines and drops empty paragraphs.
func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentence-terminal punctuation, covering CJK full stops.
func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// splitSentences splits runes after terminal punctuation followed by
// whitespace. The whitespace stays with the preceding sentence so that
// concatenating sentences reconstructs the paragraph.
func splitSentences(runes []rune) [][]rune {
	var sentences [][]rune
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if isTerminal(runes[i]) && unicode.IsSpace(runes[i+1]) {
			end := i + 1
			for end < len(runes) && unicode.IsSpace(runes[end]) {
				end++
			}
			sentences = append(sentences, runes[start:end])
			start = end
			i = end - 1
		}
	}
	if start < len(runes) {
		sentences = append(sentences, runes[start:])
	}
	return sentences
}

// TokenCount approximates the token count of text as its whitespace-separated
// word count.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}
