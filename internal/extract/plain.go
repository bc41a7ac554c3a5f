package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxReplacementRatio is the fraction of replacement runes after a lossy
// UTF-8 pass above which content is treated as binary rather than text.
const maxReplacementRatio = 0.2

// extractPlain returns content as a string. Invalid UTF-8 sequences are
// replaced with the replacement character (lossy fallback); if too much of
// the result is replacement characters the content is rejected with
// ErrEncoding.
func extractPlain(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	text := strings.ToValidUTF8(string(content), "�")
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return "", nil
	}
	replaced := strings.Count(text, "�")
	if float64(replaced)/float64(total) > maxReplacementRatio {
		return "", fmt.Errorf("%w: %d of %d runes undecodable", ErrEncoding, replaced, total)
	}
	return text, nil
}
