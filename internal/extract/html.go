package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	// scriptStyleRe removes <script> and <style> blocks including contents.
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	// tagRe matches any remaining HTML tag.
	tagRe = regexp.MustCompile(`(?s)<[^>]+>`)
	// blankLinesRe collapses runs of three or more newlines.
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// extractHTML strips tags from HTML content, keeping the text nodes.
// Block-level closings become newlines so paragraph structure survives for
// the chunker.
func extractHTML(content []byte) (string, error) {
	text, err := extractPlain(content)
	if err != nil {
		return "", err
	}
	text = scriptStyleRe.ReplaceAllString(text, "")
	// Paragraph-ish boundaries become blank lines before tags are dropped.
	for _, tag := range []string{"</p>", "</div>", "</li>", "</h1>", "</h2>", "</h3>", "</h4>", "</tr>", "<br>", "<br/>", "<br />"} {
		text = strings.ReplaceAll(text, tag, tag+"\n\n")
	}
	text = tagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
