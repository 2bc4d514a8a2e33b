package mcp

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxSnippetLineLength bounds each snippet line. Minified or generated
// lines otherwise dominate the response.
const MaxSnippetLineLength = 160

// MaxSummaryLength bounds summarized messages.
const MaxSummaryLength = 100

var whitespacePattern = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses runs of whitespace and trims.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}

// commonIndent returns the leading whitespace shared by every non-blank line.
func commonIndent(lines []string) string {
	indent := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lead := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			indent = lead
			first = false
			continue
		}
		for !strings.HasPrefix(lead, indent) {
			indent = indent[:len(indent)-1]
		}
		if indent == "" {
			break
		}
	}
	return indent
}

// dedent strips the shared leading whitespace and truncates long lines.
func dedent(lines []string) []string {
	indent := commonIndent(lines)
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = truncate(strings.TrimPrefix(line, indent), MaxSnippetLineLength)
	}
	return out
}
