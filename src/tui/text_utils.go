package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// tabWidth is the number of spaces a tab expands to in code snippets.
const tabWidth = 4

// CleanText strips escape sequences and carriage returns and expands tabs so
// widths can be measured.
func CleanText(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

// VisualWidth returns the display width of text, accounting for multi-byte characters
func VisualWidth(s string) int {
	return runewidth.StringWidth(s)
}

// Truncate truncates text to maxLen cells with optional ellipsis
func Truncate(s string, maxLen int, ellipsis bool) string {
	s = strings.TrimSpace(s)
	if maxLen <= 0 {
		return ""
	}
	if VisualWidth(s) <= maxLen {
		return s
	}
	if ellipsis && maxLen > 3 {
		return runewidth.Truncate(s, maxLen, "...")
	}
	return runewidth.Truncate(s, maxLen, "")
}

// TruncateAndPad truncates text and pads it to exactly width cells.
func TruncateAndPad(s string, width int, ellipsis bool) string {
	return runewidth.FillRight(Truncate(s, width, ellipsis), width)
}

// Wrap wraps text to width cells, breaking on spaces when possible.
// Words wider than width are split across lines.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var current strings.Builder
	currentWidth := 0

	flush := func() {
		if currentWidth > 0 {
			lines = append(lines, current.String())
			current.Reset()
			currentWidth = 0
		}
	}

	for _, word := range words {
		for VisualWidth(word) > width {
			flush()
			head := runewidth.Truncate(word, width, "")
			if head == "" {
				head = string([]rune(word)[:1])
			}
			lines = append(lines, head)
			word = word[len(head):]
		}
		if word == "" {
			continue
		}

		w := VisualWidth(word)
		if currentWidth > 0 && currentWidth+1+w > width {
			flush()
		}
		if currentWidth > 0 {
			current.WriteByte(' ')
			currentWidth++
		}
		current.WriteString(word)
		currentWidth += w
	}
	flush()

	return strings.Join(lines, "\n")
}

// HardWrap splits a code line into width-cell segments without collapsing
// whitespace. Indentation is significant in snippets so Wrap cannot be used.
func HardWrap(line string, width int) []string {
	if width <= 0 || VisualWidth(line) <= width {
		return []string{line}
	}
	var out []string
	for VisualWidth(line) > width {
		head := runewidth.Truncate(line, width, "")
		if head == "" {
			break
		}
		out = append(out, head)
		line = line[len(head):]
	}
	if line != "" {
		out = append(out, line)
	}
	return out
}
