package tui

import (
	"fmt"

	"sift-agent/src/review"
)

// Item wraps a finding for display in the findings list.
// It implements bubbles/list.Item.
type Item struct {
	Finding review.Finding
	Rank    int
	// Snippet holds the chunk lines around the finding, if any.
	Snippet []review.Line
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Finding.Message }

// Title returns the primary text for the item.
func (i Item) Title() string { return i.Finding.Message }

// Description returns the location of the finding.
func (i Item) Description() string { return i.Location() }

// Location renders the finding position as path:line.
func (i Item) Location() string {
	return fmt.Sprintf("%s:%d", i.Finding.FilePath, i.Finding.LineNumber)
}

// snippetContext is the number of lines shown on each side of a finding.
const snippetContext = 4

// NewItems builds ranked items from validated findings, attaching the
// surrounding lines from whichever chunk covers each finding.
func NewItems(findings []review.Finding, chunks []review.Chunk) []Item {
	items := make([]Item, len(findings))
	for i, f := range findings {
		items[i] = Item{Finding: f, Rank: i + 1, Snippet: linesAround(f, chunks)}
	}
	return items
}

func linesAround(f review.Finding, chunks []review.Chunk) []review.Line {
	for _, c := range chunks {
		if c.FilePath != f.FilePath || f.LineNumber < c.StartLine || f.LineNumber > c.EndLine {
			continue
		}
		var out []review.Line
		for _, l := range c.Lines {
			if l.Number >= f.LineNumber-snippetContext && l.Number <= f.LineNumber+snippetContext {
				out = append(out, l)
			}
		}
		return out
	}
	return nil
}
