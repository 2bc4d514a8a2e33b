// Package review holds the domain types shared by every pipeline stage.
package review

import (
	"fmt"
	"strings"
)

// Severity of a finding, ordered note < suggestion < warning < error.
type Severity string

const (
	SeverityNote       Severity = "note"
	SeveritySuggestion Severity = "suggestion"
	SeverityWarning    Severity = "warning"
	SeverityError      Severity = "error"
)

// Rank returns the ordinal of the severity. Unknown severities rank below note.
func (s Severity) Rank() int {
	switch s {
	case SeverityNote:
		return 1
	case SeveritySuggestion:
		return 2
	case SeverityWarning:
		return 3
	case SeverityError:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity maps loose spellings onto a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "note", "info":
		return SeverityNote, nil
	case "suggestion", "nit", "low":
		return SeveritySuggestion, nil
	case "warning", "warn", "medium":
		return SeverityWarning, nil
	case "error", "critical", "high":
		return SeverityError, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// UnknownLanguage tags chunks whose file extension is not recognised.
const UnknownLanguage = "unknown"

// Chunk is a bounded, language-tagged slice of one file's diff.
type Chunk struct {
	FilePath string `json:"file_path"`
	// First and last new-file line numbers covered by this chunk (inclusive).
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	// Lines holds the added/context lines of Content with their absolute positions.
	Lines []Line `json:"lines"`
}

// LineOp says how a line changed.
type LineOp string

const (
	OpAdd     LineOp = "add"
	OpContext LineOp = "context"
)

// Line is one new-file line carried by a chunk.
type Line struct {
	Number int    `json:"number"`
	Op     LineOp `json:"op"`
	Text   string `json:"text"`
}

// LineCount is the number of new-file lines the chunk covers.
func (c Chunk) LineCount() int {
	return len(c.Lines)
}

// AbsoluteLine translates a 1-based line offset within the chunk to a file line.
func (c Chunk) AbsoluteLine(relative int) int {
	if relative < 1 {
		relative = 1
	}
	if relative <= len(c.Lines) {
		return c.Lines[relative-1].Number
	}
	return c.StartLine + relative - 1
}

// AddedLines returns only the lines introduced by the change.
func (c Chunk) AddedLines() []Line {
	var out []Line
	for _, l := range c.Lines {
		if l.Op == OpAdd {
			out = append(out, l)
		}
	}
	return out
}

// Finding is a single reviewer-facing observation. Stages replace finding
// collections; individual findings are never mutated once produced.
type Finding struct {
	FilePath     string   `json:"file_path"`
	LineNumber   int      `json:"line_number"`
	Message      string   `json:"message"`
	Severity     Severity `json:"severity"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	DetectorKind string   `json:"detector_kind"`
	Confidence   float64  `json:"confidence"`
	Category     string   `json:"category"`
	// Detectors lists every detector kind that reported this finding after dedup.
	Detectors []string `json:"detectors,omitempty"`
}

// DedupKey is the identity used by the aggregator.
func (f Finding) DedupKey() string {
	return fmt.Sprintf("%s:%d:%s", f.FilePath, f.LineNumber, f.Category)
}

// ClampConfidence forces a confidence score into [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Comment is a finding rendered for posting to the hosting provider.
type Comment struct {
	Path     string   `json:"path"`
	Line     int      `json:"line"`
	Body     string   `json:"body"`
	Severity Severity `json:"severity"`
}

// CommentFromFinding renders a finding as an inline review comment.
func CommentFromFinding(f Finding) Comment {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s): %s", strings.ToUpper(string(f.Severity)), f.Category, f.Message)
	if f.SuggestedFix != "" {
		fmt.Fprintf(&b, "\n\nSuggested fix:\n```\n%s\n```", f.SuggestedFix)
	}
	return Comment{
		Path:     f.FilePath,
		Line:     f.LineNumber,
		Body:     b.String(),
		Severity: f.Severity,
	}
}
