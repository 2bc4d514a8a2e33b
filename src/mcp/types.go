// Package mcp exposes the review pipeline as MCP tools for coding agents.
package mcp

// ReviewManifest is the review_diff tool response. Blocking findings are
// fully expanded; the rest are summarized and can be drilled into with
// get_finding_details.
type ReviewManifest struct {
	ReviewID  string           `json:"review_id"`
	Outcome   string           `json:"outcome"`
	Passed    bool             `json:"passed"`
	Summary   string           `json:"summary"`
	Counts    map[string]int   `json:"counts"`
	Blocking  []Finding        `json:"blocking_findings"`
	Other     []FindingSummary `json:"other_findings,omitempty"`
	Discarded int              `json:"discarded"`
}

// Finding is a sanitized, LLM-ready review finding.
type Finding struct {
	ID           string   `json:"id"`
	File         string   `json:"file"`
	Line         int      `json:"line"`
	Severity     string   `json:"severity"`
	Category     string   `json:"category"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Confidence   float64  `json:"confidence"`
	Detectors    []string `json:"detectors,omitempty"`
	// Snippet is the surrounding new-file code, each line prefixed with its number.
	Snippet []string `json:"snippet,omitempty"`
}

// FindingSummary is the lightweight form used for non-blocking findings.
type FindingSummary struct {
	ID       string `json:"id"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}
