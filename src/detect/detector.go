// Package detect provides the detector capability interface, the regex rule
// engine shared by the built-in detectors, and the registry and dispatcher
// that fan a chunk out to every enabled detector.
package detect

import (
	"context"

	"sift-agent/src/review"
)

// Detector analyzes chunks for one category of issue.
// Implementations must be safe for concurrent use across chunks.
type Detector interface {
	// Kind is the registry name of the detector (e.g. "security").
	Kind() string
	// ShouldAnalyze reports whether the chunk's language is supported.
	ShouldAnalyze(chunk review.Chunk) bool
	// Analyze returns findings for the chunk. Inference failures are absorbed;
	// an error means the detector could not produce anything for this chunk.
	Analyze(ctx context.Context, chunk review.Chunk, ac AnalysisContext) ([]review.Finding, error)
}

// AnalysisContext carries per-review information into detectors.
type AnalysisContext struct {
	Config review.Configuration
	// RepoRef is "owner/repo#number", used in prompts and logs.
	RepoRef string
	Title   string
}
