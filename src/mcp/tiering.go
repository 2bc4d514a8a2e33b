package mcp

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"sift-agent/src/pipeline"
	"sift-agent/src/review"
	"sift-agent/src/sanitize"
)

// SnippetContext is the number of lines shown on each side of a finding.
const SnippetContext = 3

// DefaultLimit caps the findings expanded per tier.
const DefaultLimit = 15

// findingNamespace scopes finding IDs so they never collide with review IDs.
var findingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sift:finding"))

// FindingID returns a short stable identifier derived from the dedup key.
func FindingID(f review.Finding) string {
	return uuid.NewSHA1(findingNamespace, []byte(f.DedupKey())).String()[:8]
}

// blocking reports whether a finding should be expanded in the manifest.
func blocking(s review.Severity) bool {
	return s.Rank() >= review.SeverityWarning.Rank()
}

// Tier converts a finished review into a manifest plus the full finding list
// used for drill-down. limit caps the expanded and summarized lists.
func Tier(rec *pipeline.ReviewRecord, limit int) (ReviewManifest, []Finding) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	validated := append([]review.Finding(nil), rec.Validated...)
	sort.SliceStable(validated, func(i, j int) bool {
		a, b := validated[i], validated[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.Confidence > b.Confidence
	})

	manifest := ReviewManifest{
		ReviewID:  rec.Metadata.ReviewID,
		Outcome:   string(rec.Outcome),
		Passed:    rec.Passed,
		Summary:   rec.Summary,
		Counts:    make(map[string]int),
		Blocking:  []Finding{},
		Discarded: len(rec.Rejected),
	}

	all := make([]Finding, 0, len(validated))
	for _, f := range validated {
		finding := convertFinding(f, rec.Chunks)
		all = append(all, finding)
		manifest.Counts[finding.Severity]++

		if blocking(f.Severity) {
			if len(manifest.Blocking) < limit {
				manifest.Blocking = append(manifest.Blocking, finding)
			}
			continue
		}
		if len(manifest.Other) < limit {
			manifest.Other = append(manifest.Other, toSummary(finding))
		}
	}

	return manifest, all
}

func convertFinding(f review.Finding, chunks []review.Chunk) Finding {
	return Finding{
		ID:           FindingID(f),
		File:         f.FilePath,
		Line:         f.LineNumber,
		Severity:     string(f.Severity),
		Category:     f.Category,
		Message:      normalizeWhitespace(sanitize.Clean(f.Message)),
		SuggestedFix: sanitize.Clean(f.SuggestedFix),
		Confidence:   f.Confidence,
		Detectors:    f.Detectors,
		Snippet:      snippet(f, chunks),
	}
}

// snippet returns the numbered lines around the finding from the chunk that
// carries it. Secrets in the code are redacted.
func snippet(f review.Finding, chunks []review.Chunk) []string {
	for _, c := range chunks {
		if c.FilePath != f.FilePath || f.LineNumber < c.StartLine || f.LineNumber > c.EndLine {
			continue
		}

		var texts []string
		var numbers []int
		for _, l := range c.Lines {
			if l.Number < f.LineNumber-SnippetContext || l.Number > f.LineNumber+SnippetContext {
				continue
			}
			texts = append(texts, sanitize.RedactSecrets(sanitize.StripANSI(l.Text)))
			numbers = append(numbers, l.Number)
		}
		if len(texts) == 0 {
			return nil
		}

		out := dedent(texts)
		for i := range out {
			out[i] = fmt.Sprintf("%d: %s", numbers[i], out[i])
		}
		return out
	}
	return nil
}

func toSummary(f Finding) FindingSummary {
	return FindingSummary{
		ID:       f.ID,
		File:     f.File,
		Line:     f.Line,
		Severity: f.Severity,
		Message:  truncate(f.Message, MaxSummaryLength),
	}
}
