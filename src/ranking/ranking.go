// Package ranking merges, deduplicates, caps, and filters findings.
// The pipeline and the MCP tool both consume it so results are ordered the same way everywhere.
package ranking

import (
	"sort"

	"sift-agent/src/review"
)

type entry struct {
	finding review.Finding
	order   int // index of the first occurrence in the input
}

// Aggregate deduplicates findings on (file_path, line_number, category),
// keeping the highest-confidence instance and the union of reporting
// detectors, then ranks by severity, confidence, and input order and applies
// the per-file and total caps from cfg. Zero caps mean unlimited.
func Aggregate(findings []review.Finding, cfg review.Configuration) []review.Finding {
	if len(findings) == 0 {
		return []review.Finding{}
	}

	index := make(map[string]int, len(findings))
	entries := make([]entry, 0, len(findings))

	for i, f := range findings {
		key := f.DedupKey()
		pos, seen := index[key]
		if !seen {
			index[key] = len(entries)
			entries = append(entries, entry{finding: withDetectors(f, nil), order: i})
			continue
		}

		kept := entries[pos].finding
		merged := mergeDetectors(kept.Detectors, f)
		if f.Confidence > kept.Confidence {
			kept = f
		}
		entries[pos].finding = withDetectors(kept, merged)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].finding, entries[j].finding
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return entries[i].order < entries[j].order
	})

	perFile := make(map[string]int)
	out := make([]review.Finding, 0, len(entries))
	for _, e := range entries {
		if cfg.MaxFindingsPerFile > 0 && perFile[e.finding.FilePath] >= cfg.MaxFindingsPerFile {
			continue
		}
		perFile[e.finding.FilePath]++
		out = append(out, e.finding)
	}

	if cfg.MaxFindingsTotal > 0 && len(out) > cfg.MaxFindingsTotal {
		out = out[:cfg.MaxFindingsTotal]
	}
	return out
}

// Filter returns the findings whose severity ranks at or above threshold.
// It has no side effects and is idempotent.
func Filter(findings []review.Finding, threshold review.Severity) []review.Finding {
	out := make([]review.Finding, 0, len(findings))
	min := threshold.Rank()
	for _, f := range findings {
		if f.Severity.Rank() >= min {
			out = append(out, f)
		}
	}
	return out
}

// CountBySeverity tallies findings per severity.
func CountBySeverity(findings []review.Finding) map[review.Severity]int {
	counts := make(map[review.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

// withDetectors returns a copy of f owning its provenance slice.
func withDetectors(f review.Finding, detectors []string) review.Finding {
	if detectors == nil {
		detectors = mergeDetectors(nil, f)
	}
	f.Detectors = detectors
	return f
}

// mergeDetectors appends the detectors of f not already present in existing.
func mergeDetectors(existing []string, f review.Finding) []string {
	out := append([]string(nil), existing...)
	seen := make(map[string]bool, len(out))
	for _, d := range out {
		seen[d] = true
	}

	add := f.Detectors
	if len(add) == 0 && f.DetectorKind != "" {
		add = []string{f.DetectorKind}
	}
	for _, d := range add {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
