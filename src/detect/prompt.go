package detect

import (
	"fmt"
	"strings"

	"sift-agent/src/inference"
	"sift-agent/src/review"
	"sift-agent/src/sanitize"
)

const responseRules = `Respond with ONLY a JSON array. Each element must have:
  "line": 1-based line number within the numbered snippet,
  "severity": one of "note", "suggestion", "warning", "error",
  "category": short kebab-case label,
  "message": one sentence describing the problem,
  "suggestion": optional replacement code,
  "confidence": number between 0 and 1.
Only report problems on lines marked "+". Return [] when there is nothing worth reporting.`

func buildPrompt(instruction string, chunk review.Chunk, lines []review.Line, ac AnalysisContext) inference.Prompt {
	var b strings.Builder
	if ac.RepoRef != "" {
		fmt.Fprintf(&b, "Change: %s", ac.RepoRef)
		if ac.Title != "" {
			fmt.Fprintf(&b, " (%s)", sanitize.ForPrompt(ac.Title))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "File: %s (language: %s)\n\n", chunk.FilePath, chunk.Language)

	for i, l := range lines {
		marker := " "
		if l.Op == review.OpAdd {
			marker = "+"
		}
		fmt.Fprintf(&b, "%4d %s %s\n", i+1, marker, sanitize.ForPrompt(l.Text))
	}

	return inference.Prompt{
		System: instruction + "\n\n" + responseRules,
		User:   b.String(),
	}
}
