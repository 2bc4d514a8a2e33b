// Package sanitize cleans diff text before it leaves the process in an inference prompt.
// It removes terminal escape codes and masks anything that looks like a credential.
package sanitize

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var (
	// ANSI escape codes: \x1b[...m (SGR sequences)
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

	// Secret heuristics, most specific first.
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
		regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
		regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
		regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
		regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	}

	// Assignments keep the variable name so reviewers still see what was set.
	assignmentPattern = regexp.MustCompile(`(?i)((?:api[_-]?key|secret|token|password|passwd|credential)\w*\s*[:=]\s*)(["'])([^"']{6,})(["'])`)
)

// StripANSI removes ANSI escape codes.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Clean strips escape codes and normalises line endings.
func Clean(s string) string {
	s = StripANSI(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimRight(s, "\n")
}

// RedactSecrets masks credentials and tokens in text.
func RedactSecrets(s string) string {
	s = assignmentPattern.ReplaceAllString(s, "${1}${2}"+redacted+"${4}")
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

// ForPrompt applies every cleanup needed before text is sent to an inference service.
func ForPrompt(s string) string {
	return RedactSecrets(Clean(s))
}
