package detect

import (
	"regexp"

	"sift-agent/src/inference"
	"sift-agent/src/logger"
	"sift-agent/src/review"
)

var (
	codeLanguages = []string{
		"go", "python", "javascript", "typescript", "ruby", "java", "kotlin", "rust",
		"c", "cpp", "csharp", "php", "swift", "scala", "shell",
	}

	// Security also looks at config-ish files where secrets tend to land.
	securityLanguages = append(append([]string{}, codeLanguages...),
		"yaml", "json", "sql", "terraform", review.UnknownLanguage)

	jsLike = []string{"javascript", "typescript"}
	cLike  = []string{"javascript", "typescript", "java", "c", "cpp", "csharp", "kotlin", "php", "swift", "scala"}
)

func securityRules() []Rule {
	return []Rule{
		{
			Name:       "hardcoded-credential",
			Pattern:    regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|api[_-]?key|access[_-]?key|auth[_-]?token|token)\w*["']?\s*[:=]\s*["'][^"']+["']`),
			Message:    "Possible hardcoded credential: move the value to configuration or a secret store",
			Severity:   review.SeverityError,
			Category:   "hardcoded-credential",
			Confidence: 0.85,
		},
		{
			Name:       "private-key",
			Pattern:    regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
			Message:    "Private key material committed to the repository (credential leak)",
			Severity:   review.SeverityError,
			Category:   "hardcoded-credential",
			Confidence: 0.95,
		},
		{
			Name:       "eval",
			Pattern:    regexp.MustCompile(`\beval\s*\(`),
			Message:    "Use of eval() can execute arbitrary code; parse the input explicitly instead",
			Severity:   review.SeverityError,
			Category:   "code-injection",
			Languages:  []string{"python", "javascript", "typescript", "ruby", "php"},
			Confidence: 0.85,
		},
		{
			Name:       "python-exec",
			Pattern:    regexp.MustCompile(`(^|[^.\w])exec\s*\(`),
			Message:    "Use of exec() can execute arbitrary code",
			Severity:   review.SeverityError,
			Category:   "code-injection",
			Languages:  []string{"python"},
			Confidence: 0.8,
		},
		{
			Name:       "shell-injection",
			Pattern:    regexp.MustCompile(`(subprocess\.\w+\(.*shell\s*=\s*True|os\.system\(|exec\.Command\(\s*"(sh|bash)",\s*"-c"|child_process\.exec\()`),
			Message:    "Command is run through a shell; untrusted input here allows command injection",
			Severity:   review.SeverityWarning,
			Category:   "command-injection",
			Confidence: 0.75,
		},
		{
			Name:       "sql-concatenation",
			Pattern:    regexp.MustCompile(`(?i)(execute|query|exec|raw)\w*\s*\(\s*(f["']|["'].*\b(select|insert|update|delete)\b.*["']\s*(\+|%|\.format))`),
			Message:    "SQL built from string formatting; use parameterized queries to avoid SQL injection",
			Severity:   review.SeverityError,
			Category:   "sql-injection",
			Confidence: 0.75,
		},
		{
			Name:       "insecure-tls",
			Pattern:    regexp.MustCompile(`(InsecureSkipVerify:\s*true|verify\s*=\s*False|rejectUnauthorized:\s*false)`),
			Message:    "TLS certificate verification is disabled",
			Severity:   review.SeverityError,
			Category:   "insecure-transport",
			Confidence: 0.9,
		},
		{
			Name:       "weak-hash",
			Pattern:    regexp.MustCompile(`(hashlib\.(md5|sha1)\(|\bmd5\.New\(|\bsha1\.New\(|createHash\(\s*["'](md5|sha1)["'])`),
			Message:    "Weak hash function ({match}); use SHA-256 or a password hashing function",
			Severity:   review.SeverityWarning,
			Category:   "weak-crypto",
			Confidence: 0.7,
		},
		{
			Name:       "unsafe-deserialization",
			Pattern:    regexp.MustCompile(`(pickle\.loads?\(|yaml\.load\([^,)]*\)|marshal\.loads\()`),
			Message:    "Deserializing untrusted data can execute code",
			Severity:   review.SeverityWarning,
			Category:   "unsafe-deserialization",
			Languages:  []string{"python"},
			Confidence: 0.7,
		},
	}
}

func logicRules() []Rule {
	return []Rule{
		{
			Name:       "python-infinite-loop",
			Pattern:    regexp.MustCompile(`^\s*while\s+(True|1)\s*:`),
			Message:    "Potential infinite loop: make sure the loop has a reachable break or return",
			Severity:   review.SeverityWarning,
			Category:   "infinite-loop",
			Languages:  []string{"python"},
			Confidence: 0.6,
		},
		{
			Name:       "c-infinite-loop",
			Pattern:    regexp.MustCompile(`(while\s*\(\s*(true|1)\s*\)|for\s*\(\s*;\s*;\s*\))`),
			Message:    "Potential infinite loop: make sure the loop has a reachable break or return",
			Severity:   review.SeverityWarning,
			Category:   "infinite-loop",
			Languages:  cLike,
			Confidence: 0.6,
		},
		{
			Name:       "go-infinite-loop",
			Pattern:    regexp.MustCompile(`^\s*for\s*\{\s*$`),
			Message:    "Potential infinite loop: make sure the loop has a reachable break, return or context check",
			Severity:   review.SeveritySuggestion,
			Category:   "infinite-loop",
			Languages:  []string{"go"},
			Confidence: 0.5,
		},
		{
			Name:       "bare-except",
			Pattern:    regexp.MustCompile(`^\s*except\s*:`),
			Message:    "Bare except catches every exception, including KeyboardInterrupt and SystemExit",
			Severity:   review.SeverityWarning,
			Category:   "error-handling",
			Languages:  []string{"python"},
			Confidence: 0.8,
		},
		{
			Name:       "empty-catch",
			Pattern:    regexp.MustCompile(`catch\s*(\([^)]*\))?\s*\{\s*\}`),
			Message:    "Empty catch block silently swallows errors",
			Severity:   review.SeverityWarning,
			Category:   "error-handling",
			Languages:  cLike,
			Confidence: 0.8,
		},
		{
			Name:       "discarded-error",
			Pattern:    regexp.MustCompile(`^\s*_\s*(,\s*_\s*)?=\s*[\w.]+\(`),
			Message:    "Return value (likely an error) is discarded",
			Severity:   review.SeveritySuggestion,
			Category:   "error-handling",
			Languages:  []string{"go"},
			Confidence: 0.5,
		},
		{
			Name:       "identity-literal",
			Pattern:    regexp.MustCompile(`\bis\s+(not\s+)?(\d+|["'])`),
			Message:    "Identity comparison with a literal; use == instead of is",
			Severity:   review.SeverityWarning,
			Category:   "comparison",
			Languages:  []string{"python"},
			Confidence: 0.8,
		},
		{
			Name:       "mutable-default",
			Pattern:    regexp.MustCompile(`def\s+\w+\(.*=\s*(\[\]|\{\}|set\(\))`),
			Message:    "Mutable default argument is shared between calls",
			Severity:   review.SeverityWarning,
			Category:   "mutable-default",
			Languages:  []string{"python"},
			Confidence: 0.85,
		},
	}
}

func styleRules() []Rule {
	return []Rule{
		{
			Name:       "trailing-whitespace",
			Pattern:    regexp.MustCompile(`\S[ \t]+$`),
			Message:    "Trailing whitespace",
			Severity:   review.SeverityNote,
			Category:   "whitespace",
			Confidence: 0.95,
		},
		{
			Name:       "long-line",
			Pattern:    regexp.MustCompile(`^.{121,}$`),
			Message:    "Line exceeds 120 characters",
			Severity:   review.SeverityNote,
			Category:   "line-length",
			Confidence: 0.95,
		},
		{
			Name:       "mixed-indentation",
			Pattern:    regexp.MustCompile(`^(\t+ +| +\t+)\S`),
			Message:    "Mixed tabs and spaces in indentation",
			Severity:   review.SeveritySuggestion,
			Category:   "indentation",
			Confidence: 0.9,
		},
		{
			Name:       "python-camel-case",
			Pattern:    regexp.MustCompile(`def\s+[a-z]+[A-Z]\w*\s*\(`),
			Message:    "Function names should be snake_case",
			Severity:   review.SeveritySuggestion,
			Category:   "naming",
			Languages:  []string{"python"},
			Confidence: 0.7,
		},
		{
			Name:       "js-var",
			Pattern:    regexp.MustCompile(`^\s*var\s+\w+`),
			Message:    "Prefer let or const over var",
			Severity:   review.SeveritySuggestion,
			Category:   "declaration",
			Languages:  jsLike,
			Confidence: 0.8,
		},
		{
			Name:       "loose-equality",
			Pattern:    regexp.MustCompile(`[^=!<>]==[^=]|!=[^=]`),
			Message:    "Use strict equality (=== / !==)",
			Severity:   review.SeveritySuggestion,
			Category:   "equality",
			Languages:  jsLike,
			Confidence: 0.6,
		},
	}
}

func patternRules() []Rule {
	return []Rule{
		{
			Name:       "todo-marker",
			Pattern:    regexp.MustCompile(`\b(TODO|FIXME|XXX|HACK)\b`),
			Message:    "Unresolved {match} marker",
			Severity:   review.SeverityNote,
			Category:   "todo",
			Confidence: 0.9,
		},
		{
			Name:       "debug-print",
			Pattern:    regexp.MustCompile(`(^\s*print\(|console\.(log|debug)\(|\bfmt\.Print(ln|f)?\(|System\.out\.print)`),
			Message:    "Debug output left in code: {match}",
			Severity:   review.SeveritySuggestion,
			Category:   "debug-output",
			Confidence: 0.6,
		},
		{
			Name:       "debugger",
			Pattern:    regexp.MustCompile(`(^\s*debugger;?\s*$|pdb\.set_trace\(\)|^\s*breakpoint\(\))`),
			Message:    "Debugger statement left in code",
			Severity:   review.SeverityWarning,
			Category:   "debugger",
			Confidence: 0.9,
		},
		{
			Name:       "hardcoded-sleep",
			Pattern:    regexp.MustCompile(`(time\.sleep\(|time\.Sleep\(|Thread\.sleep\()`),
			Message:    "Hard-coded sleep; prefer an explicit wait condition or backoff",
			Severity:   review.SeverityNote,
			Category:   "sleep",
			Confidence: 0.5,
		},
		{
			Name:       "panic",
			Pattern:    regexp.MustCompile(`^\s*panic\(`),
			Message:    "panic in library code; return an error instead",
			Severity:   review.SeveritySuggestion,
			Category:   "panic",
			Languages:  []string{"go"},
			Confidence: 0.5,
		},
	}
}

const (
	securityInstruction = "You are a security reviewer. Look for injection, authentication and authorization flaws, unsafe deserialization, secrets, and insecure use of cryptography or transport in the changed lines."
	logicInstruction    = "You are a correctness reviewer. Look for logic errors: off-by-one mistakes, unreachable or infinite loops, unhandled errors, nil or null dereferences, and race conditions in the changed lines."
	styleInstruction    = "You are a style reviewer. Report only readability and convention problems that a maintainer would ask to change. Do not report formatting a formatter would fix."
	patternInstruction  = "You are reviewing for anti-patterns: leftover debugging code, copy-paste duplication, dead code, and misuse of common library APIs in the changed lines."
)

// Env carries the shared collaborators handed to detector factories.
type Env struct {
	Generator inference.Generator
	Logger    logger.Logger
}

// NewSecurityDetector matches credentials, code injection, and unsafe crypto.
func NewSecurityDetector(env Env, extra ...Rule) *RuleDetector {
	return NewRuleDetector(RuleDetectorConfig{
		Kind:        review.KindSecurity,
		Languages:   securityLanguages,
		Rules:       append(securityRules(), extra...),
		Instruction: securityInstruction,
		Generator:   env.Generator,
		Logger:      env.Logger,
	})
}

// NewLogicDetector matches control-flow and error-handling mistakes.
func NewLogicDetector(env Env, extra ...Rule) *RuleDetector {
	return NewRuleDetector(RuleDetectorConfig{
		Kind:        review.KindLogic,
		Languages:   codeLanguages,
		Rules:       append(logicRules(), extra...),
		Instruction: logicInstruction,
		Generator:   env.Generator,
		Logger:      env.Logger,
	})
}

// NewStyleDetector matches formatting and naming conventions.
func NewStyleDetector(env Env, extra ...Rule) *RuleDetector {
	return NewRuleDetector(RuleDetectorConfig{
		Kind:        review.KindStyle,
		Languages:   codeLanguages,
		Rules:       append(styleRules(), extra...),
		Instruction: styleInstruction,
		Generator:   env.Generator,
		Logger:      env.Logger,
	})
}

// NewPatternDetector matches leftover debugging code and common anti-patterns.
func NewPatternDetector(env Env, extra ...Rule) *RuleDetector {
	return NewRuleDetector(RuleDetectorConfig{
		Kind:        review.KindPattern,
		Languages:   append(append([]string{}, codeLanguages...), review.UnknownLanguage),
		Rules:       append(patternRules(), extra...),
		Instruction: patternInstruction,
		Generator:   env.Generator,
		Logger:      env.Logger,
	})
}
