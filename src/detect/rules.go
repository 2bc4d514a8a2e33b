package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sift-agent/src/inference"
	"sift-agent/src/logger"
	"sift-agent/src/review"
)

// MaxMatchesPerRule caps how many occurrences of one rule are reported per chunk.
const MaxMatchesPerRule = 3

const defaultRuleConfidence = 0.8

// Rule is a named line-level pattern.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Message  string
	Severity review.Severity
	Category string
	// Languages limits the rule to these language tags. Empty means every language.
	Languages  []string
	Confidence float64
	Fix        string
}

func (r Rule) appliesTo(language string) bool {
	if len(r.Languages) == 0 {
		return true
	}
	for _, l := range r.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// message renders the template. "{match}" is replaced with the matched text.
func (r Rule) message(match string) string {
	return strings.ReplaceAll(r.Message, "{match}", strings.TrimSpace(match))
}

// RuleDetector runs an ordered rule list over a chunk's added lines and, for
// large chunks, asks the inference capability for additional findings.
type RuleDetector struct {
	kind        string
	languages   map[string]bool
	rules       []Rule
	instruction string
	generator   inference.Generator
	logger      logger.Logger
	maxPerRule  int
}

// RuleDetectorConfig configures a RuleDetector.
type RuleDetectorConfig struct {
	Kind      string
	Languages []string
	Rules     []Rule
	// Instruction is the detector-specific system prompt for inference.
	Instruction string
	Generator   inference.Generator
	Logger      logger.Logger
}

// NewRuleDetector builds a detector from cfg.
func NewRuleDetector(cfg RuleDetectorConfig) *RuleDetector {
	langs := make(map[string]bool, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs[l] = true
	}
	return &RuleDetector{
		kind:        cfg.Kind,
		languages:   langs,
		rules:       cfg.Rules,
		instruction: cfg.Instruction,
		generator:   cfg.Generator,
		logger:      logger.OrSilent(cfg.Logger),
		maxPerRule:  MaxMatchesPerRule,
	}
}

// Kind implements Detector.
func (d *RuleDetector) Kind() string { return d.kind }

// Rules returns the detector's rules in evaluation order.
func (d *RuleDetector) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	copy(out, d.rules)
	return out
}

// ShouldAnalyze implements Detector.
func (d *RuleDetector) ShouldAnalyze(chunk review.Chunk) bool {
	return d.languages[chunk.Language]
}

// Analyze implements Detector.
func (d *RuleDetector) Analyze(ctx context.Context, chunk review.Chunk, ac AnalysisContext) ([]review.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	findings := d.match(chunk)

	minLines := ac.Config.InferenceMinLines
	if d.generator != nil && minLines > 0 && len(chunkLines(chunk)) >= minLines {
		extra, err := d.infer(ctx, chunk, ac)
		if err != nil {
			d.logger.Warn("[Detector:%s] Inference failed for %s:%d-%d, keeping %d pattern findings: %v",
				d.kind, chunk.FilePath, chunk.StartLine, chunk.EndLine, len(findings), err)
		} else {
			findings = append(findings, extra...)
		}
	}

	return findings, nil
}

// match applies every rule to the chunk's added lines.
func (d *RuleDetector) match(chunk review.Chunk) []review.Finding {
	lines := chunkLines(chunk)

	var findings []review.Finding
	for _, rule := range d.rules {
		if !rule.appliesTo(chunk.Language) {
			continue
		}

		count := 0
		for i, line := range lines {
			if line.Op != review.OpAdd {
				continue
			}
			loc := rule.Pattern.FindStringIndex(line.Text)
			if loc == nil {
				continue
			}
			m := line.Text[loc[0]:loc[1]]

			confidence := rule.Confidence
			if confidence == 0 {
				confidence = defaultRuleConfidence
			}

			findings = append(findings, review.Finding{
				FilePath:     chunk.FilePath,
				LineNumber:   absoluteLine(chunk, lines, i+1),
				Message:      rule.message(m),
				Severity:     rule.Severity,
				SuggestedFix: rule.Fix,
				DetectorKind: d.kind,
				Confidence:   review.ClampConfidence(confidence),
				Category:     rule.Category,
				Detectors:    []string{d.kind},
			})

			count++
			if count >= d.maxPerRule {
				break
			}
		}
	}
	return findings
}

// infer asks the generator for findings and anchors them to file lines.
func (d *RuleDetector) infer(ctx context.Context, chunk review.Chunk, ac AnalysisContext) ([]review.Finding, error) {
	lines := chunkLines(chunk)
	text, err := d.generator.Generate(ctx, buildPrompt(d.instruction, chunk, lines, ac), inference.Params{
		MaxTokens: 2048,
		Timeout:   60 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	raws, err := inference.ParseFindings(text)
	if err != nil {
		return nil, err
	}

	var findings []review.Finding
	for _, raw := range raws {
		if raw.Line < 1 || raw.Line > len(lines) {
			d.logger.Debug("[Detector:%s] Dropping inferred finding outside chunk (line %d of %d)", d.kind, raw.Line, len(lines))
			continue
		}

		severity, err := review.ParseSeverity(raw.Severity)
		if err != nil {
			severity = review.SeverityWarning
		}
		category := strings.TrimSpace(raw.Category)
		if category == "" {
			category = d.kind
		}
		confidence := raw.Confidence
		if confidence == 0 {
			confidence = 0.6
		}

		findings = append(findings, review.Finding{
			FilePath:     chunk.FilePath,
			LineNumber:   absoluteLine(chunk, lines, raw.Line),
			Message:      raw.Message,
			Severity:     severity,
			SuggestedFix: raw.Suggestion,
			DetectorKind: d.kind,
			Confidence:   review.ClampConfidence(confidence),
			Category:     category,
			Detectors:    []string{d.kind},
		})
	}
	return findings, nil
}

// chunkLines returns the chunk's lines. Chunks built by hand with only
// Content are treated as entirely added, starting at StartLine.
func chunkLines(chunk review.Chunk) []review.Line {
	if len(chunk.Lines) > 0 {
		return chunk.Lines
	}
	if chunk.Content == "" {
		return nil
	}

	start := chunk.StartLine
	if start < 1 {
		start = 1
	}
	texts := strings.Split(chunk.Content, "\n")
	lines := make([]review.Line, len(texts))
	for i, t := range texts {
		lines[i] = review.Line{Number: start + i, Op: review.OpAdd, Text: t}
	}
	return lines
}

// absoluteLine maps a 1-based chunk-relative line to a file line.
func absoluteLine(chunk review.Chunk, lines []review.Line, relative int) int {
	if relative >= 1 && relative <= len(lines) {
		return lines[relative-1].Number
	}
	return chunk.AbsoluteLine(relative)
}

// CompileCustomRule turns a configured rule into a Rule.
func CompileCustomRule(cr review.CustomRule) (Rule, error) {
	re, err := regexp.Compile(cr.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to compile custom rule %q: %w", cr.Name, err)
	}

	severity := cr.Severity
	if !severity.Valid() {
		severity = review.SeverityWarning
	}
	category := cr.Category
	if category == "" {
		category = cr.Name
	}
	msg := cr.Message
	if msg == "" {
		msg = fmt.Sprintf("Matched custom rule %s: {match}", cr.Name)
	}

	return Rule{
		Name:      cr.Name,
		Pattern:   re,
		Message:   msg,
		Severity:  severity,
		Category:  category,
		Languages: cr.Languages,
	}, nil
}
