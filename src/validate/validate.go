// Package validate runs the secondary judging pass over surviving findings.
package validate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sift-agent/src/inference"
	"sift-agent/src/logger"
	"sift-agent/src/review"
	"sift-agent/src/sanitize"
)

// Judge decides whether a finding is a true positive worth surfacing.
type Judge interface {
	Judge(ctx context.Context, f review.Finding) (inference.Verdict, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, f review.Finding) (inference.Verdict, error)

// Judge calls fn.
func (fn JudgeFunc) Judge(ctx context.Context, f review.Finding) (inference.Verdict, error) {
	return fn(ctx, f)
}

// AcceptAll is a Judge that keeps every finding.
type AcceptAll struct{}

// Judge implements Judge.
func (AcceptAll) Judge(ctx context.Context, f review.Finding) (inference.Verdict, error) {
	return inference.Verdict{Valid: true}, nil
}

const judgeInstruction = `You verify automated code review findings. Given one finding and the code it
refers to, decide whether it is a real problem a maintainer would want flagged.
Respond with ONLY a JSON object: {"valid": true|false, "reason": "<short reason>"}.`

// InferenceJudge asks an inference Generator for a verdict.
type InferenceJudge struct {
	generator inference.Generator
	timeout   time.Duration
}

// NewInferenceJudge creates a judge backed by gen.
func NewInferenceJudge(gen inference.Generator) *InferenceJudge {
	return &InferenceJudge{generator: gen, timeout: 30 * time.Second}
}

// Judge implements Judge.
func (j *InferenceJudge) Judge(ctx context.Context, f review.Finding) (inference.Verdict, error) {
	user := fmt.Sprintf("File: %s\nLine: %d\nSeverity: %s\nCategory: %s\nReported by: %s\nFinding: %s\n",
		f.FilePath, f.LineNumber, f.Severity, f.Category, f.DetectorKind, sanitize.ForPrompt(f.Message))
	if f.SuggestedFix != "" {
		user += "Suggested fix:\n" + sanitize.ForPrompt(f.SuggestedFix) + "\n"
	}

	text, err := j.generator.Generate(ctx, inference.Prompt{System: judgeInstruction, User: user}, inference.Params{
		MaxTokens: 256,
		Timeout:   j.timeout,
	})
	if err != nil {
		return inference.Verdict{}, err
	}
	return inference.ParseVerdict(text)
}

// Rejection records why a finding was dropped.
type Rejection struct {
	Finding review.Finding `json:"finding"`
	Reason  string         `json:"reason"`
}

// Result holds the two disjoint outputs of a validation pass.
type Result struct {
	Validated []review.Finding
	Rejected  []Rejection
	// Errors counts judge failures; each failing finding was kept.
	Errors int
}

// Validator fans findings out to a Judge with bounded concurrency.
type Validator struct {
	judge       Judge
	concurrency int
	logger      logger.Logger
}

// NewValidator creates a validator. A nil judge accepts everything.
func NewValidator(judge Judge, concurrency int, log logger.Logger) *Validator {
	if judge == nil {
		judge = AcceptAll{}
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Validator{judge: judge, concurrency: concurrency, logger: logger.OrSilent(log)}
}

type verdict struct {
	keep   bool
	reason string
	failed bool
}

// Validate judges findings below skipAbove confidence; findings at or above
// it are accepted as-is. Judge failures keep the finding. Output order
// follows input order.
func (v *Validator) Validate(ctx context.Context, findings []review.Finding, skipAbove float64) Result {
	verdicts := make([]verdict, len(findings))
	sem := make(chan struct{}, v.concurrency)

	var wg sync.WaitGroup
	for i, f := range findings {
		if skipAbove > 0 && f.Confidence >= skipAbove {
			verdicts[i] = verdict{keep: true}
			continue
		}

		wg.Add(1)
		go func(i int, f review.Finding) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			verdicts[i] = v.judgeOne(ctx, f)
		}(i, f)
	}
	wg.Wait()

	res := Result{
		Validated: make([]review.Finding, 0, len(findings)),
		Rejected:  []Rejection{},
	}
	for i, vd := range verdicts {
		if vd.failed {
			res.Errors++
		}
		if vd.keep {
			res.Validated = append(res.Validated, findings[i])
		} else {
			res.Rejected = append(res.Rejected, Rejection{Finding: findings[i], Reason: vd.reason})
		}
	}
	return res
}

func (v *Validator) judgeOne(ctx context.Context, f review.Finding) (vd verdict) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("[Validator] Judge panicked on %s:%d, keeping finding: %v", f.FilePath, f.LineNumber, r)
			vd = verdict{keep: true, failed: true}
		}
	}()

	if err := ctx.Err(); err != nil {
		return verdict{keep: true, failed: true}
	}

	got, err := v.judge.Judge(ctx, f)
	if err != nil {
		v.logger.Warn("[Validator] Judge failed on %s:%d, keeping finding: %v", f.FilePath, f.LineNumber, err)
		return verdict{keep: true, failed: true}
	}
	return verdict{keep: got.Valid, reason: got.Reason}
}
