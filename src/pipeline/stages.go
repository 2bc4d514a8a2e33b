package pipeline

import (
	"context"
	"fmt"
	"strings"

	"sift-agent/src/detect"
	"sift-agent/src/ingest"
	"sift-agent/src/ranking"
	"sift-agent/src/review"
)

// run carries the contexts of one execution. parent is the caller's context;
// job additionally carries the per-job deadline.
type run struct {
	parent context.Context
	job    context.Context
	rec    *ReviewRecord
}

// interrupted converts an expired job deadline into a stop request and a
// cancelled parent into a failure, so shutdowns are retried and timeouts are not.
func (r *run) interrupted(stage Stage) {
	if r.rec.Halted() || r.job.Err() == nil {
		return
	}
	if err := r.parent.Err(); err != nil {
		r.rec.fail(stage, fmt.Errorf("review interrupted: %w", err))
		return
	}
	r.rec.Stop("job timeout exceeded")
}

// stageError records err unless it was caused by the job deadline.
func (r *run) stageError(stage Stage, err error) {
	if r.job.Err() != nil && r.parent.Err() == nil {
		r.rec.Stop("job timeout exceeded")
		return
	}
	r.rec.fail(stage, err)
}

func (p *Pipeline) runStage(r *run, stage Stage) {
	switch stage {
	case StageIngest:
		p.ingest(r)
	case StageChunk:
		p.chunk(r)
	case StageDetect:
		p.detect(r)
	case StageAggregate:
		r.rec.Findings = ranking.Aggregate(r.rec.Findings, r.rec.Config)
	case StageFilter:
		r.rec.Findings = ranking.Filter(r.rec.Findings, r.rec.Config.SeverityThreshold)
	case StageValidate:
		p.validate(r)
	case StagePublish:
		p.publish(r)
	}
}

func (p *Pipeline) ingest(r *run) {
	rec := r.rec
	req := rec.Request

	if !rec.ConfigResolved {
		cfg, err := p.configs.Resolve(r.job, req.Owner, req.Repo)
		if err != nil {
			r.stageError(StageIngest, fmt.Errorf("failed to resolve configuration for %s/%s: %w", req.Owner, req.Repo, err))
			return
		}
		rec.Config = cfg
		rec.ConfigResolved = true
	}

	if rec.Diff != "" {
		return
	}
	if req.Diff != "" {
		rec.Diff = req.Diff
		return
	}
	if p.providers == nil {
		// Local runs with nothing to fetch review an empty change.
		return
	}
	adapter, err := p.providers.Get(req.Provider)
	if err != nil {
		rec.fail(StageIngest, err)
		return
	}
	diff, err := adapter.FetchDiff(r.job, req)
	if err != nil {
		r.stageError(StageIngest, fmt.Errorf("failed to fetch diff for %s: %w", req.Ref(), err))
		return
	}
	rec.Diff = diff
}

func (p *Pipeline) chunk(r *run) {
	rec := r.rec
	rec.Chunks = ingest.NewChunker(rec.Config.MaxChunkLines, p.logger).Chunk(rec.Diff)
	rec.ChunkIndex = 0
	rec.Findings = nil
	p.logger.Debug("[Pipeline] %s: %d chunk(s)", rec.Request.Ref(), len(rec.Chunks))
}

// detect dispatches chunks one at a time, checkpointing after each so a
// resumed run continues from the next unprocessed chunk.
func (p *Pipeline) detect(r *run) {
	rec := r.rec
	detectors := p.registry.CreateEnabled(rec.Config)
	ac := detect.AnalysisContext{
		Config:  rec.Config,
		RepoRef: rec.Request.Ref(),
		Title:   rec.Request.Title,
	}

	for rec.ChunkIndex < len(rec.Chunks) {
		r.interrupted(StageDetect)
		if rec.Halted() {
			return
		}

		chunk := rec.Chunks[rec.ChunkIndex]
		res := p.dispatcher.Dispatch(r.job, chunk, detectors, ac)
		if r.job.Err() != nil {
			// Partial results are dropped and the cursor stays so a retry
			// analyzes this chunk again.
			r.interrupted(StageDetect)
			return
		}
		rec.Findings = append(rec.Findings, res.Findings...)
		rec.addStats(res.Stats)
		rec.Metadata.ErrorCount += len(res.Errors)
		for _, err := range res.Errors {
			p.logger.Debug("[Pipeline] %s: %s: %v", rec.Request.Ref(), chunk.FilePath, err)
		}
		rec.ChunkIndex++

		p.emit(r.parent, rec, Event{Type: EventChunkAnalyzed, Stage: StageDetect})
		p.checkpoint(r.parent, rec)
	}
}

func (p *Pipeline) validate(r *run) {
	rec := r.rec
	res := p.validator.Validate(r.job, rec.Findings, rec.Config.SkipAbove())
	rec.Validated = res.Validated
	rec.Rejected = res.Rejected
	rec.Metadata.ErrorCount += res.Errors
}

func (p *Pipeline) publish(r *run) {
	rec := r.rec

	comments := make([]review.Comment, 0, len(rec.Validated))
	for _, f := range rec.Validated {
		comments = append(comments, review.CommentFromFinding(f))
	}
	rec.Comments = comments
	rec.Passed = passed(comments)
	rec.Summary = summarize(rec)

	if p.providers == nil {
		p.logger.Debug("[Pipeline] No providers configured; %s not posted", rec.Request.Ref())
	} else {
		adapter, err := p.providers.Get(rec.Request.Provider)
		if err != nil {
			rec.fail(StagePublish, err)
			return
		}
		if err := adapter.PostReview(r.job, rec.Request, comments, rec.Summary); err != nil {
			r.stageError(StagePublish, fmt.Errorf("failed to post review for %s: %w", rec.Request.Ref(), err))
			return
		}
	}

	if len(comments) == 0 {
		rec.Outcome = OutcomeEmpty
	} else {
		rec.Outcome = OutcomePublished
	}
}

// passed is true when no comment carries error severity.
func passed(comments []review.Comment) bool {
	for _, c := range comments {
		if c.Severity == review.SeverityError {
			return false
		}
	}
	return true
}

var summaryOrder = []review.Severity{
	review.SeverityError,
	review.SeverityWarning,
	review.SeveritySuggestion,
	review.SeverityNote,
}

func summarize(rec *ReviewRecord) string {
	if len(rec.Comments) == 0 {
		if len(rec.Chunks) == 0 {
			return "Sift found no reviewable changes."
		}
		return fmt.Sprintf("Sift reviewed %s and found no issues.", plural(len(rec.Chunks), "chunk"))
	}

	counts := ranking.CountBySeverity(rec.Validated)
	var parts []string
	for _, sev := range summaryOrder {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}

	files := make(map[string]struct{})
	for _, c := range rec.Comments {
		files[c.Path] = struct{}{}
	}

	status := "passed"
	if !rec.Passed {
		status = "changes requested"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sift found %s (%s) across %s. Status: %s.",
		plural(len(rec.Comments), "issue"), strings.Join(parts, ", "), plural(len(files), "file"), status)
	if n := len(rec.Rejected); n > 0 {
		fmt.Fprintf(&b, " %s discarded during validation.", plural(n, "finding"))
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
