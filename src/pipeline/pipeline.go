// Package pipeline runs a review through its stages on a state machine,
// checkpointing the record between stages so an interrupted run can resume.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sift-agent/src/contracts"
	"sift-agent/src/detect"
	"sift-agent/src/logger"
	"sift-agent/src/provider"
	"sift-agent/src/review"
	"sift-agent/src/store"
	"sift-agent/src/validate"
)

// ErrReviewFailed is wrapped by Run when a stage failed.
var ErrReviewFailed = errors.New("review failed")

// ConfigResolver returns the configuration for a repository.
type ConfigResolver interface {
	Resolve(ctx context.Context, owner, repo string) (review.Configuration, error)
}

// StaticConfig resolves every repository to the same configuration.
type StaticConfig review.Configuration

func (s StaticConfig) Resolve(ctx context.Context, owner, repo string) (review.Configuration, error) {
	return review.Configuration(s), nil
}

// Options configures a Pipeline. Zero values fall back to defaults.
type Options struct {
	// Registry supplies detectors; defaults to the built-in set without inference.
	Registry   *detect.Registry
	Dispatcher *detect.Dispatcher
	// Validator defaults to accepting every finding.
	Validator *validate.Validator
	// Providers fetch diffs and post reviews. When nil, requests must carry
	// an inline diff and results are returned without being posted.
	Providers *provider.Registry
	// Configs defaults to review.DefaultConfiguration for every repository.
	Configs ConfigResolver
	// Checkpoints is optional; without it runs cannot resume.
	Checkpoints store.Store
	Observers   []Observer
	// JobTimeout bounds a whole run; exceeding it stops the run without publishing.
	JobTimeout time.Duration
	Logger     logger.Logger
}

// Pipeline executes reviews. It is safe for concurrent use; each run owns its record.
type Pipeline struct {
	registry    *detect.Registry
	dispatcher  *detect.Dispatcher
	validator   *validate.Validator
	providers   *provider.Registry
	configs     ConfigResolver
	checkpoints store.Store
	observers   []Observer
	jobTimeout  time.Duration
	logger      logger.Logger
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	log := logger.OrSilent(opts.Logger)
	p := &Pipeline{
		registry:    opts.Registry,
		dispatcher:  opts.Dispatcher,
		validator:   opts.Validator,
		providers:   opts.Providers,
		configs:     opts.Configs,
		checkpoints: opts.Checkpoints,
		observers:   opts.Observers,
		jobTimeout:  opts.JobTimeout,
		logger:      log,
	}
	if p.registry == nil {
		p.registry = detect.NewBuiltinRegistry(detect.Env{Logger: log})
	}
	if p.dispatcher == nil {
		p.dispatcher = detect.NewDispatcher(0, log)
	}
	if p.validator == nil {
		p.validator = validate.NewValidator(nil, 0, log)
	}
	if p.configs == nil {
		p.configs = StaticConfig(review.DefaultConfiguration())
	}
	return p
}

// ReviewID derives a stable identifier from the request's idempotency key,
// so every redelivery of a change revision maps to the same checkpoint.
func ReviewID(req contracts.ReviewRequest) string {
	key := req.IdempotencyKey
	if key == "" {
		key = req.DeriveIdempotencyKey()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// Run reviews req. A completed checkpoint for the same revision is returned
// as-is without publishing again; an unfinished one is resumed.
// The returned error wraps ErrReviewFailed when the run failed.
func (p *Pipeline) Run(ctx context.Context, req contracts.ReviewRequest) (*ReviewRecord, error) {
	id := ReviewID(req)

	rec, err := p.load(ctx, id)
	if err != nil {
		p.logger.Warn("[Pipeline] Failed to load checkpoint for %s, starting fresh: %v", req.Ref(), err)
		rec = nil
	}

	switch {
	case rec == nil:
		rec = NewRecord(id, req)
		p.logger.Info("[Pipeline] Starting review %s (%s)", req.Ref(), id)
	case rec.Metadata.CurrentStage == StageDone,
		rec.Metadata.CurrentStage == StageHalted && rec.Outcome == OutcomeStopped:
		p.logger.Info("[Pipeline] Review %s already finished (%s), skipping", req.Ref(), rec.Outcome)
		return rec, nil
	case rec.Metadata.CurrentStage == StageHalted:
		rec.retry()
		p.logger.Info("[Pipeline] Retrying review %s from %s", req.Ref(), rec.Metadata.CurrentStage)
	default:
		p.logger.Info("[Pipeline] Resuming review %s from %s", req.Ref(), rec.Metadata.CurrentStage)
	}

	return p.Resume(ctx, rec)
}

// Resume drives rec from its current stage to a terminal stage.
func (p *Pipeline) Resume(ctx context.Context, rec *ReviewRecord) (*ReviewRecord, error) {
	jobCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
	}
	defer cancel()

	stage := rec.Metadata.CurrentStage
	if stage == "" {
		stage = StageIngest
	}
	if rec.Metadata.DetectorStats == nil {
		rec.Metadata.DetectorStats = make(map[string]detect.Stat)
	}

	m, err := newMachine(rec.Metadata.ReviewID, stage)
	if err != nil {
		return rec, err
	}

	r := &run{parent: ctx, job: jobCtx, rec: rec}
	for !stage.Terminal() {
		rec.Metadata.CurrentStage = stage
		r.interrupted(stage)

		if !rec.Halted() {
			p.checkpoint(ctx, rec)
			p.emit(ctx, rec, Event{Type: EventStageStarted, Stage: stage})
			start := time.Now()
			p.runStage(r, stage)
			p.emit(ctx, rec, Event{Type: EventStageCompleted, Stage: stage, Duration: time.Since(start), Error: rec.Error})
		}

		next, err := m.Send(nextEvent(stage, rec))
		if err != nil {
			rec.fail(stage, err)
			if next, err = m.Send(eventHalt); err != nil {
				next = StageHalted
			}
		}
		stage = next
	}

	return p.finish(ctx, rec, stage)
}

func (p *Pipeline) finish(ctx context.Context, rec *ReviewRecord, stage Stage) (*ReviewRecord, error) {
	now := time.Now().UTC()
	rec.Metadata.CurrentStage = stage
	rec.Metadata.CompletedAt = &now

	if stage == StageHalted {
		if rec.Error != "" {
			rec.Outcome = OutcomeFailed
		} else {
			rec.Outcome = OutcomeStopped
		}
	}

	p.checkpoint(ctx, rec)
	p.emit(ctx, rec, Event{
		Type:     EventReviewFinished,
		Stage:    stage,
		Outcome:  rec.Outcome,
		Duration: now.Sub(rec.Metadata.StartedAt),
		Error:    rec.Error,
	})

	switch rec.Outcome {
	case OutcomeFailed:
		p.logger.Error("[Pipeline] Review %s failed in %s: %s", rec.Request.Ref(), rec.Metadata.FailedStage, rec.Error)
		return rec, fmt.Errorf("%w: %s", ErrReviewFailed, rec.Error)
	case OutcomeStopped:
		p.logger.Warn("[Pipeline] Review %s stopped: %s", rec.Request.Ref(), rec.StopReason)
	default:
		p.logger.Info("[Pipeline] Review %s %s with %d comment(s)", rec.Request.Ref(), rec.Outcome, len(rec.Comments))
	}
	return rec, nil
}

func (p *Pipeline) emit(ctx context.Context, rec *ReviewRecord, ev Event) {
	if len(p.observers) == 0 {
		return
	}
	ev.ReviewID = rec.Metadata.ReviewID
	ev.Ref = rec.Request.Ref()
	ev.Findings = len(rec.Findings)
	notify(ctx, p.observers, p.logger, ev)
}

func (p *Pipeline) checkpoint(ctx context.Context, rec *ReviewRecord) {
	if p.checkpoints == nil {
		return
	}
	data, err := rec.marshal()
	if err != nil {
		p.logger.Warn("[Pipeline] %v", err)
		return
	}
	snap := store.Snapshot{
		RecordID:  rec.Metadata.ReviewID,
		Stage:     string(rec.Metadata.CurrentStage),
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	// Interrupted runs still record where they stopped.
	if err := p.checkpoints.Put(context.WithoutCancel(ctx), snap.RecordID, snap); err != nil {
		p.logger.Warn("[Pipeline] Failed to checkpoint %s at %s: %v", rec.Request.Ref(), snap.Stage, err)
	}
}

func (p *Pipeline) load(ctx context.Context, id string) (*ReviewRecord, error) {
	if p.checkpoints == nil {
		return nil, nil
	}
	snap, err := p.checkpoints.Get(ctx, id)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	rec, err := unmarshalRecord(snap.Data)
	if err != nil {
		return nil, err
	}
	rec.Metadata.CurrentStage = Stage(snap.Stage)
	return rec, nil
}

// retry clears a failed run so it resumes from the stage that failed.
func (r *ReviewRecord) retry() {
	stage := r.Metadata.FailedStage
	if stage == "" {
		stage = StageIngest
	}
	r.Error = ""
	r.Outcome = ""
	r.Metadata.FailedStage = ""
	r.Metadata.CompletedAt = nil
	r.Metadata.CurrentStage = stage
}
