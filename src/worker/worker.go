// Package worker consumes review jobs from the broker and runs them through
// the pipeline with bounded concurrency, retries, and dead-lettering.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"sift-agent/src/broker"
	"sift-agent/src/contracts"
	"sift-agent/src/logger"
	"sift-agent/src/pipeline"
)

// Reviewer runs one review. *pipeline.Pipeline implements it.
type Reviewer interface {
	Run(ctx context.Context, req contracts.ReviewRequest) (*pipeline.ReviewRecord, error)
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, req contracts.ReviewRequest) (*pipeline.ReviewRecord, error)

func (fn ReviewerFunc) Run(ctx context.Context, req contracts.ReviewRequest) (*pipeline.ReviewRecord, error) {
	return fn(ctx, req)
}

// Config controls consumption. Zero values fall back to the defaults below.
type Config struct {
	Topic          string
	Group          string
	MaxConcurrency int
	MaxOutstanding int
	// MaxRetries is the delivery attempt at which a failing job is dead-lettered.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// WorkerID is recorded on dead letters; defaults to the hostname.
	WorkerID string
}

const (
	DefaultGroup          = "sift-workers"
	DefaultMaxConcurrency = 4
	DefaultMaxOutstanding = 16
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 2 * time.Second
	DefaultRetryMaxDelay  = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Topic == "" {
		c.Topic = contracts.TopicReviewRequests
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = DefaultMaxOutstanding
	}
	if c.MaxOutstanding < c.MaxConcurrency {
		c.MaxOutstanding = c.MaxConcurrency
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.WorkerID == "" {
		if host, err := os.Hostname(); err == nil {
			c.WorkerID = host
		} else {
			c.WorkerID = "sift-worker"
		}
	}
	return c
}

// Stats is a point-in-time snapshot of the worker counters.
type Stats struct {
	Processed    int64 `json:"processed"`
	Failed       int64 `json:"failed"`
	DeadLettered int64 `json:"dead_lettered"`
	Active       int64 `json:"active"`
}

// Worker pulls jobs and runs them. Start it once; Stop drains it.
type Worker struct {
	broker   broker.Broker
	reviewer Reviewer
	cfg      Config
	logger   logger.Logger

	processed    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
	active       atomic.Int64

	mu         sync.Mutex
	started    bool
	stopIntake context.CancelFunc
	cancelJobs context.CancelFunc
	jobCtx     context.Context
	loopDone   chan struct{}
	inflight   sync.WaitGroup
}

// New creates a worker.
func New(b broker.Broker, reviewer Reviewer, cfg Config, log logger.Logger) *Worker {
	return &Worker{
		broker:   b,
		reviewer: reviewer,
		cfg:      cfg.withDefaults(),
		logger:   logger.OrSilent(log),
	}
}

// Start subscribes and begins dispatching jobs in the background.
// Jobs run under ctx until Stop cancels them.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker already started")
	}

	intakeCtx, stopIntake := context.WithCancel(ctx)
	jobCtx, cancelJobs := context.WithCancel(ctx)

	msgs, err := w.broker.Subscribe(intakeCtx, w.cfg.Topic, w.cfg.Group, broker.FlowControl{MaxOutstanding: w.cfg.MaxOutstanding})
	if err != nil {
		stopIntake()
		cancelJobs()
		return fmt.Errorf("failed to subscribe to %s: %w", w.cfg.Topic, err)
	}

	w.started = true
	w.stopIntake = stopIntake
	w.cancelJobs = cancelJobs
	w.jobCtx = jobCtx
	w.loopDone = make(chan struct{})

	w.logger.Info("[Worker] Consuming %s as %s (concurrency=%d, outstanding=%d, retries=%d)",
		w.cfg.Topic, w.cfg.Group, w.cfg.MaxConcurrency, w.cfg.MaxOutstanding, w.cfg.MaxRetries)

	go w.loop(intakeCtx, jobCtx, msgs)
	return nil
}

// Run starts the worker and blocks until ctx is cancelled, then drains in-flight
// jobs for up to drainTimeout.
func (w *Worker) Run(ctx context.Context, drainTimeout time.Duration) error {
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	return w.Stop(stopCtx)
}

// Stop stops taking new jobs and waits for in-flight jobs. When ctx expires
// first, the remaining jobs are cancelled and left for redelivery.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	stopIntake, cancelJobs, loopDone := w.stopIntake, w.cancelJobs, w.loopDone
	w.mu.Unlock()

	stopIntake()
	<-loopDone

	drained := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		cancelJobs()
		w.logger.Info("[Worker] Drained: %+v", w.Stats())
		return nil
	case <-ctx.Done():
		w.logger.Warn("[Worker] Drain deadline reached with %d job(s) active, cancelling", w.active.Load())
		cancelJobs()
		<-drained
		return ctx.Err()
	}
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Processed:    w.processed.Load(),
		Failed:       w.failed.Load(),
		DeadLettered: w.deadLettered.Load(),
		Active:       w.active.Load(),
	}
}

func (w *Worker) loop(intakeCtx, jobCtx context.Context, msgs <-chan *broker.Message) {
	defer close(w.loopDone)
	sem := make(chan struct{}, w.cfg.MaxConcurrency)

	for {
		select {
		case <-intakeCtx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-intakeCtx.Done():
				msg.Nack(0)
				return
			}
			w.inflight.Add(1)
			go func() {
				defer w.inflight.Done()
				defer func() { <-sem }()
				w.handle(jobCtx, msg)
			}()
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *broker.Message) {
	w.active.Add(1)
	defer w.active.Add(-1)

	job, err := broker.DecodeJob(msg)
	if err != nil {
		w.logger.Error("[Worker] Dropping undecodable message at offset %d: %v", msg.Offset, err)
		w.deadLetter(ctx, msg, contracts.Job{DeliveryAttempt: msg.Attempt()}, err)
		return
	}

	ref := job.Request.Ref()
	w.logger.Debug("[Worker] Job %s (%s) attempt %d", job.MessageID, ref, job.DeliveryAttempt)

	rec, err := w.review(ctx, job)
	if err == nil {
		w.processed.Add(1)
		msg.Ack()
		if rec != nil {
			w.logger.Info("[Worker] Job %s (%s) %s", job.MessageID, ref, rec.Outcome)
		}
		return
	}

	if ctx.Err() != nil {
		// Shutting down; leave the job for another worker without burning an attempt.
		w.logger.Warn("[Worker] Job %s (%s) interrupted by shutdown", job.MessageID, ref)
		msg.Requeue()
		return
	}

	if job.DeliveryAttempt >= w.cfg.MaxRetries {
		w.logger.Error("[Worker] Job %s (%s) failed after %d attempt(s): %v", job.MessageID, ref, job.DeliveryAttempt, err)
		w.deadLetter(ctx, msg, job, err)
		return
	}

	w.failed.Add(1)
	delay := Backoff(job.DeliveryAttempt, w.cfg.RetryBaseDelay, w.cfg.RetryMaxDelay)
	w.logger.Warn("[Worker] Job %s (%s) attempt %d failed, retrying in %s: %v", job.MessageID, ref, job.DeliveryAttempt, delay, err)
	msg.Nack(delay)
}

func (w *Worker) review(ctx context.Context, job contracts.Job) (rec *pipeline.ReviewRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review panic: %v", r)
		}
	}()
	return w.reviewer.Run(ctx, job.Request)
}

// deadLetter publishes the job once and acks it. If the dead-letter publish
// fails the message is nacked so it is not lost.
func (w *Worker) deadLetter(ctx context.Context, msg *broker.Message, job contracts.Job, cause error) {
	dl := contracts.DeadLetter{
		Job:      job,
		Error:    cause.Error(),
		Attempts: job.DeliveryAttempt,
		FailedAt: time.Now().UTC(),
		Worker:   w.cfg.WorkerID,
	}
	if job.MessageID == "" {
		dl.Payload = msg.Value
		dl.Job.MessageID = msg.Headers[contracts.HeaderMessageID]
	}

	if err := broker.PublishDeadLetter(context.WithoutCancel(ctx), w.broker, dl); err != nil {
		w.failed.Add(1)
		w.logger.Error("[Worker] %v", err)
		msg.Nack(Backoff(job.DeliveryAttempt, w.cfg.RetryBaseDelay, w.cfg.RetryMaxDelay))
		return
	}
	w.deadLettered.Add(1)
	msg.Ack()
}

// Backoff returns base*2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
