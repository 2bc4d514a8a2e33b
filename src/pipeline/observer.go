package pipeline

import (
	"context"
	"fmt"
	"time"

	"sift-agent/src/logger"
)

// EventType identifies a pipeline lifecycle notification.
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventChunkAnalyzed  EventType = "chunk_analyzed"
	EventReviewFinished EventType = "review_finished"
)

// Event is delivered to observers as a run progresses.
type Event struct {
	Type     EventType
	ReviewID string
	Ref      string
	Stage    Stage
	// Findings is the running total of findings on the record.
	Findings int
	Duration time.Duration
	Outcome  Outcome
	Error    string
}

// Observer receives lifecycle events. Delivery is best-effort: errors and
// panics are logged and never affect the run.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

func (fn ObserverFunc) Observe(ctx context.Context, ev Event) error {
	return fn(ctx, ev)
}

// LogObserver writes events to a logger at debug level.
type LogObserver struct {
	Logger logger.Logger
}

func (o LogObserver) Observe(ctx context.Context, ev Event) error {
	log := logger.OrSilent(o.Logger)
	switch ev.Type {
	case EventReviewFinished:
		log.Info("[Pipeline] %s finished: outcome=%s findings=%d duration=%s", ev.Ref, ev.Outcome, ev.Findings, ev.Duration)
	default:
		log.Debug("[Pipeline] %s %s %s (findings=%d)", ev.Ref, ev.Type, ev.Stage, ev.Findings)
	}
	return nil
}

func notify(ctx context.Context, observers []Observer, log logger.Logger, ev Event) {
	for _, o := range observers {
		if err := safeObserve(ctx, o, ev); err != nil {
			log.Debug("[Pipeline] observer failed on %s: %v", ev.Type, err)
		}
	}
}

func safeObserve(ctx context.Context, o Observer, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return o.Observe(ctx, ev)
}
