package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sift-agent/src/logger"
	"sift-agent/src/review"
)

// DefaultDetectorTimeout bounds one detector's work on one chunk.
const DefaultDetectorTimeout = 90 * time.Second

// Stat accumulates per-detector counters for a review.
type Stat struct {
	Runs     int           `json:"runs"`
	Findings int           `json:"findings"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Add folds o into s.
func (s Stat) Add(o Stat) Stat {
	return Stat{
		Runs:     s.Runs + o.Runs,
		Findings: s.Findings + o.Findings,
		Errors:   s.Errors + o.Errors,
		Duration: s.Duration + o.Duration,
	}
}

// Result is the outcome of dispatching one chunk.
type Result struct {
	// Findings in detector order, then in each detector's own order.
	Findings []review.Finding
	Stats    map[string]Stat
	Errors   []error
}

// Dispatcher runs detectors on a chunk concurrently.
type Dispatcher struct {
	timeout time.Duration
	logger  logger.Logger
}

// NewDispatcher creates a dispatcher. timeout <= 0 uses DefaultDetectorTimeout.
func NewDispatcher(timeout time.Duration, log logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}
	return &Dispatcher{timeout: timeout, logger: logger.OrSilent(log)}
}

type slot struct {
	findings []review.Finding
	err      error
	elapsed  time.Duration
	ran      bool
}

// Dispatch runs every applicable detector on chunk and waits for all of them.
// A detector that errors, panics, or times out loses only its own contribution.
func (d *Dispatcher) Dispatch(ctx context.Context, chunk review.Chunk, detectors []Detector, ac AnalysisContext) Result {
	slots := make([]slot, len(detectors))

	var wg sync.WaitGroup
	for i, det := range detectors {
		wg.Add(1)
		go func(i int, det Detector) {
			defer wg.Done()
			slots[i] = d.run(ctx, det, chunk, ac)
		}(i, det)
	}
	wg.Wait()

	res := Result{Stats: make(map[string]Stat)}
	for i, s := range slots {
		if !s.ran {
			continue
		}
		kind := detectors[i].Kind()
		stat := Stat{Runs: 1, Duration: s.elapsed}
		if s.err != nil {
			stat.Errors = 1
			res.Errors = append(res.Errors, fmt.Errorf("detector %s on %s: %w", kind, chunk.FilePath, s.err))
			d.logger.Warn("[Dispatcher] Detector %s failed on %s:%d-%d: %v", kind, chunk.FilePath, chunk.StartLine, chunk.EndLine, s.err)
		} else {
			stat.Findings = len(s.findings)
			res.Findings = append(res.Findings, s.findings...)
		}
		res.Stats[kind] = res.Stats[kind].Add(stat)
	}
	return res
}

func (d *Dispatcher) run(ctx context.Context, det Detector, chunk review.Chunk, ac AnalysisContext) (s slot) {
	s.ran = true
	start := time.Now()
	defer func() {
		s.elapsed = time.Since(start)
		if r := recover(); r != nil {
			s.findings = nil
			s.err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !det.ShouldAnalyze(chunk) {
		return slot{}
	}

	dctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	findings, err := det.Analyze(dctx, chunk, ac)
	if err != nil {
		return slot{ran: true, err: err}
	}
	return slot{ran: true, findings: findings}
}
