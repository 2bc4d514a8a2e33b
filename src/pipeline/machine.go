package pipeline

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Events sent to the review machine after a stage completes.
const (
	eventNext       = "next"
	eventFindings   = "findings"
	eventNoFindings = "no_findings"
	eventHalt       = "halt"
)

// runContext is the machine context; stages operate on the ReviewRecord directly.
type runContext struct {
	ReviewID string
}

var stageOrder = []Stage{
	StageIngest,
	StageChunk,
	StageDetect,
	StageAggregate,
	StageFilter,
	StageValidate,
	StagePublish,
}

// machine wraps the statekit interpreter driving one review run.
type machine struct {
	interpreter *statekit.Interpreter[runContext]
}

// newMachine builds the review state machine starting at initial.
//
//	ingest -> chunk_analyzer -> parallel_detectors -> aggregate
//	aggregate -findings-> severity_filter -> validate -> publish -> done
//	aggregate -no_findings-> publish
//	any non-terminal stage -halt-> halted
func newMachine(reviewID string, initial Stage) (*machine, error) {
	if !knownStage(initial) {
		return nil, fmt.Errorf("unknown pipeline stage %q", initial)
	}

	builder := statekit.NewMachine[runContext]("review-pipeline").
		WithInitial(statekit.StateID(initial)).
		WithContext(runContext{ReviewID: reviewID})

	builder.State(statekit.StateID(StageIngest)).
		On(eventNext).Target(statekit.StateID(StageChunk)).
		On(eventHalt).Target(statekit.StateID(StageHalted)).
		Done()

	builder.State(statekit.StateID(StageChunk)).
		On(eventNext).Target(statekit.StateID(StageDetect)).
		On(eventHalt).Target(statekit.StateID(StageHalted)).
		Done()

	builder.State(statekit.StateID(StageDetect)).
		On(eventNext).Target(statekit.StateID(StageAggregate)).
		On(eventHalt).Target(statekit.StateID(StageHalted)).
		Done()

	builder.State(statekit.StateID(StageAggregate)).
		On(eventFindings).Target(statekit.StateID(StageFilter)).
		On(eventNoFindings).Target(statekit.StateID(StagePublish)).
		On(eventHalt).Target(statekit.StateID(StageHalted)).
		Done()

	builder.State(statekit.StateID(StageFilter)).
		On(eventNext).Target(statekit.StateID(StageValidate)).
		On(eventHalt).Target(statekit.StateID(StageHalted)).
		Done()

	builder.State(statekit.StateID(StageValidate)).
		On(eventNext).Target(statekit.StateID(StagePublish)).
		On(eventHalt).Target(statekit.StateID(StageHalted)).
		Done()

	builder.State(statekit.StateID(StagePublish)).
		On(eventNext).Target(statekit.StateID(StageDone)).
		On(eventHalt).Target(statekit.StateID(StageHalted)).
		Done()

	builder.State(statekit.StateID(StageDone)).Done()
	builder.State(statekit.StateID(StageHalted)).Done()

	def, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(def)
	interpreter.Start()
	return &machine{interpreter: interpreter}, nil
}

// Current returns the active stage.
func (m *machine) Current() Stage {
	return Stage(m.interpreter.State().Value)
}

// Send fires event and returns the new stage. An event with no transition
// from the current stage is an error.
func (m *machine) Send(event string) (Stage, error) {
	before := m.Current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := m.Current()
	if before == after {
		return before, fmt.Errorf("event %q is not allowed in stage %q", event, before)
	}
	return after, nil
}

// nextEvent picks the transition out of stage based on the record.
// Once an error or stop request is present every stage routes to halted.
func nextEvent(stage Stage, rec *ReviewRecord) string {
	if rec.Halted() {
		return eventHalt
	}
	if stage == StageAggregate {
		if len(rec.Findings) > 0 {
			return eventFindings
		}
		return eventNoFindings
	}
	return eventNext
}

func knownStage(s Stage) bool {
	if s.Terminal() {
		return true
	}
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Stages returns the working stages in execution order.
func Stages() []Stage {
	return append([]Stage(nil), stageOrder...)
}
