package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"sift-agent/src/contracts"
	"sift-agent/src/detect"
	"sift-agent/src/review"
	"sift-agent/src/validate"
)

// Stage names a state of the review state machine.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageChunk     Stage = "chunk_analyzer"
	StageDetect    Stage = "parallel_detectors"
	StageAggregate Stage = "aggregate"
	StageFilter    Stage = "severity_filter"
	StageValidate  Stage = "validate"
	StagePublish   Stage = "publish"

	// StageDone is reached after a successful publish.
	StageDone Stage = "done"
	// StageHalted is reached when a run stops or fails before publishing.
	StageHalted Stage = "halted"
)

// Terminal reports whether no further stage runs after s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageHalted
}

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomePublished means a review with at least one comment was posted.
	OutcomePublished Outcome = "published"
	// OutcomeEmpty means a summary with zero comments was posted.
	OutcomeEmpty Outcome = "empty"
	// OutcomeStopped means the run was stopped early and nothing was posted.
	OutcomeStopped Outcome = "stopped"
	// OutcomeFailed means a stage failed and nothing was posted.
	OutcomeFailed Outcome = "failed"
)

// Metadata tracks bookkeeping for one review run.
type Metadata struct {
	ReviewID      string                 `json:"review_id"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	CurrentStage  Stage                  `json:"current_stage"`
	DetectorStats map[string]detect.Stat `json:"detector_stats"`
	// ErrorCount counts non-fatal errors (detector failures, judge failures).
	ErrorCount int `json:"error_count"`
	// FailedStage is the stage that set Error, used to resume a retried run.
	FailedStage Stage `json:"failed_stage,omitempty"`
}

// ReviewRecord is the state threaded through every stage of a review.
// It is owned by one run at a time and serialized whole into checkpoints.
type ReviewRecord struct {
	Request contracts.ReviewRequest `json:"request"`
	Config  review.Configuration    `json:"config"`
	// ConfigResolved is false until ingest has merged repository overrides.
	ConfigResolved bool `json:"config_resolved"`

	Diff       string         `json:"diff"`
	Chunks     []review.Chunk `json:"chunks"`
	ChunkIndex int            `json:"chunk_index"`

	Findings  []review.Finding     `json:"findings"`
	Validated []review.Finding     `json:"validated"`
	Rejected  []validate.Rejection `json:"rejected"`
	Comments  []review.Comment     `json:"comments"`
	Summary   string               `json:"summary"`
	Passed    bool                 `json:"passed"`

	Metadata Metadata `json:"metadata"`
	Outcome  Outcome  `json:"outcome,omitempty"`

	// Error is set by the first stage that fails; nothing is published afterwards.
	Error string `json:"error,omitempty"`
	// ShouldStop requests an early exit without publishing.
	ShouldStop bool   `json:"should_stop"`
	StopReason string `json:"stop_reason,omitempty"`
}

// NewRecord creates a record for req starting at the ingest stage.
func NewRecord(reviewID string, req contracts.ReviewRequest) *ReviewRecord {
	return &ReviewRecord{
		Request: req,
		Metadata: Metadata{
			ReviewID:      reviewID,
			StartedAt:     time.Now().UTC(),
			CurrentStage:  StageIngest,
			DetectorStats: make(map[string]detect.Stat),
		},
	}
}

// Halted reports whether subsequent stages must route to termination.
func (r *ReviewRecord) Halted() bool {
	return r.Error != "" || r.ShouldStop
}

// Stop requests an early exit. The first reason wins.
func (r *ReviewRecord) Stop(reason string) {
	if r.ShouldStop {
		return
	}
	r.ShouldStop = true
	r.StopReason = reason
}

func (r *ReviewRecord) fail(stage Stage, err error) {
	if r.Error != "" {
		return
	}
	r.Error = err.Error()
	r.Metadata.FailedStage = stage
}

func (r *ReviewRecord) addStats(stats map[string]detect.Stat) {
	if r.Metadata.DetectorStats == nil {
		r.Metadata.DetectorStats = make(map[string]detect.Stat)
	}
	for kind, s := range stats {
		r.Metadata.DetectorStats[kind] = r.Metadata.DetectorStats[kind].Add(s)
	}
}

func (r *ReviewRecord) marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal review record: %w", err)
	}
	return data, nil
}

func unmarshalRecord(data []byte) (*ReviewRecord, error) {
	var r ReviewRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review record: %w", err)
	}
	if r.Metadata.DetectorStats == nil {
		r.Metadata.DetectorStats = make(map[string]detect.Stat)
	}
	return &r, nil
}
