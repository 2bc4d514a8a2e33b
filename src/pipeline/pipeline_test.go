package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"sift-agent/src/contracts"
	"sift-agent/src/detect"
	"sift-agent/src/provider"
	"sift-agent/src/review"
	"sift-agent/src/store"
)

const settingsDiff = `diff --git a/app/settings.py b/app/settings.py
index 1111111..2222222 100644
--- a/app/settings.py
+++ b/app/settings.py
@@ -1,2 +1,4 @@
 import os
+API_KEY = "sk-live-1234567890"
+TIMEOUT = 30
 BASE = os.getcwd()
`

// countingDetector records how often it runs and returns canned findings.
type countingDetector struct {
	mu       sync.Mutex
	calls    int
	findings []review.Finding
	block    bool
}

func (d *countingDetector) Kind() string                     { return "counting" }
func (d *countingDetector) ShouldAnalyze(review.Chunk) bool { return true }
func (d *countingDetector) Analyze(ctx context.Context, c review.Chunk, ac detect.AnalysisContext) ([]review.Finding, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return d.findings, nil
}

func (d *countingDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func countingRegistry(d *countingDetector) *detect.Registry {
	reg := detect.NewRegistry(detect.Env{})
	reg.MustRegister("counting", func(detect.Env, []detect.Rule) detect.Detector { return d })
	return reg
}

func newRequest(diff string) contracts.ReviewRequest {
	req := contracts.ReviewRequest{
		Provider: "local",
		Owner:    "acme",
		Repo:     "api",
		Number:   7,
		HeadSHA:  "abc123",
		Title:    "Add settings",
		Diff:     diff,
	}
	req.IdempotencyKey = req.DeriveIdempotencyKey()
	return req
}

func newProviders(t *testing.T) (*provider.Registry, *provider.MemoryAdapter) {
	t.Helper()
	adapter := provider.NewMemoryAdapter("local", "")
	reg, err := provider.NewRegistry(adapter)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg, adapter
}

func TestRun_PublishesFindings(t *testing.T) {
	providers, adapter := newProviders(t)
	checkpoints := store.NewMemoryStore()
	p := New(Options{Providers: providers, Checkpoints: checkpoints})

	rec, err := p.Run(context.Background(), newRequest(settingsDiff))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.Outcome != OutcomePublished {
		t.Fatalf("Outcome = %s, want published", rec.Outcome)
	}
	if rec.Passed {
		t.Error("Passed = true, want false for an error-severity credential finding")
	}
	if rec.Metadata.CurrentStage != StageDone {
		t.Errorf("CurrentStage = %s, want done", rec.Metadata.CurrentStage)
	}
	if rec.Metadata.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if _, ok := rec.Metadata.DetectorStats[review.KindSecurity]; !ok {
		t.Errorf("DetectorStats missing security: %v", rec.Metadata.DetectorStats)
	}

	posted := adapter.Posted()
	if len(posted) != 1 {
		t.Fatalf("Posted() = %d reviews, want 1", len(posted))
	}
	var found bool
	for _, c := range posted[0].Comments {
		if c.Path == "app/settings.py" && c.Line == 2 && strings.Contains(c.Body, "credential") {
			found = true
		}
	}
	if !found {
		t.Errorf("no credential comment on app/settings.py:2 in %+v", posted[0].Comments)
	}
	if !strings.Contains(posted[0].Summary, "changes requested") {
		t.Errorf("Summary = %q, want it to request changes", posted[0].Summary)
	}
	if adapter.Fetches() != 0 {
		t.Errorf("Fetches() = %d, want 0 for an inline diff", adapter.Fetches())
	}

	snap, err := checkpoints.Get(context.Background(), ReviewID(newRequest(settingsDiff)))
	if err != nil {
		t.Fatalf("checkpoint Get() error = %v", err)
	}
	if snap.Stage != string(StageDone) {
		t.Errorf("checkpoint stage = %s, want done", snap.Stage)
	}
}

func TestRun_EmptyDiffPublishesSummary(t *testing.T) {
	providers, adapter := newProviders(t)
	adapter.SetDiff("acme/api#7", "")
	p := New(Options{Providers: providers})

	rec, err := p.Run(context.Background(), newRequest(""))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.Outcome != OutcomeEmpty {
		t.Errorf("Outcome = %s, want empty", rec.Outcome)
	}
	if !rec.Passed {
		t.Error("Passed = false, want true")
	}
	if len(rec.Chunks) != 0 {
		t.Errorf("Chunks = %d, want 0", len(rec.Chunks))
	}

	posted := adapter.Posted()
	if len(posted) != 1 {
		t.Fatalf("Posted() = %d reviews, want 1", len(posted))
	}
	if len(posted[0].Comments) != 0 {
		t.Errorf("Comments = %d, want 0", len(posted[0].Comments))
	}
	if posted[0].Summary == "" {
		t.Error("Summary is empty")
	}
	if adapter.Fetches() != 1 {
		t.Errorf("Fetches() = %d, want 1", adapter.Fetches())
	}
}

func TestResume_StopBeforeDetectors(t *testing.T) {
	providers, adapter := newProviders(t)
	det := &countingDetector{}
	p := New(Options{Providers: providers, Registry: countingRegistry(det)})

	req := newRequest(settingsDiff)
	rec := NewRecord(ReviewID(req), req)
	rec.Config = review.DefaultConfiguration()
	rec.ConfigResolved = true
	rec.Diff = settingsDiff
	rec.Chunks = []review.Chunk{{FilePath: "app/settings.py", StartLine: 1, EndLine: 4, Content: "x"}}
	rec.Metadata.CurrentStage = StageDetect
	rec.Stop("shutdown requested")

	got, err := p.Resume(context.Background(), rec)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	if det.Calls() != 0 {
		t.Errorf("detector calls = %d, want 0", det.Calls())
	}
	if len(got.Findings) != 0 {
		t.Errorf("Findings = %d, want 0", len(got.Findings))
	}
	if got.Outcome != OutcomeStopped {
		t.Errorf("Outcome = %s, want stopped", got.Outcome)
	}
	if got.Metadata.CurrentStage != StageHalted {
		t.Errorf("CurrentStage = %s, want halted", got.Metadata.CurrentStage)
	}
	if len(adapter.Posted()) != 0 {
		t.Error("stopped review should not be posted")
	}
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	providers, adapter := newProviders(t)
	det := &countingDetector{}
	checkpoints := store.NewMemoryStore()
	p := New(Options{Providers: providers, Registry: countingRegistry(det), Checkpoints: checkpoints})

	// No inline diff and none registered: ingest would fail if it ran again.
	req := newRequest("")
	rec := NewRecord(ReviewID(req), req)
	rec.Config = review.DefaultConfiguration()
	rec.ConfigResolved = true
	rec.Chunks = []review.Chunk{{FilePath: "app/settings.py", StartLine: 1, EndLine: 4}}
	rec.ChunkIndex = 1
	rec.Findings = []review.Finding{{
		FilePath: "app/settings.py", LineNumber: 2, Message: "Possible hardcoded credential",
		Severity: review.SeverityWarning, DetectorKind: "counting", Confidence: 0.8, Category: "security",
	}}
	rec.Metadata.CurrentStage = StageAggregate
	data, err := rec.marshal()
	if err != nil {
		t.Fatalf("marshal() error = %v", err)
	}
	if err := checkpoints.Put(context.Background(), rec.Metadata.ReviewID, store.Snapshot{
		RecordID: rec.Metadata.ReviewID, Stage: string(StageAggregate), Data: data,
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got.Outcome != OutcomePublished {
		t.Fatalf("Outcome = %s, want published", got.Outcome)
	}
	if adapter.Fetches() != 0 {
		t.Errorf("Fetches() = %d, want 0 after resume", adapter.Fetches())
	}
	if det.Calls() != 0 {
		t.Errorf("detector calls = %d, want 0 after resume", det.Calls())
	}
	if posted := adapter.Posted(); len(posted) != 1 || len(posted[0].Comments) != 1 {
		t.Errorf("Posted() = %+v, want one review with one comment", posted)
	}
	if !got.Passed {
		t.Error("Passed = false, want true for a warning-only review")
	}
}

func TestRun_IdempotentReplay(t *testing.T) {
	providers, adapter := newProviders(t)
	p := New(Options{Providers: providers, Checkpoints: store.NewMemoryStore()})
	req := newRequest(settingsDiff)

	first, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if len(adapter.Posted()) != 1 {
		t.Errorf("Posted() = %d reviews, want 1", len(adapter.Posted()))
	}
	if second.Outcome != first.Outcome || len(second.Comments) != len(first.Comments) {
		t.Errorf("replay = %s/%d comments, want %s/%d", second.Outcome, len(second.Comments), first.Outcome, len(first.Comments))
	}
}

func TestRun_FailureThenRetry(t *testing.T) {
	providers, adapter := newProviders(t)
	checkpoints := store.NewMemoryStore()
	p := New(Options{Providers: providers, Checkpoints: checkpoints})
	req := newRequest("")

	rec, err := p.Run(context.Background(), req)
	if !errors.Is(err, ErrReviewFailed) {
		t.Fatalf("Run() error = %v, want ErrReviewFailed", err)
	}
	if rec.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", rec.Outcome)
	}
	if rec.Metadata.FailedStage != StageIngest {
		t.Errorf("FailedStage = %s, want ingest", rec.Metadata.FailedStage)
	}
	if len(adapter.Posted()) != 0 {
		t.Error("failed review should not be posted")
	}

	adapter.SetDiff("acme/api#7", settingsDiff)
	rec, err = p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("retry Run() error = %v", err)
	}
	if rec.Outcome != OutcomePublished {
		t.Errorf("retry Outcome = %s, want published", rec.Outcome)
	}
	if rec.Error != "" {
		t.Errorf("retry Error = %q, want empty", rec.Error)
	}
}

const twoFileDiff = `diff --git a/a.py b/a.py
--- a/a.py
+++ b/a.py
@@ -1,1 +1,2 @@
 import os
+token = os.environ["TOKEN"]
diff --git a/b.py b/b.py
--- a/b.py
+++ b/b.py
@@ -1,1 +1,2 @@
 import sys
+print(sys.argv)
`

// shutdownDetector cancels the run on its first call, as a worker shutdown
// would, and reports one finding per file afterwards.
type shutdownDetector struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	files  []string
}

func (d *shutdownDetector) Kind() string                     { return "shutdown" }
func (d *shutdownDetector) ShouldAnalyze(review.Chunk) bool { return true }
func (d *shutdownDetector) Analyze(ctx context.Context, c review.Chunk, ac detect.AnalysisContext) ([]review.Finding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
		return nil, ctx.Err()
	}
	d.files = append(d.files, c.FilePath)
	return []review.Finding{{
		FilePath: c.FilePath, LineNumber: 2, Message: "flagged", Category: "test",
		Severity: review.SeverityError, DetectorKind: "shutdown", Confidence: 0.9,
	}}, nil
}

func TestRun_InterruptedChunkIsReanalyzed(t *testing.T) {
	providers, adapter := newProviders(t)
	checkpoints := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	det := &shutdownDetector{cancel: cancel}
	reg := detect.NewRegistry(detect.Env{})
	reg.MustRegister("shutdown", func(detect.Env, []detect.Rule) detect.Detector { return det })
	p := New(Options{Providers: providers, Registry: reg, Checkpoints: checkpoints})
	req := newRequest(twoFileDiff)

	rec, err := p.Run(ctx, req)
	if !errors.Is(err, ErrReviewFailed) {
		t.Fatalf("Run() error = %v, want ErrReviewFailed", err)
	}
	if rec.ChunkIndex != 0 {
		t.Errorf("ChunkIndex = %d, want 0 after interruption", rec.ChunkIndex)
	}
	if rec.Metadata.FailedStage != StageDetect {
		t.Errorf("FailedStage = %s, want %s", rec.Metadata.FailedStage, StageDetect)
	}

	rec, err = p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("retry Run() error = %v", err)
	}
	if rec.Outcome != OutcomePublished {
		t.Fatalf("retry Outcome = %s, want published", rec.Outcome)
	}
	files := make(map[string]bool)
	for _, f := range rec.Validated {
		files[f.FilePath] = true
	}
	if !files["a.py"] || !files["b.py"] {
		t.Errorf("validated files = %v, want a.py and b.py", files)
	}
	if posted := adapter.Posted(); len(posted) != 1 || len(posted[0].Comments) != 2 {
		t.Errorf("Posted() = %+v, want one review with two comments", posted)
	}
}

func TestRun_PublishFailure(t *testing.T) {
	providers, adapter := newProviders(t)
	adapter.FailPosts(errors.New("502 Bad Gateway"))
	p := New(Options{Providers: providers})

	rec, err := p.Run(context.Background(), newRequest(settingsDiff))
	if !errors.Is(err, ErrReviewFailed) {
		t.Fatalf("Run() error = %v, want ErrReviewFailed", err)
	}
	if rec.Metadata.FailedStage != StagePublish {
		t.Errorf("FailedStage = %s, want publish", rec.Metadata.FailedStage)
	}
}

func TestRun_JobTimeoutStops(t *testing.T) {
	providers, adapter := newProviders(t)
	det := &countingDetector{block: true}
	p := New(Options{
		Providers:  providers,
		Registry:   countingRegistry(det),
		JobTimeout: 50 * time.Millisecond,
	})

	rec, err := p.Run(context.Background(), newRequest(settingsDiff))
	if err != nil {
		t.Fatalf("Run() error = %v, want nil for a timed-out review", err)
	}
	if rec.Outcome != OutcomeStopped {
		t.Errorf("Outcome = %s, want stopped", rec.Outcome)
	}
	if rec.StopReason == "" {
		t.Error("StopReason not set")
	}
	if len(adapter.Posted()) != 0 {
		t.Error("timed-out review should not be posted")
	}
}

func TestRun_ThresholdFiltersEverything(t *testing.T) {
	providers, adapter := newProviders(t)
	det := &countingDetector{findings: []review.Finding{{
		FilePath: "app/settings.py", LineNumber: 3, Message: "magic number",
		Severity: review.SeverityWarning, DetectorKind: "counting", Confidence: 0.95,
	}}}
	cfg := review.DefaultConfiguration()
	cfg.SeverityThreshold = review.SeverityError
	p := New(Options{Providers: providers, Registry: countingRegistry(det), Configs: StaticConfig(cfg)})

	rec, err := p.Run(context.Background(), newRequest(settingsDiff))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if det.Calls() != 1 {
		t.Errorf("detector calls = %d, want 1", det.Calls())
	}
	if rec.Outcome != OutcomeEmpty {
		t.Errorf("Outcome = %s, want empty", rec.Outcome)
	}
	if posted := adapter.Posted(); len(posted) != 1 || len(posted[0].Comments) != 0 {
		t.Errorf("Posted() = %+v, want one review with no comments", posted)
	}
	if stat := rec.Metadata.DetectorStats["counting"]; stat.Runs != 1 || stat.Findings != 1 {
		t.Errorf("DetectorStats[counting] = %+v, want 1 run with 1 finding", stat)
	}
}

func TestRun_ObserversAreBestEffort(t *testing.T) {
	providers, _ := newProviders(t)

	var mu sync.Mutex
	var events []Event
	recorder := ObserverFunc(func(ctx context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})
	panicky := ObserverFunc(func(ctx context.Context, ev Event) error {
		panic("observer exploded")
	})
	failing := ObserverFunc(func(ctx context.Context, ev Event) error {
		return errors.New("sink unavailable")
	})

	p := New(Options{Providers: providers, Observers: []Observer{panicky, failing, recorder}})
	rec, err := p.Run(context.Background(), newRequest(settingsDiff))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Outcome != OutcomePublished {
		t.Errorf("Outcome = %s, want published", rec.Outcome)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("recorder received no events")
	}
	last := events[len(events)-1]
	if last.Type != EventReviewFinished || last.Outcome != OutcomePublished {
		t.Errorf("last event = %+v, want review_finished/published", last)
	}
	var started int
	for _, ev := range events {
		if ev.Type == EventStageStarted {
			started++
		}
	}
	if started != len(stageOrder) {
		t.Errorf("stage_started events = %d, want %d", started, len(stageOrder))
	}
}

func TestReviewID_StableAcrossRedeliveries(t *testing.T) {
	a := newRequest(settingsDiff)
	b := newRequest("")
	if ReviewID(a) != ReviewID(b) {
		t.Error("ReviewID differs for the same idempotency key")
	}
	b.HeadSHA = "def456"
	b.IdempotencyKey = b.DeriveIdempotencyKey()
	if ReviewID(a) == ReviewID(b) {
		t.Error("ReviewID should change with the head commit")
	}
}
