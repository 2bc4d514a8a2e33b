package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sift-agent/src/review"
)

func writeOverride(t *testing.T, dir, owner, repo, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, owner), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, owner, repo+".yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolver_MergesOverrides(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, "acme", "api", `
severity_threshold: warn
max_findings_total: 5
validation_skip_above: 0
enabled_detectors:
  style: false
custom_rules:
  - name: no-fixme
    pattern: FIXME
    message: Resolve FIXME before merging
    severity: low
`)

	r, err := NewResolver(dir, review.DefaultConfiguration(), nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	defer r.Close()

	cfg, err := r.Resolve(context.Background(), "acme", "api")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.SeverityThreshold != review.SeverityWarning {
		t.Errorf("SeverityThreshold = %s, want warning", cfg.SeverityThreshold)
	}
	if cfg.MaxFindingsTotal != 5 {
		t.Errorf("MaxFindingsTotal = %d, want 5", cfg.MaxFindingsTotal)
	}
	if cfg.MaxFindingsPerFile != 10 {
		t.Errorf("MaxFindingsPerFile = %d, want default 10", cfg.MaxFindingsPerFile)
	}
	if cfg.ValidationSkipAbove == nil || cfg.SkipAbove() != 0 {
		t.Errorf("ValidationSkipAbove = %v, want an explicit 0", cfg.ValidationSkipAbove)
	}
	if cfg.DetectorEnabled(review.KindStyle) {
		t.Error("style detector should be disabled")
	}
	if !cfg.DetectorEnabled(review.KindSecurity) {
		t.Error("security detector should stay enabled")
	}
	if len(cfg.CustomRules) != 1 || cfg.CustomRules[0].Severity != review.SeveritySuggestion {
		t.Errorf("CustomRules = %+v, want one rule with severity suggestion", cfg.CustomRules)
	}
}

func TestResolver_MissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, "acme", "broken", "severity_threshold: [unterminated\n")
	writeOverride(t, dir, "acme", "badsev", "severity_threshold: catastrophic\n")
	writeOverride(t, dir, "acme", "badskip", "validation_skip_above: 1.5\n")

	r, err := NewResolver(dir, review.DefaultConfiguration(), nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	cfg, err := r.Resolve(ctx, "acme", "missing")
	if err != nil {
		t.Fatalf("Resolve(missing) error = %v", err)
	}
	if cfg.MaxFindingsTotal != review.DefaultConfiguration().MaxFindingsTotal {
		t.Errorf("Resolve(missing) = %+v, want defaults", cfg)
	}

	for _, repo := range []string{"broken", "badsev", "badskip"} {
		if _, err := r.Resolve(ctx, "acme", repo); err == nil {
			t.Errorf("Resolve(%s) expected error, got nil", repo)
		}
	}
	if _, err := r.Resolve(ctx, "..", "etc"); err == nil {
		t.Error("Resolve(..) expected error, got nil")
	}
}

func TestResolver_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeOverride(t, dir, "acme", "api", "max_findings_total: 5\n")

	r, err := NewResolver(dir, review.DefaultConfiguration(), nil)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	cfg, err := r.Resolve(ctx, "acme", "api")
	if err != nil || cfg.MaxFindingsTotal != 5 {
		t.Fatalf("Resolve() = %d, %v; want 5", cfg.MaxFindingsTotal, err)
	}

	writeOverride(t, dir, "acme", "api", "max_findings_total: 7\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		cfg, err = r.Resolve(ctx, "acme", "api")
		if err == nil && cfg.MaxFindingsTotal == 7 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("Resolve() after change = %d, want 7", cfg.MaxFindingsTotal)
}

func TestResolver_InvalidateAndNoDir(t *testing.T) {
	r, err := NewResolver("", review.DefaultConfiguration(), nil)
	if err != nil {
		t.Fatalf("NewResolver(\"\") error = %v", err)
	}
	cfg, err := r.Resolve(context.Background(), "any", "repo")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.MaxChunkLines != review.DefaultConfiguration().MaxChunkLines {
		t.Errorf("Resolve() = %+v, want defaults", cfg)
	}
	r.Invalidate("any", "repo")
	if err := r.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if _, err := NewResolver(filepath.Join(t.TempDir(), "nope"), review.DefaultConfiguration(), nil); err == nil {
		t.Error("NewResolver() with missing dir expected error")
	}
}
