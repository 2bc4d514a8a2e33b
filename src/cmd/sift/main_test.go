package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sift-agent/src/config"
	"sift-agent/src/contracts"
	"sift-agent/src/mcp"
	"sift-agent/src/pipeline"
	"sift-agent/src/provider"
	"sift-agent/src/review"
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

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		input   string
		owner   string
		repo    string
		wantErr bool
	}{
		{"acme/api", "acme", "api", false},
		{"acme", "", "", true},
		{"/api", "", "", true},
		{"acme/", "", "", true},
		{"acme/api/extra", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			owner, repo, err := splitRepo(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitRepo(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if owner != tt.owner || repo != tt.repo {
				t.Errorf("splitRepo(%q) = %q, %q", tt.input, owner, repo)
			}
		})
	}
}

func TestCheckProvider(t *testing.T) {
	if err := checkProvider("github"); err != nil {
		t.Errorf("checkProvider(github) error = %v", err)
	}

	for _, name := range []string{"gitlab", "local", ""} {
		err := checkProvider(name)
		if !errors.Is(err, provider.ErrUnknownProvider) {
			t.Fatalf("checkProvider(%q) error = %v, want ErrUnknownProvider", name, err)
		}
		var userErr *provider.UserError
		if !errors.As(provider.WrapError(err), &userErr) || !strings.Contains(userErr.Hint, "--provider") {
			t.Errorf("WrapError(%v) = %v, want a --provider hint", err, provider.WrapError(err))
		}
	}
}

func TestReadDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "change.diff")
	if err := os.WriteFile(path, []byte(settingsDiff), 0o644); err != nil {
		t.Fatal(err)
	}

	if got, err := readDiff(path, nil); err != nil || got != settingsDiff {
		t.Errorf("readDiff(file) = %q, %v", got, err)
	}
	if got, err := readDiff("-", strings.NewReader(settingsDiff)); err != nil || got != settingsDiff {
		t.Errorf("readDiff(stdin) = %q, %v", got, err)
	}
	if _, err := readDiff("-", strings.NewReader("  \n")); err == nil {
		t.Error("expected error for an empty diff")
	}
	if _, err := readDiff(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestNewApp_DevModeReviewsLocally(t *testing.T) {
	cfg := config.Default()
	a, err := newApp(context.Background(), cfg, appOptions{logOutput: io.Discard})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	if a.broker != nil || a.providers != nil {
		t.Error("local review should not open a broker or providers")
	}

	req, err := mcp.LocalRequest(settingsDiff, "acme/api", "Add settings")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := a.pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Outcome != pipeline.OutcomePublished || rec.Passed {
		t.Errorf("Outcome = %s, Passed = %v; want published, not passed", rec.Outcome, rec.Passed)
	}

	var found bool
	for _, f := range rec.Validated {
		if f.FilePath == "app/settings.py" && f.LineNumber == 2 && f.Severity == review.SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error finding on app/settings.py:2, got %+v", rec.Validated)
	}
}

func TestNewApp_WithProviders(t *testing.T) {
	cfg := config.Default()
	a, err := newApp(context.Background(), cfg, appOptions{broker: true, providers: true, logOutput: io.Discard})
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	names := a.providers.Names()
	if len(names) != 2 || names[0] != "github" || names[1] != localProviderName {
		t.Errorf("providers = %v", names)
	}
	if a.broker == nil {
		t.Error("expected the in-memory broker")
	}
}

func TestNewApp_BadRepoConfigDir(t *testing.T) {
	cfg := config.Default()
	cfg.RepoConfigDir = filepath.Join(t.TempDir(), "missing")
	if _, err := newApp(context.Background(), cfg, appOptions{logOutput: io.Discard}); err == nil {
		t.Error("expected error for a missing repository config directory")
	}
}

func testRecord() *pipeline.ReviewRecord {
	rec := pipeline.NewRecord("review-1", contracts.ReviewRequest{Owner: "acme", Repo: "api", Number: 7})
	rec.Outcome = pipeline.OutcomePublished
	rec.Summary = "Sift found 2 issues (1 error, 1 note) across 2 files. Status: changes requested."
	rec.Validated = []review.Finding{
		{FilePath: "app/settings.py", LineNumber: 2, Message: "hardcoded secret", Severity: review.SeverityError, Category: "secrets", SuggestedFix: "API_KEY = os.environ[\"API_KEY\"]"},
		{FilePath: "README.md", LineNumber: 9, Message: "typo", Severity: review.SeverityNote, Category: "style"},
	}
	return rec
}

func TestFormatText(t *testing.T) {
	out := formatText(testRecord())

	for _, want := range []string{
		"app/settings.py\n  2: [error] hardcoded secret (secrets)\n",
		`      > API_KEY = os.environ["API_KEY"]`,
		"README.md\n  9: [note] typo (style)\n",
		"Status: changes requested.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatText_Halted(t *testing.T) {
	rec := testRecord()
	rec.Validated = nil
	rec.Summary = ""
	rec.Stop("job timeout exceeded")

	if out := formatText(rec); !strings.Contains(out, "Review stopped: job timeout exceeded") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPrintRecord_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printRecord(&buf, testRecord(), "json"); err != nil {
		t.Fatalf("printRecord() error = %v", err)
	}

	var manifest mcp.ReviewManifest
	if err := json.Unmarshal(buf.Bytes(), &manifest); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if manifest.ReviewID != "review-1" || len(manifest.Blocking) != 1 || len(manifest.Other) != 1 {
		t.Errorf("unexpected manifest %+v", manifest)
	}

	if err := printRecord(&buf, testRecord(), "xml"); err == nil {
		t.Error("expected error for an unknown format")
	}
}
