package ranking

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"sift-agent/src/review"
)

func finding(file string, line int, category string, sev review.Severity, conf float64, kind string) review.Finding {
	return review.Finding{
		FilePath:     file,
		LineNumber:   line,
		Category:     category,
		Severity:     sev,
		Confidence:   conf,
		DetectorKind: kind,
		Message:      fmt.Sprintf("%s@%s:%d", kind, file, line),
	}
}

func unlimited() review.Configuration {
	return review.Configuration{}
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil, review.DefaultConfiguration())
	if got == nil || len(got) != 0 {
		t.Errorf("Aggregate(nil) = %v, want empty non-nil slice", got)
	}
}

func TestAggregate_DedupKeepsHighestConfidenceAndMergesProvenance(t *testing.T) {
	input := []review.Finding{
		finding("a.py", 3, "injection", review.SeverityWarning, 0.6, "security"),
		finding("a.py", 3, "injection", review.SeverityWarning, 0.9, "logic"),
		finding("a.py", 3, "injection", review.SeverityWarning, 0.7, "security"),
		finding("a.py", 3, "naming", review.SeverityNote, 0.5, "style"),
	}

	got := Aggregate(input, unlimited())
	if len(got) != 2 {
		t.Fatalf("expected 2 findings after dedup, got %d", len(got))
	}

	top := got[0]
	if top.Confidence != 0.9 || top.DetectorKind != "logic" {
		t.Errorf("kept %+v, want the 0.9 logic instance", top)
	}
	if !reflect.DeepEqual(top.Detectors, []string{"security", "logic"}) {
		t.Errorf("Detectors = %v, want [security logic]", top.Detectors)
	}

	if input[0].Detectors != nil {
		t.Error("Aggregate mutated its input")
	}
}

func TestAggregate_OrdersBySeverityThenConfidenceThenInput(t *testing.T) {
	input := []review.Finding{
		finding("a.go", 1, "x", review.SeverityNote, 0.9, "style"),
		finding("a.go", 2, "x", review.SeverityError, 0.5, "security"),
		finding("b.go", 3, "x", review.SeverityWarning, 0.8, "logic"),
		finding("b.go", 4, "x", review.SeverityError, 0.7, "security"),
		finding("c.go", 5, "x", review.SeverityWarning, 0.8, "pattern"),
	}

	got := Aggregate(input, unlimited())
	var lines []int
	for _, f := range got {
		lines = append(lines, f.LineNumber)
	}
	want := []int{4, 2, 3, 5, 1}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("order = %v, want %v", lines, want)
	}
}

func TestAggregate_Caps(t *testing.T) {
	var input []review.Finding
	for i := 1; i <= 5; i++ {
		input = append(input, finding("a.go", i, "x", review.SeverityWarning, 0.5, "logic"))
		input = append(input, finding("b.go", i, "x", review.SeverityError, 0.5, "logic"))
	}

	got := Aggregate(input, review.Configuration{MaxFindingsPerFile: 2, MaxFindingsTotal: 3})
	if len(got) != 3 {
		t.Fatalf("expected total cap of 3, got %d", len(got))
	}

	perFile := map[string]int{}
	for _, f := range got {
		perFile[f.FilePath]++
	}
	if perFile["b.go"] != 2 || perFile["a.go"] != 1 {
		t.Errorf("per-file counts = %v, want b.go:2 a.go:1", perFile)
	}
}

func TestAggregate_NoDuplicateKeys(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	severities := []review.Severity{review.SeverityNote, review.SeveritySuggestion, review.SeverityWarning, review.SeverityError}
	kinds := []string{"security", "style", "logic", "pattern"}

	for trial := 0; trial < 50; trial++ {
		var input []review.Finding
		for i := 0; i < 40; i++ {
			input = append(input, finding(
				fmt.Sprintf("f%d.go", rng.Intn(3)),
				rng.Intn(6),
				fmt.Sprintf("c%d", rng.Intn(3)),
				severities[rng.Intn(len(severities))],
				float64(rng.Intn(10))/10,
				kinds[rng.Intn(len(kinds))],
			))
		}

		got := Aggregate(input, unlimited())
		seen := map[string]bool{}
		for _, f := range got {
			if seen[f.DedupKey()] {
				t.Fatalf("trial %d: duplicate key %s", trial, f.DedupKey())
			}
			seen[f.DedupKey()] = true
		}

		if again := Aggregate(input, unlimited()); !reflect.DeepEqual(got, again) {
			t.Fatalf("trial %d: output not deterministic", trial)
		}
	}
}

func TestFilter(t *testing.T) {
	input := []review.Finding{
		finding("a", 1, "x", review.SeverityNote, 1, "s"),
		finding("a", 2, "x", review.SeveritySuggestion, 1, "s"),
		finding("a", 3, "x", review.SeverityWarning, 1, "s"),
		finding("a", 4, "x", review.SeverityError, 1, "s"),
	}

	tests := []struct {
		threshold review.Severity
		want      int
	}{
		{review.SeverityNote, 4},
		{review.SeveritySuggestion, 3},
		{review.SeverityWarning, 2},
		{review.SeverityError, 1},
		{"", 4},
	}

	for _, tt := range tests {
		t.Run(string(tt.threshold), func(t *testing.T) {
			once := Filter(input, tt.threshold)
			if len(once) != tt.want {
				t.Errorf("Filter(%s) kept %d, want %d", tt.threshold, len(once), tt.want)
			}
			for _, f := range once {
				if f.Severity.Rank() < tt.threshold.Rank() {
					t.Errorf("Filter(%s) kept %s", tt.threshold, f.Severity)
				}
			}
			if twice := Filter(once, tt.threshold); !reflect.DeepEqual(once, twice) {
				t.Errorf("Filter(%s) is not idempotent", tt.threshold)
			}
		})
	}
}

func TestCountBySeverity(t *testing.T) {
	counts := CountBySeverity([]review.Finding{
		{Severity: review.SeverityError},
		{Severity: review.SeverityError},
		{Severity: review.SeverityNote},
	})
	if counts[review.SeverityError] != 2 || counts[review.SeverityNote] != 1 {
		t.Errorf("CountBySeverity() = %v", counts)
	}
}
