package inference

import (
	"errors"
	"testing"
)

func TestParseFindings(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantErr   bool
	}{
		{
			name:      "bare array",
			input:     `[{"line": 2, "severity": "warning", "category": "null-check", "message": "value may be nil", "confidence": 0.7}]`,
			wantCount: 1,
		},
		{
			name:      "fenced array",
			input:     "```json\n[{\"line\": 1, \"severity\": \"error\", \"message\": \"boom\"}]\n```",
			wantCount: 1,
		},
		{
			name:      "wrapped in object",
			input:     `{"findings": [{"line": 1, "severity": "note", "message": "a"}, {"line": 3, "severity": "note", "message": "b"}]}`,
			wantCount: 2,
		},
		{
			name:      "prose around array",
			input:     "Here is what I found:\n[{\"line\": 4, \"severity\": \"suggestion\", \"message\": \"rename\"}]\nThanks",
			wantCount: 1,
		},
		{
			name:      "empty array",
			input:     "[]",
			wantCount: 0,
		},
		{
			name:    "no json",
			input:   "Looks good to me!",
			wantErr: true,
		},
		{
			name:    "schema violation",
			input:   `[{"line": "two", "severity": "error", "message": "x"}]`,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			input:   `[{"line": 1, "severity": "error", "message": "x", "confidence": 3}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFindings(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("ParseFindings() error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFindings() unexpected error: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("ParseFindings() returned %d findings, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict("```json\n{\"valid\": false, \"reason\": \"test fixture\"}\n```")
	if err != nil {
		t.Fatalf("ParseVerdict() unexpected error: %v", err)
	}
	if v.Valid || v.Reason != "test fixture" {
		t.Errorf("ParseVerdict() = %+v", v)
	}

	if _, err := ParseVerdict(`{"reason": "missing valid"}`); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected schema error for missing field, got %v", err)
	}
	if _, err := ParseVerdict("yes"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected error for non-JSON verdict, got %v", err)
	}
}
