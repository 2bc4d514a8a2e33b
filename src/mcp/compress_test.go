package mcp

import (
	"strings"
	"testing"
)

func TestDedent(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "shared spaces",
			input: []string{"    a", "      b", "    c"},
			want:  []string{"a", "  b", "c"},
		},
		{
			name:  "blank lines ignored",
			input: []string{"\tx", "", "\ty"},
			want:  []string{"x", "", "y"},
		},
		{
			name:  "mixed indent keeps common part",
			input: []string{"  \ta", "  b"},
			want:  []string{"\ta", "b"},
		},
		{
			name:  "no indent",
			input: []string{"a", "  b"},
			want:  []string{"a", "  b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedent(tt.input)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("dedent(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	got := truncate(strings.Repeat("é", 20), 10)
	if got != strings.Repeat("é", 7)+"..." {
		t.Errorf("truncate() = %q", got)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	if got := normalizeWhitespace("  a \t b\n\nc  "); got != "a b c" {
		t.Errorf("normalizeWhitespace() = %q", got)
	}
}
