package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := LevelFromString(tt.input); got != tt.want {
				t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlogLoggerFormatsAndFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(&buf, "info")

	log.Debug("hidden %d", 1)
	log.Warn("[Worker] retrying job %s", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	if !strings.Contains(out, "retrying job abc") {
		t.Errorf("expected formatted warn message, got %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected level=WARN attribute, got %q", out)
	}
}

func TestOrSilent(t *testing.T) {
	if _, ok := OrSilent(nil).(*SilentLogger); !ok {
		t.Error("OrSilent(nil) should return a SilentLogger")
	}
	console := NewConsoleLogger()
	if OrSilent(console) != Logger(console) {
		t.Error("OrSilent should pass through a non-nil logger")
	}
}
