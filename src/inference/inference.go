// Package inference defines the external inference capability used by detectors
// and the validation pass, plus an HTTP client and response parsing.
package inference

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when no inference backend is configured.
	ErrUnavailable = errors.New("inference capability unavailable")

	// ErrMalformedResponse is returned when a response cannot be parsed into the expected shape.
	ErrMalformedResponse = errors.New("malformed inference response")
)

// Prompt is the instruction and payload sent to a model.
type Prompt struct {
	System string
	User   string
}

// Params tunes a single call.
type Params struct {
	MaxTokens   int
	Temperature float64
	// Timeout bounds the call. Zero uses the generator's default.
	Timeout time.Duration
}

// Generator produces text (usually JSON) from a prompt.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, params Params) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt Prompt, params Params) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	return f(ctx, prompt, params)
}

// Disabled is a Generator that always fails with ErrUnavailable.
type Disabled struct{}

// Generate implements Generator.
func (Disabled) Generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	return "", ErrUnavailable
}
