package inference

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
)

// ResilientConfig tunes retry and timeout behaviour.
type ResilientConfig struct {
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
}

// DefaultResilientConfig returns settings suitable for per-chunk calls.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:      60 * time.Second,
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
	}
}

// Resilient wraps a Generator with a per-call timeout around exponential-backoff retries.
type Resilient struct {
	inner Generator
	cfg   ResilientConfig
}

// NewResilient wraps inner. Zero fields in cfg take the defaults.
func NewResilient(inner Generator, cfg ResilientConfig) *Resilient {
	def := DefaultResilientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	return &Resilient{inner: inner, cfg: cfg}
}

// Generate implements Generator.
func (r *Resilient) Generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	d := params.Timeout
	if d <= 0 {
		d = r.cfg.Timeout
	}

	rt := retry.New[string](retry.Config{
		MaxAttempts:   r.cfg.MaxAttempts,
		InitialDelay:  r.cfg.InitialDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	to := timeout.New[string](timeout.Config{
		DefaultTimeout: d,
	})

	return to.Execute(ctx, d, func(ctx context.Context) (string, error) {
		return rt.Do(ctx, func(ctx context.Context) (string, error) {
			return r.inner.Generate(ctx, prompt, params)
		})
	})
}
