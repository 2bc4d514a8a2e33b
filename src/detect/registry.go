package detect

import (
	"fmt"
	"sync"

	"sift-agent/src/logger"
	"sift-agent/src/review"
)

// Factory builds a detector for one review. rules holds the custom rules
// configured for this kind.
type Factory func(env Env, rules []Rule) Detector

// Registry maps detector kinds to factories. It is constructed explicitly and
// passed to the pipeline; there is no process-wide registry.
type Registry struct {
	mu        sync.RWMutex
	env       Env
	factories map[string]Factory
	order     []string
}

// NewRegistry creates an empty registry. env is handed to every factory.
func NewRegistry(env Env) *Registry {
	env.Logger = logger.OrSilent(env.Logger)
	return &Registry{
		env:       env,
		factories: make(map[string]Factory),
	}
}

// NewBuiltinRegistry creates a registry holding the four built-in kinds.
func NewBuiltinRegistry(env Env) *Registry {
	r := NewRegistry(env)
	r.MustRegister(review.KindSecurity, func(env Env, rules []Rule) Detector { return NewSecurityDetector(env, rules...) })
	r.MustRegister(review.KindStyle, func(env Env, rules []Rule) Detector { return NewStyleDetector(env, rules...) })
	r.MustRegister(review.KindLogic, func(env Env, rules []Rule) Detector { return NewLogicDetector(env, rules...) })
	r.MustRegister(review.KindPattern, func(env Env, rules []Rule) Detector { return NewPatternDetector(env, rules...) })
	return r
}

// Register adds a kind. Registering an existing kind is an error.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("detector kind is required")
	}
	if factory == nil {
		return fmt.Errorf("detector factory for %q is nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("detector kind %q already registered", kind)
	}
	r.factories[kind] = factory
	r.order = append(r.order, kind)
	return nil
}

// MustRegister is Register that panics on error. Intended for wiring at startup.
func (r *Registry) MustRegister(kind string, factory Factory) {
	if err := r.Register(kind, factory); err != nil {
		panic(err)
	}
}

// Kinds returns registered kinds in registration order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// CreateEnabled instantiates every registered detector whose kind is enabled
// in cfg, in registration order. Kinds missing from cfg.EnabledDetectors are
// enabled. Custom rules that fail to compile are skipped with a warning.
func (r *Registry) CreateEnabled(cfg review.Configuration) []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	custom := make(map[string][]Rule)
	for _, cr := range cfg.CustomRules {
		kind := cr.Kind
		if kind == "" {
			kind = review.KindPattern
		}
		rule, err := CompileCustomRule(cr)
		if err != nil {
			r.env.Logger.Warn("[Registry] %v", err)
			continue
		}
		custom[kind] = append(custom[kind], rule)
	}

	var detectors []Detector
	for _, kind := range r.order {
		if !cfg.DetectorEnabled(kind) {
			continue
		}
		detectors = append(detectors, r.factories[kind](r.env, custom[kind]))
	}
	return detectors
}
