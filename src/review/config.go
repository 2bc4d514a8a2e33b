package review

// Detector kinds shipped with the module.
const (
	KindSecurity = "security"
	KindStyle    = "style"
	KindLogic    = "logic"
	KindPattern  = "pattern"
)

// CustomRule is a repository-defined pattern rule. It is attached to the
// pattern detector unless Kind names another detector.
type CustomRule struct {
	Name      string   `json:"name" yaml:"name"`
	Pattern   string   `json:"pattern" yaml:"pattern"`
	Message   string   `json:"message" yaml:"message"`
	Severity  Severity `json:"severity" yaml:"severity"`
	Category  string   `json:"category" yaml:"category"`
	Languages []string `json:"languages,omitempty" yaml:"languages,omitempty"`
	Kind      string   `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Configuration is resolved once per review and never changes afterwards.
type Configuration struct {
	MaxFindingsPerFile int             `json:"max_findings_per_file" yaml:"max_findings_per_file"`
	MaxFindingsTotal   int             `json:"max_findings_total" yaml:"max_findings_total"`
	SeverityThreshold  Severity        `json:"severity_threshold" yaml:"severity_threshold"`
	EnabledDetectors   map[string]bool `json:"enabled_detectors" yaml:"enabled_detectors"`
	CustomRules        []CustomRule    `json:"custom_rules,omitempty" yaml:"custom_rules,omitempty"`
	// MaxChunkLines bounds the number of new-file lines per chunk.
	MaxChunkLines int `json:"max_chunk_lines" yaml:"max_chunk_lines"`
	// InferenceMinLines is the chunk size above which detectors call the inference capability.
	InferenceMinLines int `json:"inference_min_lines" yaml:"inference_min_lines"`
	// ValidationSkipAbove accepts findings at or above this confidence without
	// judging them. 0 judges every finding; nil in an override inherits the base.
	ValidationSkipAbove *float64 `json:"validation_skip_above,omitempty" yaml:"validation_skip_above,omitempty"`
}

// DefaultConfiguration returns the baseline every repository override is merged onto.
func DefaultConfiguration() Configuration {
	skipAbove := 0.9
	return Configuration{
		MaxFindingsPerFile:  10,
		MaxFindingsTotal:    50,
		SeverityThreshold:   SeveritySuggestion,
		EnabledDetectors:    map[string]bool{},
		MaxChunkLines:       200,
		InferenceMinLines:   20,
		ValidationSkipAbove: &skipAbove,
	}
}

// SkipAbove returns the judge bypass threshold, 0 when unset.
func (c Configuration) SkipAbove() float64 {
	if c.ValidationSkipAbove == nil {
		return 0
	}
	return *c.ValidationSkipAbove
}

// DetectorEnabled reports whether kind is enabled. Kinds absent from the map are enabled.
func (c Configuration) DetectorEnabled(kind string) bool {
	enabled, ok := c.EnabledDetectors[kind]
	return !ok || enabled
}

// Merge overlays non-zero fields of override onto c and returns the result.
// ValidationSkipAbove is overlaid whenever the override sets it, zero included.
func (c Configuration) Merge(override Configuration) Configuration {
	out := c
	if override.MaxFindingsPerFile > 0 {
		out.MaxFindingsPerFile = override.MaxFindingsPerFile
	}
	if override.MaxFindingsTotal > 0 {
		out.MaxFindingsTotal = override.MaxFindingsTotal
	}
	if override.SeverityThreshold != "" {
		out.SeverityThreshold = override.SeverityThreshold
	}
	if override.MaxChunkLines > 0 {
		out.MaxChunkLines = override.MaxChunkLines
	}
	if override.InferenceMinLines > 0 {
		out.InferenceMinLines = override.InferenceMinLines
	}
	skip := c.ValidationSkipAbove
	if override.ValidationSkipAbove != nil {
		skip = override.ValidationSkipAbove
	}
	if skip != nil {
		v := *skip
		out.ValidationSkipAbove = &v
	}

	out.EnabledDetectors = make(map[string]bool, len(c.EnabledDetectors)+len(override.EnabledDetectors))
	for k, v := range c.EnabledDetectors {
		out.EnabledDetectors[k] = v
	}
	for k, v := range override.EnabledDetectors {
		out.EnabledDetectors[k] = v
	}

	out.CustomRules = append(append([]CustomRule(nil), c.CustomRules...), override.CustomRules...)
	return out
}
