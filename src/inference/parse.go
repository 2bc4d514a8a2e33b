package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// RawFinding is one finding as returned by a model, before it is anchored to a chunk.
type RawFinding struct {
	// Line is 1-based and relative to the chunk the prompt carried.
	Line       int     `json:"line"`
	Severity   string  `json:"severity"`
	Category   string  `json:"category"`
	Message    string  `json:"message"`
	Suggestion string  `json:"suggestion,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Verdict is the judge's answer about a single finding.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

const findingsSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["line", "severity", "message"],
    "properties": {
      "line": {"type": "integer", "minimum": 1},
      "severity": {"type": "string"},
      "category": {"type": "string"},
      "message": {"type": "string", "minLength": 1},
      "suggestion": {"type": "string"},
      "confidence": {"type": "number", "minimum": 0, "maximum": 1}
    }
  }
}`

const verdictSchemaJSON = `{
  "type": "object",
  "required": ["valid"],
  "properties": {
    "valid": {"type": "boolean"},
    "reason": {"type": "string"}
  }
}`

var (
	findingsSchema = gojsonschema.NewStringLoader(findingsSchemaJSON)
	verdictSchema  = gojsonschema.NewStringLoader(verdictSchemaJSON)
)

// ParseFindings extracts a findings array from model output. The array may be
// wrapped in code fences, surrounded by prose, or nested under a "findings" key.
func ParseFindings(text string) ([]RawFinding, error) {
	payload := extractJSON(text, '[', ']')
	if payload == "" {
		if obj := extractJSON(text, '{', '}'); obj != "" {
			var wrapper struct {
				Findings json.RawMessage `json:"findings"`
			}
			if err := json.Unmarshal([]byte(obj), &wrapper); err == nil && len(wrapper.Findings) > 0 {
				payload = string(wrapper.Findings)
			}
		}
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON array found", ErrMalformedResponse)
	}

	if err := validate(findingsSchema, payload); err != nil {
		return nil, err
	}

	var findings []RawFinding
	if err := json.Unmarshal([]byte(payload), &findings); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return findings, nil
}

// ParseVerdict extracts a judge verdict object from model output.
func ParseVerdict(text string) (Verdict, error) {
	payload := extractJSON(text, '{', '}')
	if payload == "" {
		return Verdict{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	if err := validate(verdictSchema, payload); err != nil {
		return Verdict{}, err
	}

	var v Verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return v, nil
}

func validate(schema gojsonschema.JSONLoader, payload string) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformedResponse, strings.Join(issues, "; "))
	}
	return nil
}

// extractJSON strips code fences and returns the outermost open..close span.
func extractJSON(text string, open, close byte) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
