// Package gate implements the confidence gate: a pure scoring function that
// converts an analysis payload into a confidence value and a pass/fail
// decision. No I/O, deterministic given its input.
package gate

import (
	"fmt"

	"github.com/Strob0t/ReviewFlow/internal/domain/document"
)

// ParseErrorKey marks a payload whose provider response could not be parsed
// into structured data. The orchestrator sets it; the report profile forces
// confidence to 0.4 when it is present.
const ParseErrorKey = "parse_error"

// DefaultThreshold is the confidence required to pass the automated stage.
const DefaultThreshold = 0.70

// Outcome is the gate's decision for one analysis payload.
type Outcome struct {
	Confidence float64
	Pass       bool
	Reason     string
}

// Evaluate scores the payload with the profile matching the document kind and
// compares the confidence against the threshold. On failure, Reason carries
// the analysis summary prefixed with the numeric confidence and threshold.
func Evaluate(kind document.Kind, payload map[string]any, summary string, threshold float64) Outcome {
	var confidence float64
	if kind == document.KindProject {
		confidence = scoreProject(payload)
	} else {
		confidence = scoreReport(payload)
	}

	out := Outcome{Confidence: confidence, Pass: confidence >= threshold}
	if !out.Pass {
		out.Reason = fmt.Sprintf("confidence %.0f%% below threshold %.0f%%: %s",
			confidence*100, threshold*100, summary)
	}
	return out
}

// scoreReport implements the report profile. An explicit completeness_score
// (0-10) dominates; otherwise a heuristic over the structured fields applies.
// The heuristic constants encode an existing calibration and are kept as-is.
func scoreReport(payload map[string]any) float64 {
	if payload == nil || truthy(payload[ParseErrorKey]) {
		return 0.4
	}

	if score, ok := numberField(payload, "completeness_score"); ok {
		return clamp(score/10*0.9+0.05, 0.1, 0.9)
	}

	confidence := 0.35

	if n := len(stringField(payload, "summary")); n >= 60 {
		confidence += 0.10
		if n >= 120 {
			confidence += 0.05
		}
	}

	if n := countNonEmpty(payload, "highlights"); n >= 1 {
		confidence += 0.10
		if n > 2 {
			confidence += 0.05
		}
	}

	if countNonEmpty(payload, "concerns") >= 1 {
		confidence += 0.05
	}

	if n := countNonEmpty(payload, "suggestions"); n >= 1 {
		confidence += 0.10
		if n > 1 {
			confidence += 0.05
		}
	}

	return clamp(confidence, 0.2, 0.85)
}

// scoreProject implements the project profile: an explicit feasibility_score
// (0-10) adjusted by the declared risk level, defaulting to 0.7 without one.
func scoreProject(payload map[string]any) float64 {
	score, ok := numberField(payload, "feasibility_score")
	if !ok {
		return 0.7
	}

	var adjustment float64
	switch stringField(payload, "risk_level") {
	case "LOW":
		adjustment = 0.10
	case "HIGH":
		adjustment = -0.10
	}

	return clamp(score/10+adjustment, 0.1, 0.95)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// numberField extracts a numeric field, tolerating the float64 produced by
// encoding/json as well as plain ints.
func numberField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

func truthy(v any) bool {
	b, _ := v.(bool)
	return b
}

// countNonEmpty counts non-empty string entries in a list-valued field.
func countNonEmpty(payload map[string]any, key string) int {
	items, _ := payload[key].([]any)
	n := 0
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			n++
		}
	}
	return n
}
