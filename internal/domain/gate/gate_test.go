package gate

import (
	"math"
	"strings"
	"testing"

	"github.com/Strob0t/ReviewFlow/internal/domain/document"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEvaluate_ReportExplicitScore(t *testing.T) {
	out := Evaluate(document.KindReport, map[string]any{"completeness_score": float64(8)}, "looks solid", DefaultThreshold)

	if !almostEqual(out.Confidence, 0.77) {
		t.Fatalf("confidence = %v, want 0.77", out.Confidence)
	}
	if !out.Pass {
		t.Fatal("expected pass at threshold 0.70")
	}
	if out.Reason != "" {
		t.Fatalf("pass outcome should carry no reason, got %q", out.Reason)
	}
}

func TestEvaluate_ReportExplicitScoreClamped(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  float64
	}{
		{"zero clamps to floor", 0, 0.1},
		{"ten clamps to ceiling", 10, 0.9},
		{"mid scale", 5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(document.KindReport, map[string]any{"completeness_score": tt.score}, "", DefaultThreshold)
			if !almostEqual(out.Confidence, tt.want) {
				t.Fatalf("confidence = %v, want %v", out.Confidence, tt.want)
			}
		})
	}
}

func TestEvaluate_ReportHeuristic(t *testing.T) {
	payload := map[string]any{
		"summary":     strings.Repeat("x", 130),
		"highlights":  []any{"shipped ingest", "fixed flaky tests"},
		"concerns":    []any{"on-call load"},
		"suggestions": []any{"rotate pager", "split the queue"},
	}
	out := Evaluate(document.KindReport, payload, "weekly report", DefaultThreshold)

	// 0.35 + 0.10 + 0.05 + 0.10 + 0.05 + 0.10 + 0.05 clamps to 0.85.
	if !almostEqual(out.Confidence, 0.85) {
		t.Fatalf("confidence = %v, want 0.85", out.Confidence)
	}
	if !out.Pass {
		t.Fatal("expected pass")
	}
}

func TestEvaluate_ReportHeuristicBaseline(t *testing.T) {
	out := Evaluate(document.KindReport, map[string]any{}, "", DefaultThreshold)
	if !almostEqual(out.Confidence, 0.35) {
		t.Fatalf("confidence = %v, want baseline 0.35", out.Confidence)
	}
	if out.Pass {
		t.Fatal("baseline must fail the default threshold")
	}
}

func TestEvaluate_ReportHeuristicIgnoresEmptyEntries(t *testing.T) {
	payload := map[string]any{
		"highlights":  []any{"", ""},
		"suggestions": []any{""},
	}
	out := Evaluate(document.KindReport, payload, "", DefaultThreshold)
	if !almostEqual(out.Confidence, 0.35) {
		t.Fatalf("confidence = %v, want 0.35 (empty entries must not count)", out.Confidence)
	}
}

func TestEvaluate_ReportParseFailure(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"nil payload", nil},
		{"parse error marker", map[string]any{ParseErrorKey: true, "completeness_score": float64(9)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(document.KindReport, tt.payload, "", DefaultThreshold)
			if !almostEqual(out.Confidence, 0.4) {
				t.Fatalf("confidence = %v, want forced 0.4", out.Confidence)
			}
		})
	}
}

func TestEvaluate_ProjectRiskAdjustment(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    float64
	}{
		{"high risk", map[string]any{"feasibility_score": float64(5), "risk_level": "HIGH"}, 0.4},
		{"low risk", map[string]any{"feasibility_score": float64(8), "risk_level": "LOW"}, 0.9},
		{"medium risk", map[string]any{"feasibility_score": float64(7), "risk_level": "MEDIUM"}, 0.7},
		{"no risk level", map[string]any{"feasibility_score": float64(7)}, 0.7},
		{"ceiling clamp", map[string]any{"feasibility_score": float64(10), "risk_level": "LOW"}, 0.95},
		{"floor clamp", map[string]any{"feasibility_score": float64(0), "risk_level": "HIGH"}, 0.1},
		{"no score defaults", map[string]any{}, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(document.KindProject, tt.payload, "", DefaultThreshold)
			if !almostEqual(out.Confidence, tt.want) {
				t.Fatalf("confidence = %v, want %v", out.Confidence, tt.want)
			}
		})
	}
}

func TestEvaluate_FailureReasonCarriesNumbers(t *testing.T) {
	payload := map[string]any{"feasibility_score": float64(5), "risk_level": "HIGH"}
	out := Evaluate(document.KindProject, payload, "scope too broad", DefaultThreshold)

	if out.Pass {
		t.Fatal("expected fail")
	}
	for _, want := range []string{"40%", "70%", "scope too broad"} {
		if !strings.Contains(out.Reason, want) {
			t.Fatalf("reason %q missing %q", out.Reason, want)
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	payload := map[string]any{
		"summary":    strings.Repeat("y", 80),
		"highlights": []any{"one"},
	}
	first := Evaluate(document.KindReport, payload, "s", DefaultThreshold)
	for i := 0; i < 10; i++ {
		if got := Evaluate(document.KindReport, payload, "s", DefaultThreshold); got != first {
			t.Fatalf("gate not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestEvaluate_IntegerScoreTolerated(t *testing.T) {
	out := Evaluate(document.KindReport, map[string]any{"completeness_score": 8}, "", DefaultThreshold)
	if !almostEqual(out.Confidence, 0.77) {
		t.Fatalf("confidence = %v, want 0.77 for int score", out.Confidence)
	}
}
