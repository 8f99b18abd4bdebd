// Package analysis defines the AnalysisResult entity produced by the
// automated evaluation stage.
package analysis

import "time"

// Status represents the lifecycle state of an analysis run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result records a single automated evaluation of a document. A result is
// owned exclusively by the analysis orchestrator and is immutable once it
// reaches a terminal status.
type Result struct {
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	Status       Status         `json:"status"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Terminal reports whether the result has reached a final status.
func (r *Result) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
