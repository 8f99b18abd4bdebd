package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelad "github.com/Strob0t/ReviewFlow/internal/adapter/otel"
	"github.com/Strob0t/ReviewFlow/internal/domain"
	"github.com/Strob0t/ReviewFlow/internal/domain/analysis"
	"github.com/Strob0t/ReviewFlow/internal/domain/document"
	"github.com/Strob0t/ReviewFlow/internal/domain/gate"
	"github.com/Strob0t/ReviewFlow/internal/port/analyzer"
	"github.com/Strob0t/ReviewFlow/internal/port/database"
	"github.com/Strob0t/ReviewFlow/internal/pool"
)

// OrchestratorService runs the automated evaluation off the transition path:
// it schedules the external analysis call on a bounded pool, bounds its
// duration, scores the result through the confidence gate, and instructs the
// workflow to apply exactly one terminal transition per submission. Every
// failure mode ends in a rejection; a document never stays stuck in the
// automated stage.
type OrchestratorService struct {
	store     database.Store
	provider  analyzer.Analyzer
	workflow  *WorkflowService
	pool      *pool.Pool
	timeout   time.Duration
	threshold float64
	metrics   *otelad.Metrics

	mu       sync.Mutex
	inflight map[string]bool
}

// NewOrchestratorService creates an OrchestratorService. The pool is injected
// so tests can substitute a deterministic inline executor. metrics may be nil.
func NewOrchestratorService(
	store database.Store,
	provider analyzer.Analyzer,
	workflow *WorkflowService,
	p *pool.Pool,
	timeout time.Duration,
	threshold float64,
	metrics *otelad.Metrics,
) *OrchestratorService {
	return &OrchestratorService{
		store:     store,
		provider:  provider,
		workflow:  workflow,
		pool:      p,
		timeout:   timeout,
		threshold: threshold,
		metrics:   metrics,
		inflight:  make(map[string]bool),
	}
}

// Reserve claims the single evaluation slot for a document. It fails with
// domain.ErrAlreadyProcessing if an evaluation is already in flight, either
// in this process or recorded as running in the store.
func (s *OrchestratorService) Reserve(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight[documentID] {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrAlreadyProcessing)
	}

	running, err := s.store.GetRunningAnalysis(ctx, documentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("check running analysis for %s: %w", documentID, err)
	}
	if running != nil {
		return fmt.Errorf("document %s has analysis %s running: %w", documentID, running.ID, domain.ErrAlreadyProcessing)
	}

	s.inflight[documentID] = true
	return nil
}

// Release undoes a reservation whose submit transition did not go through.
func (s *OrchestratorService) Release(documentID string) {
	s.mu.Lock()
	delete(s.inflight, documentID)
	s.mu.Unlock()
}

// Start records a running AnalysisResult and schedules the evaluation job.
// The caller must hold a reservation from Reserve. When the pool's backlog is
// full the job runs on the calling goroutine rather than being dropped.
func (s *OrchestratorService) Start(ctx context.Context, doc *document.Document) {
	result := &analysis.Result{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Status:     analysis.StatusRunning,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateAnalysis(ctx, result); err != nil {
		// The evaluation proceeds anyway: forward progress matters more than
		// the audit row, and the terminal update will be retried on finish.
		slog.Error("create analysis row failed", "document_id", doc.ID, "error", err)
	}

	snapshot := *doc
	s.pool.Submit(func() {
		s.evaluate(&snapshot, result)
	})
}

// evaluate runs one evaluation end to end. It always releases the in-flight
// slot and always hands a terminal outcome to the workflow.
func (s *OrchestratorService) evaluate(doc *document.Document, result *analysis.Result) {
	defer s.Release(doc.ID)

	// Detached from the submitting request: the evaluation outlives it.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ctx, span := otelad.StartEvaluationSpan(ctx, result.ID, doc.ID, string(doc.Kind))
	defer span.End()

	started := time.Now()
	text, err := s.callProvider(ctx, buildAnalysisRequest(doc))
	elapsed := time.Since(started)
	result.DurationMS = elapsed.Milliseconds()

	if s.metrics != nil {
		s.metrics.AnalysisDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("kind", string(doc.Kind))))
	}

	if err != nil {
		s.finishFailed(ctx, doc, result, err)
		return
	}

	payload := parseAnalysisPayload(text)
	summary := payloadSummary(payload, text)
	out := gate.Evaluate(doc.Kind, payload, summary, s.threshold)

	now := time.Now().UTC()
	confidence := out.Confidence
	result.Status = analysis.StatusCompleted
	result.Confidence = &confidence
	result.Summary = summary
	result.Payload = payload
	result.CompletedAt = &now
	if err := s.store.FinishAnalysis(context.WithoutCancel(ctx), result); err != nil {
		slog.Error("finish analysis failed", "analysis_id", result.ID, "document_id", doc.ID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.AnalysesCompleted.Add(ctx, 1)
	}
	slog.Info("analysis completed",
		"analysis_id", result.ID,
		"document_id", doc.ID,
		"confidence", out.Confidence,
		"pass", out.Pass,
		"duration_ms", result.DurationMS,
	)

	if err := s.workflow.ApplyGateOutcome(context.WithoutCancel(ctx), doc.ID, result.ID, out); err != nil {
		slog.Error("apply gate outcome failed", "document_id", doc.ID, "analysis_id", result.ID, "error", err)
	}
}

// finishFailed marks the result failed and synthesizes an automated rejection.
// Timeouts get a distinct reason so recipients can decide whether to retry.
func (s *OrchestratorService) finishFailed(ctx context.Context, doc *document.Document, result *analysis.Result, callErr error) {
	reason := fmt.Sprintf("automated analysis failed: %v", callErr)
	if errors.Is(callErr, context.DeadlineExceeded) {
		reason = fmt.Sprintf("automated analysis timed out after %s", s.timeout)
	}

	now := time.Now().UTC()
	result.Status = analysis.StatusFailed
	result.ErrorMessage = reason
	result.CompletedAt = &now
	if err := s.store.FinishAnalysis(context.WithoutCancel(ctx), result); err != nil {
		slog.Error("finish analysis failed", "analysis_id", result.ID, "document_id", doc.ID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.AnalysesFailed.Add(ctx, 1)
	}
	slog.Warn("analysis failed",
		"analysis_id", result.ID,
		"document_id", doc.ID,
		"reason", reason,
		"duration_ms", result.DurationMS,
	)

	out := gate.Outcome{Pass: false, Reason: reason}
	if err := s.workflow.ApplyGateOutcome(context.WithoutCancel(ctx), doc.ID, result.ID, out); err != nil {
		slog.Error("apply gate outcome failed", "document_id", doc.ID, "analysis_id", result.ID, "error", err)
	}
}

// callProvider invokes the provider in a goroutine so the deadline holds even
// against an implementation that ignores context cancellation.
func (s *OrchestratorService) callProvider(ctx context.Context, req analyzer.Request) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		text, err := s.provider.Analyze(ctx, req)
		ch <- outcome{text: text, err: err}
	}()

	select {
	case o := <-ch:
		return o.text, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close drains in-flight evaluations, waiting up to the configured timeout.
func (s *OrchestratorService) Close() {
	if !s.pool.CloseTimeout(s.timeout) {
		slog.Warn("orchestrator shutdown timed out with evaluations still running")
	}
}

// GetAnalysis returns an analysis result by ID.
func (s *OrchestratorService) GetAnalysis(ctx context.Context, id string) (*analysis.Result, error) {
	return s.store.GetAnalysis(ctx, id)
}

const (
	reportSystemPrompt = `You are a quality reviewer for internal weekly reports. Assess how complete and substantive the report is. Respond with a single JSON object with the fields: completeness_score (number 0-10), summary (string), highlights (array of strings), concerns (array of strings), suggestions (array of strings).`

	projectSystemPrompt = `You are a feasibility reviewer for internal project proposals. Assess whether the proposal is realistic and well scoped. Respond with a single JSON object with the fields: feasibility_score (number 0-10), risk_level ("LOW", "MEDIUM" or "HIGH"), summary (string).`
)

// buildAnalysisRequest builds the role-appropriate prompt pair for a document.
func buildAnalysisRequest(doc *document.Document) analyzer.Request {
	system := reportSystemPrompt
	if doc.Kind == document.KindProject {
		system = projectSystemPrompt
	}
	return analyzer.Request{
		System: system,
		Prompt: fmt.Sprintf("Title: %s\n\n%s", doc.Title, doc.Content),
	}
}

// parseAnalysisPayload extracts the structured payload from provider output,
// tolerating markdown code fences and malformed JSON. Responses that cannot
// be parsed become a payload carrying only the raw text and a parse-failure
// marker; this never fails.
func parseAnalysisPayload(text string) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil || payload == nil {
		return map[string]any{
			"raw_text":         text,
			gate.ParseErrorKey: true,
		}
	}
	return payload
}

// payloadSummary picks the summary text surfaced to reviewers and in
// rejection reasons.
func payloadSummary(payload map[string]any, raw string) string {
	if s, ok := payload["summary"].(string); ok && s != "" {
		return s
	}
	return truncate(strings.TrimSpace(raw), 200)
}

// extractJSON attempts to extract a JSON object from a string that may contain
// markdown fences or other surrounding text.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip markdown code fences
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}

	// Find first { and last }
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}

	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
