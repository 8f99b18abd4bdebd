package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/ReviewFlow/internal/domain"
	"github.com/Strob0t/ReviewFlow/internal/domain/analysis"
	"github.com/Strob0t/ReviewFlow/internal/domain/document"
	"github.com/Strob0t/ReviewFlow/internal/pool"
	"github.com/Strob0t/ReviewFlow/internal/port/analyzer"
)

// fakeAnalyzer returns a canned response, optionally after a delay.
type fakeAnalyzer struct {
	response string
	err      error
	delay    time.Duration
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, _ analyzer.Request) (string, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return a.response, a.err
}

func newOrchestratorFixture(t *testing.T, provider analyzer.Analyzer, timeout time.Duration) (*WorkflowService, *OrchestratorService, *memStore) {
	t.Helper()
	store := newMemStore()
	sink := &recordingSink{}
	workflow := NewWorkflowService(store, sink, nil)
	orch := NewOrchestratorService(store, provider, workflow, pool.New("analysis-test", 2, 8), timeout, 0.70, nil)
	workflow.SetEvaluator(orch)
	t.Cleanup(orch.Close)
	return workflow, orch, store
}

// waitForStatus polls until the document leaves the automated stage.
func waitForStatus(t *testing.T, store *memStore, id string, want document.Status) *document.Document {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := store.GetDocument(context.Background(), id)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if doc.Status == want {
			return doc
		}
		time.Sleep(5 * time.Millisecond)
	}
	doc, _ := store.GetDocument(context.Background(), id)
	t.Fatalf("document %s stuck in %s, want %s", id, doc.Status, want)
	return nil
}

func findAnalysis(t *testing.T, store *memStore, documentID string) *analysis.Result {
	t.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, r := range store.analyses {
		if r.DocumentID == documentID {
			out := *r
			return &out
		}
	}
	t.Fatalf("no analysis recorded for document %s", documentID)
	return nil
}

func submitReport(t *testing.T, workflow *WorkflowService, content string) *document.Document {
	t.Helper()
	doc, err := workflow.CreateDocument(context.Background(), document.CreateRequest{
		Kind:    document.KindReport,
		OwnerID: owner.ID,
		Title:   "Week 34 status",
		Content: content,
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := workflow.Submit(context.Background(), doc.ID, owner); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return doc
}

func TestEvaluationPassMovesToHumanReview(t *testing.T) {
	provider := &fakeAnalyzer{response: `{"completeness_score": 8, "summary": "thorough weekly report"}`}
	workflow, _, store := newOrchestratorFixture(t, provider, time.Second)

	doc := submitReport(t, workflow, "Shipped the importer, unblocked the data team.")
	got := waitForStatus(t, store, doc.ID, document.StatusHumanReview)

	if got.AnalysisID == "" {
		t.Error("analysis id not recorded on document")
	}
	result := findAnalysis(t, store, doc.ID)
	if result.Status != analysis.StatusCompleted {
		t.Errorf("analysis status = %s, want completed", result.Status)
	}
	if result.Confidence == nil || *result.Confidence < 0.76 || *result.Confidence > 0.78 {
		t.Errorf("confidence = %v, want about 0.77 for score 8", result.Confidence)
	}
	if result.Summary != "thorough weekly report" {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestEvaluationLowScoreRejectsWithReason(t *testing.T) {
	provider := &fakeAnalyzer{response: `{"feasibility_score": 5, "risk_level": "HIGH", "summary": "timeline is unrealistic"}`}
	workflow, _, store := newOrchestratorFixture(t, provider, time.Second)

	doc, err := workflow.CreateDocument(context.Background(), document.CreateRequest{
		Kind:    document.KindProject,
		OwnerID: owner.ID,
		Title:   "Rewrite everything",
		Content: "Rebuild the stack in a quarter.",
	})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := workflow.Submit(context.Background(), doc.ID, owner); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := waitForStatus(t, store, doc.ID, document.StatusRejected)
	if got.RejectedBy != document.StageAutomated {
		t.Errorf("rejected by = %s, want automated", got.RejectedBy)
	}
	if !strings.Contains(got.RejectionReason, "40%") || !strings.Contains(got.RejectionReason, "70%") {
		t.Errorf("reason = %q, want confidence and threshold percentages", got.RejectionReason)
	}
	if !strings.Contains(got.RejectionReason, "timeline is unrealistic") {
		t.Errorf("reason = %q, want provider summary", got.RejectionReason)
	}
}

func TestEvaluationParsesFencedJSON(t *testing.T) {
	provider := &fakeAnalyzer{response: "```json\n{\"completeness_score\": 9, \"summary\": \"great\"}\n```"}
	workflow, _, store := newOrchestratorFixture(t, provider, time.Second)

	doc := submitReport(t, workflow, "Detailed update with metrics and next steps.")
	waitForStatus(t, store, doc.ID, document.StatusHumanReview)
}

func TestEvaluationUnparsableOutputRejects(t *testing.T) {
	provider := &fakeAnalyzer{response: "I could not produce structured output, sorry."}
	workflow, _, store := newOrchestratorFixture(t, provider, time.Second)

	doc := submitReport(t, workflow, "Some content.")
	got := waitForStatus(t, store, doc.ID, document.StatusRejected)

	if !strings.Contains(got.RejectionReason, "40%") {
		t.Errorf("reason = %q, want the parse-failure floor confidence", got.RejectionReason)
	}
}

func TestEvaluationProviderErrorRejects(t *testing.T) {
	provider := &fakeAnalyzer{err: errors.New("upstream 502")}
	workflow, _, store := newOrchestratorFixture(t, provider, time.Second)

	doc := submitReport(t, workflow, "Some content.")
	got := waitForStatus(t, store, doc.ID, document.StatusRejected)

	if !strings.Contains(got.RejectionReason, "automated analysis failed") {
		t.Errorf("reason = %q, want failure wording", got.RejectionReason)
	}
	result := findAnalysis(t, store, doc.ID)
	if result.Status != analysis.StatusFailed {
		t.Errorf("analysis status = %s, want failed", result.Status)
	}
}

func TestEvaluationTimeoutRejects(t *testing.T) {
	provider := &fakeAnalyzer{response: `{"completeness_score": 9}`, delay: 500 * time.Millisecond}
	workflow, _, store := newOrchestratorFixture(t, provider, 30*time.Millisecond)

	doc := submitReport(t, workflow, "Some content.")
	got := waitForStatus(t, store, doc.ID, document.StatusRejected)

	if !strings.Contains(got.RejectionReason, "timed out") {
		t.Errorf("reason = %q, want timeout wording", got.RejectionReason)
	}
}

func TestReserveRefusesSecondEvaluation(t *testing.T) {
	provider := &fakeAnalyzer{response: `{"completeness_score": 8}`}
	_, orch, _ := newOrchestratorFixture(t, provider, time.Second)

	if err := orch.Reserve(context.Background(), "doc-x"); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if err := orch.Reserve(context.Background(), "doc-x"); !errors.Is(err, domain.ErrAlreadyProcessing) {
		t.Fatalf("second Reserve err = %v, want ErrAlreadyProcessing", err)
	}
	orch.Release("doc-x")
	if err := orch.Reserve(context.Background(), "doc-x"); err != nil {
		t.Fatalf("Reserve after Release: %v", err)
	}
}

func TestReserveSeesRunningAnalysisInStore(t *testing.T) {
	provider := &fakeAnalyzer{response: `{"completeness_score": 8}`}
	_, orch, store := newOrchestratorFixture(t, provider, time.Second)

	if err := store.CreateAnalysis(context.Background(), &analysis.Result{
		ID: "an-running", DocumentID: "doc-y", Status: analysis.StatusRunning,
	}); err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	if err := orch.Reserve(context.Background(), "doc-y"); !errors.Is(err, domain.ErrAlreadyProcessing) {
		t.Fatalf("Reserve err = %v, want ErrAlreadyProcessing for a stored running analysis", err)
	}
}
