// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelad "github.com/Strob0t/ReviewFlow/internal/adapter/otel"
	"github.com/Strob0t/ReviewFlow/internal/domain"
	"github.com/Strob0t/ReviewFlow/internal/domain/document"
	"github.com/Strob0t/ReviewFlow/internal/domain/gate"
	"github.com/Strob0t/ReviewFlow/internal/port/database"
)

// Actor identifies who is requesting a transition. Role assignment happens at
// the transport boundary; the workflow only checks it against the permission
// table and the current stage.
type Actor struct {
	ID   string
	Name string
	Role document.Role
}

// systemActor is the automated stage applying gate outcomes.
var systemActor = Actor{ID: "system", Name: "Automated review", Role: document.RoleSystem}

// EventSink consumes transition events. Enqueue must not block the caller for
// a meaningful duration and must never return an error to it.
type EventSink interface {
	Enqueue(ev document.TransitionEvent)
}

// evaluator schedules automated evaluations. Reserve claims the single
// in-flight slot for a document before the submit transition is applied;
// Release undoes a claim whose transition failed; Start launches the job.
type evaluator interface {
	Reserve(ctx context.Context, documentID string) error
	Release(documentID string)
	Start(ctx context.Context, doc *document.Document)
}

// WorkflowService owns document status: it validates transition legality and
// applies the effects of gate and human decisions. Transitions apply
// atomically through a compare-and-swap on the document version.
type WorkflowService struct {
	store   database.Store
	events  EventSink
	metrics *otelad.Metrics
	eval    evaluator
}

// NewWorkflowService creates a WorkflowService. metrics may be nil.
func NewWorkflowService(store database.Store, events EventSink, metrics *otelad.Metrics) *WorkflowService {
	return &WorkflowService{store: store, events: events, metrics: metrics}
}

// SetEvaluator wires the analysis orchestrator after construction.
// The orchestrator itself depends on this service for gate outcomes.
func (s *WorkflowService) SetEvaluator(e evaluator) {
	s.eval = e
}

// CreateDocument creates a new draft document.
func (s *WorkflowService) CreateDocument(ctx context.Context, req document.CreateRequest) (*document.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	doc, err := s.store.CreateDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	slog.Info("document created", "document_id", doc.ID, "kind", doc.Kind, "owner_id", doc.OwnerID)
	return doc, nil
}

// GetDocument returns a document by ID.
func (s *WorkflowService) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// ListDocuments returns all documents owned by the given user.
func (s *WorkflowService) ListDocuments(ctx context.Context, ownerID string) ([]document.Document, error) {
	return s.store.ListDocumentsByOwner(ctx, ownerID)
}

// UpdateContent edits a document's title and content. Content is mutable only
// in draft and rejected states, and only by the owner.
func (s *WorkflowService) UpdateContent(ctx context.Context, id string, actor Actor, title, content string) (*document.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != document.RoleOwner || actor.ID != doc.OwnerID {
		return nil, fmt.Errorf("only the owner may edit document %s: %w", id, domain.ErrInvalidState)
	}
	if !doc.IsMutable() {
		return nil, fmt.Errorf("content is frozen in %s: %w", doc.Status, domain.ErrInvalidState)
	}

	expected := doc.Version
	doc.Title = title
	doc.Content = content
	doc.UpdatedAt = time.Now().UTC()
	doc.Version++
	if err := s.store.UpdateDocument(ctx, doc, expected); err != nil {
		return nil, err
	}
	return doc, nil
}

// Submit moves a draft or rejected document into the automated stage and
// schedules its evaluation. A duplicate submission while an evaluation is in
// flight fails with domain.ErrAlreadyProcessing and changes nothing.
func (s *WorkflowService) Submit(ctx context.Context, id string, actor Actor) (*document.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(doc, actor, document.ActionSubmit); err != nil {
		return nil, err
	}
	target, err := document.Next(doc.Kind, doc.Status, document.ActionSubmit)
	if err != nil {
		return nil, err
	}
	if err := doc.ValidateForSubmission(); err != nil {
		return nil, err
	}

	// Claim the evaluation slot before touching state so a duplicate submit
	// is rejected without a partial transition.
	if err := s.eval.Reserve(ctx, doc.ID); err != nil {
		return nil, err
	}

	expected := doc.Version
	now := time.Now().UTC()
	doc.Status = target
	doc.RejectedBy = ""
	doc.RejectionReason = ""
	doc.SubmittedAt = &now
	doc.StageEnteredAt = now
	doc.UpdatedAt = now
	doc.Version++

	if err := s.store.UpdateDocument(ctx, doc, expected); err != nil {
		s.eval.Release(doc.ID)
		return nil, err
	}

	s.eval.Start(ctx, doc)
	s.emit(ctx, doc, actor, document.ActionSubmit, target, "")
	return doc, nil
}

// Approve applies a reviewer approval for the current stage.
func (s *WorkflowService) Approve(ctx context.Context, id string, actor Actor) (*document.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(doc, actor, document.ActionApprove); err != nil {
		return nil, err
	}
	target, err := document.Next(doc.Kind, doc.Status, document.ActionApprove)
	if err != nil {
		return nil, err
	}

	expected := doc.Version
	s.recordReviewer(doc, actor)
	s.stamp(doc, target)
	if err := s.store.UpdateDocument(ctx, doc, expected); err != nil {
		return nil, err
	}

	s.emit(ctx, doc, actor, document.ActionApprove, target, "")
	return doc, nil
}

// Reject applies a reviewer rejection for the current stage, recording which
// stage produced it and the reviewer's reason.
func (s *WorkflowService) Reject(ctx context.Context, id string, actor Actor, reason string) (*document.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(doc, actor, document.ActionReject); err != nil {
		return nil, err
	}
	target, err := document.Next(doc.Kind, doc.Status, document.ActionReject)
	if err != nil {
		return nil, err
	}

	expected := doc.Version
	stage := document.RejectionStageFor(doc.Status)
	s.recordReviewer(doc, actor)
	s.stamp(doc, target)
	doc.RejectedBy = stage
	doc.RejectionReason = reason
	if err := s.store.UpdateDocument(ctx, doc, expected); err != nil {
		return nil, err
	}

	s.emit(ctx, doc, actor, document.ActionReject, target, reason)
	return doc, nil
}

// ForceAdvance lets the owner override an automated rejection and move the
// document straight to the first human review stage.
func (s *WorkflowService) ForceAdvance(ctx context.Context, id string, actor Actor) (*document.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(doc, actor, document.ActionForceAdvance); err != nil {
		return nil, err
	}
	if doc.RejectedBy != document.StageAutomated {
		return nil, fmt.Errorf("force-advance only overrides automated rejections, document %s was rejected by %s: %w",
			id, doc.RejectedBy, domain.ErrInvalidState)
	}
	target, err := document.Next(doc.Kind, doc.Status, document.ActionForceAdvance)
	if err != nil {
		return nil, err
	}

	expected := doc.Version
	s.stamp(doc, target)
	doc.RejectedBy = ""
	doc.RejectionReason = ""
	if err := s.store.UpdateDocument(ctx, doc, expected); err != nil {
		return nil, err
	}

	s.emit(ctx, doc, actor, document.ActionForceAdvance, target, "")
	return doc, nil
}

// ApplyGateOutcome applies the confidence gate's decision for a completed
// evaluation. The document is re-loaded and the transition skipped (logged)
// if it has already left the automated stage for an unrelated reason.
func (s *WorkflowService) ApplyGateOutcome(ctx context.Context, documentID, analysisID string, out gate.Outcome) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("gate outcome load document %s: %w", documentID, err)
	}
	if doc.Status != document.StatusAutoReview {
		slog.Warn("gate outcome for document no longer under automated review, skipping",
			"document_id", documentID, "status", doc.Status, "analysis_id", analysisID)
		return nil
	}

	action := document.ActionAutoFail
	if out.Pass {
		action = document.ActionAutoPass
	}
	target, err := document.Next(doc.Kind, doc.Status, action)
	if err != nil {
		return err
	}

	expected := doc.Version
	s.stamp(doc, target)
	doc.AnalysisID = analysisID
	if !out.Pass {
		doc.RejectedBy = document.StageAutomated
		doc.RejectionReason = out.Reason
	}
	if err := s.store.UpdateDocument(ctx, doc, expected); err != nil {
		return fmt.Errorf("gate outcome update document %s: %w", documentID, err)
	}

	s.emit(ctx, doc, systemActor, action, target, out.Reason)
	return nil
}

// authorize checks the role permission table and that the actor matches the
// document (owner identity or stage-appropriate reviewer role).
func (s *WorkflowService) authorize(doc *document.Document, actor Actor, action document.Action) error {
	if !document.Allowed(actor.Role, action) {
		return fmt.Errorf("role %s may not %s: %w", actor.Role, action, domain.ErrInvalidState)
	}
	switch actor.Role {
	case document.RoleOwner:
		if actor.ID != doc.OwnerID {
			return fmt.Errorf("actor %s is not the owner of document %s: %w", actor.ID, doc.ID, domain.ErrInvalidState)
		}
	case document.RoleReviewerL1, document.RoleReviewerL2:
		if document.ReviewerRoleFor(doc.Status) != actor.Role {
			return fmt.Errorf("role %s does not review stage %s: %w", actor.Role, doc.Status, domain.ErrInvalidState)
		}
	}
	return nil
}

// recordReviewer stores which reviewer acted at the current stage.
func (s *WorkflowService) recordReviewer(doc *document.Document, actor Actor) {
	switch document.ReviewerRoleFor(doc.Status) {
	case document.RoleReviewerL1:
		doc.L1ReviewerID = actor.ID
	case document.RoleReviewerL2:
		doc.L2ReviewerID = actor.ID
	}
}

// stamp applies the bookkeeping every accepted transition shares: target
// status, timestamps, version bump, and clearing stale rejection fields when
// leaving the rejected state.
func (s *WorkflowService) stamp(doc *document.Document, target document.Status) {
	now := time.Now().UTC()
	if doc.Status == document.StatusRejected {
		doc.RejectedBy = ""
		doc.RejectionReason = ""
	}
	doc.Status = target
	doc.StageEnteredAt = now
	doc.UpdatedAt = now
	doc.Version++
}

// emit publishes exactly one transition event for an accepted transition.
func (s *WorkflowService) emit(ctx context.Context, doc *document.Document, actor Actor, action document.Action, target document.Status, reason string) {
	kind := document.EventFor(action, target)
	s.events.Enqueue(document.TransitionEvent{
		Kind:         kind,
		DocumentID:   doc.ID,
		DocumentKind: doc.Kind,
		Title:        doc.Title,
		OwnerID:      doc.OwnerID,
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Stage:        doc.RejectedBy,
		Reason:       reason,
		OccurredAt:   doc.UpdatedAt,
	})

	if s.metrics != nil {
		s.metrics.Transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", string(action)),
			attribute.String("kind", string(doc.Kind)),
		))
	}

	slog.Info("transition applied",
		"document_id", doc.ID,
		"kind", doc.Kind,
		"action", action,
		"status", target,
		"actor_id", actor.ID,
	)
}
