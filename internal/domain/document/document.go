// Package document defines the approval workflow domain: document kinds,
// statuses, rejection stages, and the fixed transition graph both kinds
// move through on their way to approval.
package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/ReviewFlow/internal/domain"
)

// Kind identifies the concrete document type.
type Kind string

const (
	KindReport  Kind = "report"
	KindProject Kind = "project"
)

// Status represents the workflow state of a document.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusAutoReview  Status = "submitted_for_auto_review"
	StatusHumanReview Status = "pending_human_review"
	StatusL1Review    Status = "pending_l1_review"
	StatusL2Review    Status = "pending_l2_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Stage tags which review stage produced a rejection.
type Stage string

const (
	StageAutomated  Stage = "AUTOMATED"
	StageReviewerL1 Stage = "REVIEWER_L1"
	StageReviewerL2 Stage = "REVIEWER_L2"
)

// Document is a report or project moving through the approval workflow.
// Status is mutated only by the workflow service; Version backs the
// compare-and-swap update that serializes transitions per document.
type Document struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Status          Status     `json:"status"`
	Version         int        `json:"version"`
	RejectedBy      Stage      `json:"rejected_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	AnalysisID      string     `json:"analysis_id,omitempty"`
	L1ReviewerID    string     `json:"l1_reviewer_id,omitempty"`
	L2ReviewerID    string     `json:"l2_reviewer_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	StageEnteredAt  time.Time  `json:"stage_entered_at"`
}

// CreateRequest holds the fields for creating a new draft document.
type CreateRequest struct {
	Kind    Kind   `json:"kind"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate checks the create request for correctness.
func (r *CreateRequest) Validate() error {
	if r.Kind != KindReport && r.Kind != KindProject {
		return fmt.Errorf("unknown document kind %q: %w", r.Kind, domain.ErrValidation)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("owner_id is required: %w", domain.ErrValidation)
	}
	return nil
}

// IsMutable reports whether document content may be edited in the current state.
// Content is frozen everywhere except draft and rejected.
func (d *Document) IsMutable() bool {
	return d.Status == StatusDraft || d.Status == StatusRejected
}

// IsTerminal reports whether no further transitions are defined from the
// current state.
func (d *Document) IsTerminal() bool {
	return d.Status == StatusApproved
}

// ValidateForSubmission checks that the required content fields are present
// before the document may enter the automated stage.
func (d *Document) ValidateForSubmission() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required for submission: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("content is required for submission: %w", domain.ErrValidation)
	}
	return nil
}

// FirstHumanStage returns the status a document of the given kind enters
// after passing (or force-advancing past) the automated stage.
func FirstHumanStage(kind Kind) Status {
	if kind == KindProject {
		return StatusL1Review
	}
	return StatusHumanReview
}
