package document

import (
	"fmt"

	"github.com/Strob0t/ReviewFlow/internal/domain"
)

// Action is a workflow transition trigger.
type Action string

const (
	ActionSubmit       Action = "submit"
	ActionAutoPass     Action = "auto_pass"
	ActionAutoFail     Action = "auto_fail"
	ActionApprove      Action = "approve"
	ActionReject       Action = "reject"
	ActionForceAdvance Action = "force_advance"
)

// Role identifies who is performing a transition.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleReviewerL1 Role = "reviewer_l1"
	RoleReviewerL2 Role = "reviewer_l2"
	// RoleSystem is the automated stage acting on gate outcomes.
	RoleSystem Role = "system"
)

// rolePermissions maps each role to the set of actions it may trigger.
// Adding a role or stage is a data change here, not new branching code.
var rolePermissions = map[Role]map[Action]bool{
	RoleOwner: {
		ActionSubmit:       true,
		ActionForceAdvance: true,
	},
	RoleSystem: {
		ActionAutoPass: true,
		ActionAutoFail: true,
	},
	RoleReviewerL1: {
		ActionApprove: true,
		ActionReject:  true,
	},
	RoleReviewerL2: {
		ActionApprove: true,
		ActionReject:  true,
	},
}

// transitionGraph is the fixed per-kind state graph. A transition is legal
// only if an edge exists for (kind, current status, action).
var transitionGraph = map[Kind]map[Status]map[Action]Status{
	KindReport: {
		StatusDraft: {
			ActionSubmit: StatusAutoReview,
		},
		StatusAutoReview: {
			ActionAutoPass: StatusHumanReview,
			ActionAutoFail: StatusRejected,
		},
		StatusHumanReview: {
			ActionApprove: StatusApproved,
			ActionReject:  StatusRejected,
		},
		StatusRejected: {
			ActionSubmit:       StatusAutoReview,
			ActionForceAdvance: StatusHumanReview,
		},
	},
	KindProject: {
		StatusDraft: {
			ActionSubmit: StatusAutoReview,
		},
		StatusAutoReview: {
			ActionAutoPass: StatusL1Review,
			ActionAutoFail: StatusRejected,
		},
		StatusL1Review: {
			ActionApprove: StatusL2Review,
			ActionReject:  StatusRejected,
		},
		StatusL2Review: {
			ActionApprove: StatusApproved,
			ActionReject:  StatusRejected,
		},
		StatusRejected: {
			ActionSubmit:       StatusAutoReview,
			ActionForceAdvance: StatusL1Review,
		},
	},
}

// reviewerStages maps each human-review status to the reviewer role that owns it.
var reviewerStages = map[Status]Role{
	StatusHumanReview: RoleReviewerL1,
	StatusL1Review:    RoleReviewerL1,
	StatusL2Review:    RoleReviewerL2,
}

// rejectionStages maps each reviewable status to the stage tag recorded when
// a rejection originates there.
var rejectionStages = map[Status]Stage{
	StatusAutoReview:  StageAutomated,
	StatusHumanReview: StageReviewerL1,
	StatusL1Review:    StageReviewerL1,
	StatusL2Review:    StageReviewerL2,
}

// Next resolves the target status for applying action to a document in the
// given state. Returns domain.ErrInvalidState if no such edge exists.
func Next(kind Kind, current Status, action Action) (Status, error) {
	edges, ok := transitionGraph[kind]
	if !ok {
		return "", fmt.Errorf("unknown document kind %q: %w", kind, domain.ErrInvalidState)
	}
	target, ok := edges[current][action]
	if !ok {
		return "", fmt.Errorf("%s %s does not allow %s: %w", kind, current, action, domain.ErrInvalidState)
	}
	return target, nil
}

// Allowed reports whether the role may trigger the given action at all,
// independent of document state.
func Allowed(role Role, action Action) bool {
	return rolePermissions[role][action]
}

// ReviewerRoleFor returns the reviewer role that owns the given human-review
// status, or empty if the status is not a human-review stage.
func ReviewerRoleFor(status Status) Role {
	return reviewerStages[status]
}

// RejectionStageFor returns the stage tag to record for a rejection applied
// while the document is in the given status.
func RejectionStageFor(status Status) Stage {
	return rejectionStages[status]
}
