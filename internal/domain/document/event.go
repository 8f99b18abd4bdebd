package document

import "time"

// EventKind identifies the kind of transition event.
type EventKind string

const (
	EventSubmitted     EventKind = "document.submitted"
	EventAutoPassed    EventKind = "document.auto_passed"
	EventAutoRejected  EventKind = "document.auto_rejected"
	EventStageApproved EventKind = "document.stage_approved"
	EventApproved      EventKind = "document.approved"
	EventRejected      EventKind = "document.rejected"
	EventForceAdvanced EventKind = "document.force_advanced"
)

// TransitionEvent describes one accepted workflow transition. Events are
// ephemeral: constructed by the workflow service, consumed by the
// notification dispatcher within a single dispatch, never stored.
type TransitionEvent struct {
	Kind         EventKind `json:"kind"`
	DocumentID   string    `json:"document_id"`
	DocumentKind Kind      `json:"document_kind"`
	Title        string    `json:"title"`
	OwnerID      string    `json:"owner_id"`
	ActorID      string    `json:"actor_id"`
	ActorName    string    `json:"actor_name,omitempty"`
	Stage        Stage     `json:"stage,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// EventFor derives the event kind for an accepted transition. The resulting
// status disambiguates intermediate stage approvals from terminal approval.
func EventFor(action Action, resulting Status) EventKind {
	switch action {
	case ActionSubmit:
		return EventSubmitted
	case ActionAutoPass:
		return EventAutoPassed
	case ActionAutoFail:
		return EventAutoRejected
	case ActionApprove:
		if resulting == StatusApproved {
			return EventApproved
		}
		return EventStageApproved
	case ActionReject:
		return EventRejected
	case ActionForceAdvance:
		return EventForceAdvanced
	}
	return ""
}
