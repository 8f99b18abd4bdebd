// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the transition audit stream. Every accepted workflow
// transition is published under documents.events.{kind} so downstream
// consumers can replay the approval history.
const (
	SubjectDocumentEvents = "documents.events"

	SubjectSubmitted     = "documents.events.submitted"
	SubjectAutoPassed    = "documents.events.auto_passed"
	SubjectAutoRejected  = "documents.events.auto_rejected"
	SubjectStageApproved = "documents.events.stage_approved"
	SubjectApproved      = "documents.events.approved"
	SubjectRejected      = "documents.events.rejected"
	SubjectForceAdvanced = "documents.events.force_advanced"
)
