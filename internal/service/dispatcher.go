package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	otelad "github.com/Strob0t/ReviewFlow/internal/adapter/otel"
	"github.com/Strob0t/ReviewFlow/internal/domain/document"
	"github.com/Strob0t/ReviewFlow/internal/pool"
	"github.com/Strob0t/ReviewFlow/internal/port/cache"
	"github.com/Strob0t/ReviewFlow/internal/port/directory"
	"github.com/Strob0t/ReviewFlow/internal/port/messagequeue"
	"github.com/Strob0t/ReviewFlow/internal/port/notifier"
)

// recipientRole is an abstract addressee category resolved to concrete
// identities at dispatch time.
type recipientRole string

const (
	recipientOwner       recipientRole = "owner"
	recipientReviewersL1 recipientRole = "reviewers.l1"
	recipientReviewersL2 recipientRole = "reviewers.l2"
	recipientAllReviewer recipientRole = "reviewers.all"
)

// eventRecipients maps each transition kind to the recipient roles notified
// about it. Submission itself notifies nobody; it only opens the automated
// stage.
var eventRecipients = map[document.EventKind][]recipientRole{
	document.EventSubmitted:     nil,
	document.EventAutoPassed:    {recipientReviewersL1},
	document.EventAutoRejected:  {recipientOwner},
	document.EventStageApproved: {recipientReviewersL2, recipientOwner},
	document.EventApproved:      {recipientOwner, recipientAllReviewer},
	document.EventRejected:      {recipientOwner},
	document.EventForceAdvanced: {recipientReviewersL1},
}

// eventSubjects maps transition kinds to audit stream subjects.
var eventSubjects = map[document.EventKind]string{
	document.EventSubmitted:     messagequeue.SubjectSubmitted,
	document.EventAutoPassed:    messagequeue.SubjectAutoPassed,
	document.EventAutoRejected:  messagequeue.SubjectAutoRejected,
	document.EventStageApproved: messagequeue.SubjectStageApproved,
	document.EventApproved:      messagequeue.SubjectApproved,
	document.EventRejected:      messagequeue.SubjectRejected,
	document.EventForceAdvanced: messagequeue.SubjectForceAdvanced,
}

// DispatcherService reacts to every workflow transition: it publishes the
// event to the audit stream, resolves the recipient roles for the transition
// kind, and sends notifications per resolved group. Dispatch is decoupled and
// best-effort: a failure in one group never blocks another group, and no
// failure ever reaches the workflow.
type DispatcherService struct {
	dir       directory.Directory
	cache     cache.Cache
	cacheTTL  time.Duration
	notifiers []notifier.Notifier
	queue     messagequeue.Queue
	pool      *pool.Pool
	metrics   *otelad.Metrics
}

// NewDispatcherService creates a DispatcherService. cache, queue and metrics
// may be nil; the corresponding step is skipped.
func NewDispatcherService(
	dir directory.Directory,
	c cache.Cache,
	cacheTTL time.Duration,
	notifiers []notifier.Notifier,
	queue messagequeue.Queue,
	p *pool.Pool,
	metrics *otelad.Metrics,
) *DispatcherService {
	return &DispatcherService{
		dir:       dir,
		cache:     c,
		cacheTTL:  cacheTTL,
		notifiers: notifiers,
		queue:     queue,
		pool:      p,
		metrics:   metrics,
	}
}

// Enqueue schedules the event for dispatch and returns immediately. Events
// are consumed by the dispatcher's own worker pool; delivery failures are
// absorbed there.
func (s *DispatcherService) Enqueue(ev document.TransitionEvent) {
	s.pool.Submit(func() {
		s.dispatch(ev)
	})
}

// Close drains queued events, waiting up to the given duration.
func (s *DispatcherService) Close(wait time.Duration) {
	if !s.pool.CloseTimeout(wait) {
		slog.Warn("dispatcher shutdown timed out with notifications still queued")
	}
}

func (s *DispatcherService) dispatch(ev document.TransitionEvent) {
	// Sends are fire-and-forget and not deadline-bound.
	ctx := context.Background()

	ctx, span := otelad.StartDispatchSpan(ctx, string(ev.Kind), ev.DocumentID)
	defer span.End()

	s.publishAudit(ctx, ev)

	for _, role := range eventRecipients[ev.Kind] {
		// Resolution and delivery failures are isolated per group: log and
		// move on to the next role.
		recipients, err := s.resolve(ctx, role, ev)
		if err != nil {
			slog.Error("recipient resolution failed",
				"document_id", ev.DocumentID, "role", role, "event", ev.Kind, "error", err)
			continue
		}
		if len(recipients) == 0 {
			continue
		}
		s.send(ctx, ev, role, recipients)
	}
}

// publishAudit publishes the event to the NATS audit stream.
func (s *DispatcherService) publishAudit(ctx context.Context, ev document.TransitionEvent) {
	if s.queue == nil {
		return
	}
	subject, ok := eventSubjects[ev.Kind]
	if !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal transition event", "document_id", ev.DocumentID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("audit publish failed", "subject", subject, "document_id", ev.DocumentID, "error", err)
	}
}

// resolve maps a recipient role to concrete identities, consulting the cache
// for reviewer groups. Owner lookups are per-document and not cached.
func (s *DispatcherService) resolve(ctx context.Context, role recipientRole, ev document.TransitionEvent) ([]directory.Recipient, error) {
	if role == recipientOwner {
		r, err := s.dir.Owner(ctx, ev.OwnerID)
		if err != nil {
			return nil, err
		}
		return []directory.Recipient{r}, nil
	}

	key := "recipients:" + string(role)
	if cached, ok := s.cacheGet(ctx, key); ok {
		return cached, nil
	}

	var (
		recipients []directory.Recipient
		err        error
	)
	switch role {
	case recipientReviewersL1:
		recipients, err = s.dir.ReviewersByRank(ctx, 1)
	case recipientReviewersL2:
		recipients, err = s.dir.ReviewersByRank(ctx, 2)
	case recipientAllReviewer:
		recipients, err = s.dir.AllReviewers(ctx)
	default:
		return nil, fmt.Errorf("unknown recipient role %q", role)
	}
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, recipients)
	return recipients, nil
}

func (s *DispatcherService) cacheGet(ctx context.Context, key string) ([]directory.Recipient, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var recipients []directory.Recipient
	if err := json.Unmarshal(data, &recipients); err != nil {
		return nil, false
	}
	return recipients, true
}

func (s *DispatcherService) cacheSet(ctx context.Context, key string, recipients []directory.Recipient) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(recipients)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, data, s.cacheTTL)
}

// send renders the message for the group and fans it out to every registered
// notifier. Errors are logged but do not interrupt delivery to other
// notifiers or groups.
func (s *DispatcherService) send(ctx context.Context, ev document.TransitionEvent, role recipientRole, recipients []directory.Recipient) {
	addresses := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.Address != "" {
			addresses = append(addresses, r.Address)
		}
	}
	if len(addresses) == 0 {
		return
	}

	n := notifier.Notification{
		Addresses: addresses,
		Subject:   renderSubject(ev),
		Body:      renderBody(ev),
		Level:     eventLevel(ev.Kind),
		Source:    string(ev.Kind),
	}

	for _, provider := range s.notifiers {
		if err := provider.Send(ctx, n); err != nil {
			slog.Warn("notification send failed",
				"provider", provider.Name(),
				"document_id", ev.DocumentID,
				"role", role,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.NotificationsFailed.Add(ctx, 1, metric.WithAttributes(
					attribute.String("provider", provider.Name())))
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.NotificationsSent.Add(ctx, 1, metric.WithAttributes(
				attribute.String("provider", provider.Name())))
		}
		slog.Debug("notification sent",
			"provider", provider.Name(), "document_id", ev.DocumentID, "role", role, "recipients", len(addresses))
	}
}

// kindLabel returns the human-readable document kind for message text.
func kindLabel(kind document.Kind) string {
	if kind == document.KindProject {
		return "Project"
	}
	return "Weekly report"
}

func renderSubject(ev document.TransitionEvent) string {
	label := kindLabel(ev.DocumentKind)
	switch ev.Kind {
	case document.EventAutoPassed:
		return fmt.Sprintf("[ReviewFlow] %s %q is ready for review", label, ev.Title)
	case document.EventAutoRejected:
		return fmt.Sprintf("[ReviewFlow] %s %q did not pass the automated check", label, ev.Title)
	case document.EventStageApproved:
		return fmt.Sprintf("[ReviewFlow] %s %q passed first review", label, ev.Title)
	case document.EventApproved:
		return fmt.Sprintf("[ReviewFlow] %s %q has been approved", label, ev.Title)
	case document.EventRejected:
		return fmt.Sprintf("[ReviewFlow] %s %q was rejected", label, ev.Title)
	case document.EventForceAdvanced:
		return fmt.Sprintf("[ReviewFlow] %s %q was escalated to review by its owner", label, ev.Title)
	default:
		return fmt.Sprintf("[ReviewFlow] %s %q was updated", label, ev.Title)
	}
}

func renderBody(ev document.TransitionEvent) string {
	body := fmt.Sprintf("%s %q (%s)", kindLabel(ev.DocumentKind), ev.Title, ev.DocumentID)
	if ev.ActorName != "" {
		body += fmt.Sprintf("\nActed on by: %s", ev.ActorName)
	}
	if ev.Reason != "" {
		body += fmt.Sprintf("\nReason: %s", ev.Reason)
	}
	body += fmt.Sprintf("\nAt: %s", ev.OccurredAt.Format(time.RFC3339))
	return body
}

func eventLevel(kind document.EventKind) string {
	switch kind {
	case document.EventApproved, document.EventAutoPassed, document.EventStageApproved:
		return "success"
	case document.EventRejected, document.EventAutoRejected:
		return "warning"
	default:
		return "info"
	}
}
