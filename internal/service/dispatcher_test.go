package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/ReviewFlow/internal/domain/document"
	"github.com/Strob0t/ReviewFlow/internal/pool"
	"github.com/Strob0t/ReviewFlow/internal/port/directory"
	"github.com/Strob0t/ReviewFlow/internal/port/notifier"
)

type mockDirectory struct {
	mu        sync.Mutex
	owner     directory.Recipient
	ownerErr  error
	byRank    map[int][]directory.Recipient
	rankErr   map[int]error
	all       []directory.Recipient
	allErr    error
	rankCalls map[int]int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		owner:     directory.Recipient{ID: "owner-1", DisplayName: "Owner", Address: "owner@example.com"},
		byRank:    map[int][]directory.Recipient{},
		rankErr:   map[int]error{},
		rankCalls: map[int]int{},
	}
}

func (d *mockDirectory) Owner(_ context.Context, _ string) (directory.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner, d.ownerErr
}

func (d *mockDirectory) ReviewersByRank(_ context.Context, rank int) ([]directory.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rankCalls[rank]++
	if err := d.rankErr[rank]; err != nil {
		return nil, err
	}
	return d.byRank[rank], nil
}

func (d *mockDirectory) AllReviewers(_ context.Context) ([]directory.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.all, d.allErr
}

type sentNotification struct {
	notification notifier.Notification
}

type mockNotifier struct {
	mu   sync.Mutex
	name string
	err  error
	sent []sentNotification
}

func (n *mockNotifier) Name() string                        { return n.name }
func (n *mockNotifier) Capabilities() notifier.Capabilities { return notifier.Capabilities{} }

func (n *mockNotifier) Send(_ context.Context, notification notifier.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{notification: notification})
	return nil
}

func (n *mockNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *mockNotifier) lastSent() notifier.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1].notification
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func newTestDispatcher(dir directory.Directory, notifiers ...notifier.Notifier) *DispatcherService {
	p := pool.New("dispatch-test", 1, 8)
	return NewDispatcherService(dir, nil, 0, notifiers, nil, p, nil)
}

func testEvent(kind document.EventKind) document.TransitionEvent {
	return document.TransitionEvent{
		Kind:         kind,
		DocumentID:   "doc-1",
		DocumentKind: document.KindReport,
		Title:        "Week 34 status",
		OwnerID:      "owner-1",
		ActorID:      "actor-1",
		ActorName:    "Dana",
		OccurredAt:   time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC),
	}
}

func TestDispatcherRoutesAutoPassedToFirstReviewers(t *testing.T) {
	dir := newMockDirectory()
	dir.byRank[1] = []directory.Recipient{
		{ID: "r1", DisplayName: "Rev One", Address: "rev1@example.com"},
		{ID: "r2", DisplayName: "Rev Two", Address: "rev2@example.com"},
	}
	sink := &mockNotifier{name: "log"}
	d := newTestDispatcher(dir, sink)

	d.Enqueue(testEvent(document.EventAutoPassed))
	d.Close(time.Second)

	if sink.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", sink.sentCount())
	}
	got := sink.lastSent()
	if len(got.Addresses) != 2 {
		t.Fatalf("addresses = %v, want both rank-1 reviewers", got.Addresses)
	}
	if !strings.Contains(got.Subject, "ready for review") {
		t.Errorf("subject = %q, want ready-for-review wording", got.Subject)
	}
}

func TestDispatcherSubmittedNotifiesNobody(t *testing.T) {
	dir := newMockDirectory()
	sink := &mockNotifier{name: "log"}
	d := newTestDispatcher(dir, sink)

	d.Enqueue(testEvent(document.EventSubmitted))
	d.Close(time.Second)

	if sink.sentCount() != 0 {
		t.Fatalf("sent = %d, want 0 for submission events", sink.sentCount())
	}
}

func TestDispatcherApprovedNotifiesOwnerAndAllReviewers(t *testing.T) {
	dir := newMockDirectory()
	dir.all = []directory.Recipient{
		{ID: "r1", Address: "rev1@example.com"},
		{ID: "r2", Address: "rev2@example.com"},
	}
	sink := &mockNotifier{name: "log"}
	d := newTestDispatcher(dir, sink)

	d.Enqueue(testEvent(document.EventApproved))
	d.Close(time.Second)

	// One send per recipient group: owner, then all reviewers.
	if sink.sentCount() != 2 {
		t.Fatalf("sent = %d, want 2 groups", sink.sentCount())
	}
}

func TestDispatcherIsolatesResolutionFailures(t *testing.T) {
	dir := newMockDirectory()
	// stage_approved routes to rank-2 reviewers and the owner. The reviewer
	// lookup blows up; the owner must still get notified.
	dir.rankErr[2] = errors.New("directory unavailable")
	sink := &mockNotifier{name: "log"}
	d := newTestDispatcher(dir, sink)

	d.Enqueue(testEvent(document.EventStageApproved))
	d.Close(time.Second)

	if sink.sentCount() != 1 {
		t.Fatalf("sent = %d, want owner notification despite reviewer lookup failure", sink.sentCount())
	}
	got := sink.lastSent()
	if got.Addresses[0] != "owner@example.com" {
		t.Errorf("addresses = %v, want owner", got.Addresses)
	}
}

func TestDispatcherIsolatesProviderFailures(t *testing.T) {
	dir := newMockDirectory()
	broken := &mockNotifier{name: "webhook", err: errors.New("connection refused")}
	working := &mockNotifier{name: "log"}
	d := newTestDispatcher(dir, broken, working)

	d.Enqueue(testEvent(document.EventRejected))
	d.Close(time.Second)

	if working.sentCount() != 1 {
		t.Fatalf("working provider sent = %d, want 1 despite broken sibling", working.sentCount())
	}
}

func TestDispatcherRejectionBodyCarriesReason(t *testing.T) {
	dir := newMockDirectory()
	sink := &mockNotifier{name: "log"}
	d := newTestDispatcher(dir, sink)

	ev := testEvent(document.EventRejected)
	ev.Reason = "confidence 40% below threshold 70%: shallow report"
	d.Enqueue(ev)
	d.Close(time.Second)

	if sink.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", sink.sentCount())
	}
	got := sink.lastSent()
	if !strings.Contains(got.Body, ev.Reason) {
		t.Errorf("body %q missing rejection reason", got.Body)
	}
	if !strings.Contains(got.Body, "Week 34 status") {
		t.Errorf("body %q missing document title", got.Body)
	}
	if !strings.Contains(got.Body, "doc-1") {
		t.Errorf("body %q missing document id", got.Body)
	}
	if got.Level != "warning" {
		t.Errorf("level = %q, want warning", got.Level)
	}
}

func TestDispatcherCachesReviewerLookups(t *testing.T) {
	dir := newMockDirectory()
	dir.byRank[1] = []directory.Recipient{{ID: "r1", Address: "rev1@example.com"}}
	sink := &mockNotifier{name: "log"}
	p := pool.New("dispatch-test", 1, 8)
	d := NewDispatcherService(dir, newMemoryCache(), time.Minute, []notifier.Notifier{sink}, nil, p, nil)

	d.Enqueue(testEvent(document.EventAutoPassed))
	d.Enqueue(testEvent(document.EventAutoPassed))
	d.Close(time.Second)

	dir.mu.Lock()
	calls := dir.rankCalls[1]
	dir.mu.Unlock()
	if calls != 1 {
		t.Errorf("directory rank-1 lookups = %d, want 1 (second dispatch served from cache)", calls)
	}
	if sink.sentCount() != 2 {
		t.Errorf("sent = %d, want 2", sink.sentCount())
	}
}

func TestDispatcherSkipsRecipientsWithoutAddress(t *testing.T) {
	dir := newMockDirectory()
	dir.owner = directory.Recipient{ID: "owner-1", DisplayName: "Owner"}
	sink := &mockNotifier{name: "log"}
	d := newTestDispatcher(dir, sink)

	d.Enqueue(testEvent(document.EventAutoRejected))
	d.Close(time.Second)

	if sink.sentCount() != 0 {
		t.Fatalf("sent = %d, want 0 when no recipient has an address", sink.sentCount())
	}
}
