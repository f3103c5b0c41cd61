package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturingNotifier struct {
	mu       sync.Mutex
	received []*Event
	err      error
}

func (n *capturingNotifier) Name() string { return "capturing" }

func (n *capturingNotifier) Notify(ctx context.Context, event *Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, event)
	return n.err
}

func (n *capturingNotifier) events() []*Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Event, len(n.received))
	copy(out, n.received)
	return out
}

type countingDispatcherMetrics struct {
	mu        sync.Mutex
	published int
	dropped   int
	failed    int
}

func (m *countingDispatcherMetrics) EventPublished(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
}

func (m *countingDispatcherMetrics) EventDropped(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

func (m *countingDispatcherMetrics) NotifyFailed(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *countingDispatcherMetrics) counts() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.dropped, m.failed
}

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger
}

func TestPublishDeliversToNotifiers(t *testing.T) {
	notifier := &capturingNotifier{}
	metrics := &countingDispatcherMetrics{}
	d := NewDispatcher(16, testLogger(t), metrics)
	d.Register(notifier)
	d.Start()

	event := NewEvent(EventRuleSubmitted, "rule", uuid.New())
	d.Publish(event)

	time.Sleep(100 * time.Millisecond)
	d.Stop()

	received := notifier.events()
	require.Len(t, received, 1)
	assert.Equal(t, event.ID, received[0].ID)

	published, dropped, failed := metrics.counts()
	assert.Equal(t, 1, published)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 0, failed)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	metrics := &countingDispatcherMetrics{}
	// Not started, so the buffer never drains.
	d := NewDispatcher(2, testLogger(t), metrics)

	for i := 0; i < 5; i++ {
		d.Publish(NewEvent(EventChangeDetected, "change_request", uuid.New()))
	}

	published, dropped, _ := metrics.counts()
	assert.Equal(t, 2, published)
	assert.Equal(t, 3, dropped)
}

func TestStopDrainsBuffer(t *testing.T) {
	notifier := &capturingNotifier{}
	d := NewDispatcher(64, testLogger(t), nil)
	d.Register(notifier)
	d.Start()

	for i := 0; i < 10; i++ {
		d.Publish(NewEvent(EventExceptionFiled, "exception_request", uuid.New()))
	}

	d.Stop()
	assert.Len(t, notifier.events(), 10)
}

func TestNotifierFailureDoesNotStopDelivery(t *testing.T) {
	failing := &capturingNotifier{err: errors.New("sink down")}
	healthy := &capturingNotifier{}
	metrics := &countingDispatcherMetrics{}
	d := NewDispatcher(16, testLogger(t), metrics)
	d.Register(failing)
	d.Register(healthy)
	d.Start()

	d.Publish(NewEvent(EventRuleApproved, "rule", uuid.New()))

	time.Sleep(100 * time.Millisecond)
	d.Stop()

	assert.Len(t, failing.events(), 1)
	assert.Len(t, healthy.events(), 1)
	_, _, failed := metrics.counts()
	assert.Equal(t, 1, failed)
}

func TestRegisterAfterStartIgnored(t *testing.T) {
	early := &capturingNotifier{}
	late := &capturingNotifier{}
	d := NewDispatcher(16, testLogger(t), nil)
	d.Register(early)
	d.Start()
	d.Register(late)

	d.Publish(NewEvent(EventRuleRejected, "rule", uuid.New()))

	time.Sleep(100 * time.Millisecond)
	d.Stop()

	assert.Len(t, early.events(), 1)
	assert.Empty(t, late.events())
}

func TestEventBuilders(t *testing.T) {
	teamID := uuid.New()
	actorID := uuid.New()
	entityID := uuid.New()

	event := NewEvent(EventExceptionGranted, "exception_request", entityID).
		WithTeam(teamID).
		WithActor(actorID, "dana").
		WithPayload("change_request_id", "abc")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, EventExceptionGranted, event.Type)
	assert.Equal(t, entityID, event.EntityID)
	require.NotNil(t, event.TeamID)
	assert.Equal(t, teamID, *event.TeamID)
	assert.Equal(t, "dana", event.ActorName)
	assert.Equal(t, "abc", event.Payload["change_request_id"])
	assert.WithinDuration(t, time.Now(), event.OccurredAt, 5*time.Second)
}
