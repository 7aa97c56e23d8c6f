package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) kinds() []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Kind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

type panickingSink struct{}

func (panickingSink) Name() string                        { return "panicking" }
func (panickingSink) Deliver(context.Context, Event) error { panic("sink exploded") }

func TestDispatcherDeliversInOrderAndDrains(t *testing.T) {
	failing := &recordingSink{err: errors.New("channel unreachable")}
	ok := &recordingSink{}
	d := NewDispatcher(16, time.Second, failing, panickingSink{})
	d.AddSink(ok)

	d.Notify(Event{Kind: KindConnected, Operator: "alice", Slot: 1})
	d.Notify(Event{Kind: KindChat, Operator: "alice", Slot: 1, Speaker: "steve", Text: "hi"})
	d.Notify(Event{Kind: KindDisconnected, Operator: "alice", Slot: 1})

	require.NoError(t, d.Close(context.Background()))
	want := []Kind{KindConnected, KindChat, KindDisconnected}
	assert.Equal(t, want, ok.kinds())
	// a failing sink does not stop delivery to the others
	assert.Equal(t, want, failing.kinds())

	ok.mu.Lock()
	assert.NotEmpty(t, ok.events[0].ID)
	assert.False(t, ok.events[0].Time.IsZero())
	ok.mu.Unlock()

	// closed dispatcher drops silently and Close stays idempotent
	d.Notify(Event{Kind: KindFault})
	require.NoError(t, d.Invoke(context.Background()))
	assert.Len(t, ok.kinds(), 3)
}

func TestRateLimiter(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(10 * time.Second)

	assert.True(t, l.Allow("alice#1", start))
	assert.False(t, l.Allow("alice#1", start.Add(9*time.Second)))
	assert.True(t, l.Allow("alice#2", start.Add(time.Second)))
	assert.True(t, l.Allow("alice#1", start.Add(10*time.Second)))

	unlimited := NewRateLimiter(0)
	assert.True(t, unlimited.Allow("x", start))
	assert.True(t, unlimited.Allow("x", start))
}

func TestEventMessage(t *testing.T) {
	ev := Event{Kind: KindReconnecting, Operator: "alice", Slot: 2, DelayMS: 5000, Attempt: 1}
	assert.Equal(t, "alice#2 lost the connection, reconnecting in 5s (attempt 1)", ev.Message())

	ev = Event{Kind: KindConnected, Operator: "bob", Slot: 1, Target: "mc.example.com:19132", Identity: "Bot1"}
	assert.Equal(t, "bob#1 joined mc.example.com:19132 as Bot1", ev.Message())

	derr := error(&DeliveryError{Sink: "mongo", Err: context.DeadlineExceeded})
	assert.ErrorIs(t, derr, context.DeadlineExceeded)
}
