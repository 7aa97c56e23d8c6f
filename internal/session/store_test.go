package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampSlot(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 2: 2, 3: 2, 99: 2} {
		assert.Equal(t, want, ClampSlot(in), "slot %d", in)
	}
}

func TestGetOrCreateFillsLowerSlots(t *testing.T) {
	s := NewStore(5 * time.Second)

	rec := s.GetOrCreate("alice", 2)
	assert.Equal(t, 2, rec.Slot)
	assert.Equal(t, Operator("alice"), rec.Operator)
	assert.Equal(t, 5*time.Second, rec.ReconnectDelay)
	assert.Equal(t, Disconnected, rec.State)

	list, ok := s.Get("alice")
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Slot)
	assert.Same(t, rec, list[1])

	// same pointer on every lookup, clamped above the limit
	assert.Same(t, rec, s.GetOrCreate("alice", 7))
	list, _ = s.Get("alice")
	assert.Len(t, list, MaxSlots)
}

func TestLookupDoesNotCreate(t *testing.T) {
	s := NewStore(time.Second)
	_, ok := s.Lookup("bob", 1)
	assert.False(t, ok)
	_, ok = s.Get("bob")
	assert.False(t, ok)

	s.GetOrCreate("bob", 1)
	_, ok = s.Lookup("bob", 2)
	assert.False(t, ok)
	rec, ok := s.Lookup("bob", 0)
	require.True(t, ok)
	assert.Equal(t, 1, rec.Slot)
}

func TestAllIsSorted(t *testing.T) {
	s := NewStore(time.Second)
	s.GetOrCreate("carol", 1)
	s.GetOrCreate("alice", 2)

	var labels []string
	for _, r := range s.All() {
		labels = append(labels, r.Label())
	}
	assert.Equal(t, []string{"alice#1", "alice#2", "carol#1"}, labels)
}

func TestRecordConfiguredAndSnapshot(t *testing.T) {
	r := &Record{Operator: "alice", Slot: 1, ReconnectDelay: 5 * time.Second}
	assert.False(t, r.Configured())

	r.Host, r.Port, r.Identity = "mc.example.com", 19132, "Bot1"
	assert.True(t, r.Configured())
	assert.Equal(t, "mc.example.com:19132", r.Target().Address())

	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.State = Connected
	r.ConnectedSince = start
	snap := r.Snapshot(start.Add(90 * time.Second))
	assert.Equal(t, "connected", snap.State)
	assert.Equal(t, "1m30s", snap.Uptime)
	assert.Equal(t, "5s", snap.ReconnectDelay)
	require.NotNil(t, snap.ConnectedSince)
}

func TestPeerFaultErrorUnwraps(t *testing.T) {
	cause := errors.New("read: connection reset")
	err := error(&PeerFaultError{Operator: "alice", Slot: 2, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "alice#2")
	assert.ErrorIs(t, InvalidArgument("port %d", 0), ErrInvalidArgument)
}
