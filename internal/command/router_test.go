package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/peer/sim"
	"github.com/life-stream-dev/afk-bridge/internal/session"
	"github.com/life-stream-dev/afk-bridge/internal/supervisor"
)

// stubSessions records calls and returns err for every operation.
type stubSessions struct {
	calls []string
	err   error
	panic bool
	snaps []session.Snapshot
	// singleSlot folds every slot onto 1, like multi_slot = false.
	singleSlot bool
}

func (s *stubSessions) call(format string, args ...any) error {
	if s.panic {
		panic("boom")
	}
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
	return s.err
}

func (s *stubSessions) Configure(op session.Operator, slot int, host string, port int, identity string) error {
	return s.call("configure %s %d %s %d %s", op, slot, host, port, identity)
}
func (s *stubSessions) Connect(op session.Operator, slot int) error {
	return s.call("connect %s %d", op, slot)
}
func (s *stubSessions) Disconnect(op session.Operator, slot int) error {
	return s.call("disconnect %s %d", op, slot)
}
func (s *stubSessions) SetJoinCommand(op session.Operator, slot int, text string) error {
	return s.call("join %s %d %q", op, slot, text)
}
func (s *stubSessions) SetReconnectDelay(op session.Operator, slot int, d time.Duration) error {
	return s.call("delay %s %d %s", op, slot, d)
}
func (s *stubSessions) ForceReconnect(op session.Operator, slot int) (string, error) {
	return "Bot10042", s.call("reconnect %s %d", op, slot)
}
func (s *stubSessions) RenameIdentity(op session.Operator, slot int, identity string) (bool, error) {
	return true, s.call("rename %s %d %s", op, slot, identity)
}
func (s *stubSessions) SendChatLine(op session.Operator, slot int, text string) error {
	return s.call("chat %s %d %q", op, slot, text)
}
func (s *stubSessions) ToggleJump(op session.Operator, slot int) (bool, error) {
	return true, s.call("jump %s %d", op, slot)
}
func (s *stubSessions) Look(op session.Operator, slot int) error {
	return s.call("look %s %d", op, slot)
}
func (s *stubSessions) Attack(op session.Operator, slot int) error {
	return s.call("attack %s %d", op, slot)
}
func (s *stubSessions) Move(op session.Operator, slot int) error {
	return s.call("move %s %d", op, slot)
}
func (s *stubSessions) Players(op session.Operator, slot int) ([]string, error) {
	return []string{"Bot1", "Steve"}, s.call("players %s %d", op, slot)
}
func (s *stubSessions) SimulateChat(op session.Operator, slot int) (string, error) {
	return "gg", s.call("simchat %s %d", op, slot)
}
func (s *stubSessions) Panel(op session.Operator, slot int) ([]string, error) {
	return []string{"chat", "jump"}, s.call("panel %s %d", op, slot)
}
func (s *stubSessions) Slot(slot int) int {
	if s.singleSlot {
		return 1
	}
	return session.ClampSlot(slot)
}
func (s *stubSessions) Snapshot(op session.Operator) ([]session.Snapshot, bool) {
	_ = s.call("status %s", op)
	return s.snaps, s.snaps != nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Request
	}{
		{"/settings mc.example.com 19132 Bot1", Request{Name: "settings", Args: []string{"mc.example.com", "19132", "Bot1"}}},
		{"/settings mc.example.com 19132 Bot1 2", Request{Name: "settings", Slot: 2, Args: []string{"mc.example.com", "19132", "Bot1"}}},
		{"/connect", Request{Name: "connect"}},
		{"connect 2", Request{Name: "connect", Slot: 2}},
		{"/CONNECT 9", Request{Name: "connect", Slot: 2}},
		{"/chat hello there", Request{Name: "chat", Args: []string{"hello there"}}},
		{"/chat @2 hello 2", Request{Name: "chat", Slot: 2, Args: []string{"hello 2"}}},
		{"/chat hello   world", Request{Name: "chat", Args: []string{"hello   world"}}},
		{"/chat @Steve hi there", Request{Name: "chat", Args: []string{"@Steve hi there"}}},
		{"/chat @2 @Steve  hi", Request{Name: "chat", Slot: 2, Args: []string{"@Steve  hi"}}},
		{"/chat @x hi", Request{Name: "chat", Args: []string{"@x hi"}}},
		{"/joincommand @login pw", Request{Name: "joincommand", Args: []string{"@login pw"}}},
		{"/joincommand @2", Request{Name: "joincommand", Slot: 2}},
		{"/connect @2", Request{Name: "connect", Slot: 2}},
		{"/delay 3", Request{Name: "delay", Args: []string{"3"}}},
		{"/delay 3 2", Request{Name: "delay", Slot: 2, Args: []string{"3"}}},
		{"/whatever a b", Request{Name: "whatever", Args: []string{"a", "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse("/connect two")
	assert.NoError(t, err, "a non-numeric extra argument is left for the arity check")
	_, err = Parse("/chat @99999999999999999999999 hi")
	assert.ErrorIs(t, err, session.ErrInvalidArgument)
}

func TestHandleLineKeepsChatText(t *testing.T) {
	tests := []struct {
		line string
		call string
	}{
		{"/chat @Steve hi there", `chat alice 0 "@Steve hi there"`},
		{"/chat hello   world", `chat alice 0 "hello   world"`},
		{"/say @2   spaced  out", `chat alice 2 "spaced  out"`},
		{"/joincommand @login pw", `join alice 0 "@login pw"`},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			stub := &stubSessions{}
			reply := NewRouter(stub).HandleLine(context.Background(), "alice", tt.line)
			require.True(t, reply.OK, reply.Text)
			assert.Equal(t, []string{tt.call}, stub.calls)
		})
	}
}

func TestRepliesNameServedSlot(t *testing.T) {
	stub := &stubSessions{singleSlot: true}
	reply := NewRouter(stub).HandleLine(context.Background(), "alice", "/connect 2")
	require.True(t, reply.OK, reply.Text)
	assert.Equal(t, "Connecting slot 1...", reply.Text)

	reply = NewRouter(&stubSessions{}).HandleLine(context.Background(), "alice", "/connect 2")
	assert.Equal(t, "Connecting slot 2...", reply.Text)
}

func TestHandleDispatch(t *testing.T) {
	tests := []struct {
		req      Request
		call     string
		contains string
	}{
		{Request{Name: "settings", Args: []string{"mc.example.com", "19132", "Bot1"}}, `configure alice 0 mc.example.com 19132 Bot1`, "mc.example.com:19132 as Bot1"},
		{Request{Name: "connect", Slot: 2}, "connect alice 2", "Connecting slot 2"},
		{Request{Name: "disconnect"}, "disconnect alice 0", "Disconnected slot 1"},
		{Request{Name: "joincommand", Args: []string{"/login", "pw"}}, `join alice 0 "/login pw"`, "Join command set"},
		{Request{Name: "setjoin"}, `join alice 0 ""`, "cleared"},
		{Request{Name: "delay", Args: []string{"3"}}, "delay alice 0 3s", "set to 3s"},
		{Request{Name: "delay", Args: []string{"800ms"}}, "delay alice 0 800ms", "set to 800ms"},
		{Request{Name: "reconnect"}, "reconnect alice 0", "as Bot10042"},
		{Request{Name: "rename", Args: []string{"Idler"}}, "rename alice 0 Idler", "rejoining"},
		{Request{Name: "say", Args: []string{"hello"}}, `chat alice 0 "hello"`, "Sent"},
		{Request{Name: "jump"}, "jump alice 0", "Jumping"},
		{Request{Name: "look"}, "look alice 0", "Looked"},
		{Request{Name: "attack"}, "attack alice 0", "Attacked"},
		{Request{Name: "move"}, "move alice 0", "Walking"},
		{Request{Name: "players"}, "players alice 0", "Bot1, Steve"},
		{Request{Name: "simchat"}, "simchat alice 0", `"gg"`},
		{Request{Name: "panel"}, "panel alice 0", "chat, jump"},
	}
	for _, tt := range tests {
		t.Run(tt.req.Name, func(t *testing.T) {
			stub := &stubSessions{}
			tt.req.Operator = "alice"
			reply := NewRouter(stub).Handle(context.Background(), tt.req)
			require.True(t, reply.OK, reply.Text)
			assert.Equal(t, CodeOK, reply.Code)
			assert.Equal(t, []string{tt.call}, stub.calls)
			assert.Contains(t, reply.Text, tt.contains)
		})
	}
}

func TestHandleMapsErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
		text string
	}{
		{session.ErrNotConfigured, CodeNotConfigured, "/settings"},
		{session.ErrNotConnected, CodeNotConnected, "No active connection."},
		{session.ErrNotReady, CodeNotReady, "Still joining"},
		{session.ErrAlreadyConnected, CodeAlreadyConnected, "Already connected"},
		{session.ErrCapabilityDisabled, CodeDisabled, "turned off"},
		{session.InvalidArgument("port 0 out of range"), CodeInvalidArgument, "Invalid input: port 0 out of range."},
		{supervisor.ErrStopped, CodeUnavailable, "shutting down"},
		{&supervisor.ActionError{Action: peer.ActionAttackNearest, Err: errors.New("no entity")}, CodeActionFailed, "Could not attack"},
		{errors.New("socket: broken pipe"), CodeInternal, "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			reply := NewRouter(&stubSessions{err: tt.err}).Handle(context.Background(), Request{Operator: "alice", Name: "attack"})
			assert.False(t, reply.OK)
			assert.Equal(t, tt.code, reply.Code)
			assert.Contains(t, reply.Text, tt.text)
			assert.NotContains(t, reply.Text, "broken pipe")
		})
	}
}

func TestHandleRejectsBadRequests(t *testing.T) {
	stub := &stubSessions{}
	router := NewRouter(stub)
	ctx := context.Background()

	reply := router.Handle(ctx, Request{Operator: "alice", Name: "fly"})
	assert.Equal(t, CodeUnknownCommand, reply.Code)

	reply = router.Handle(ctx, Request{Operator: "alice", Name: "settings", Args: []string{"host"}})
	assert.Equal(t, CodeInvalidArgument, reply.Code)
	assert.Contains(t, reply.Text, "/settings <host> <port> <name>")

	reply = router.Handle(ctx, Request{Operator: "alice", Name: "settings", Args: []string{"host", "port", "Bot1"}})
	assert.Equal(t, CodeInvalidArgument, reply.Code)

	reply = router.Handle(ctx, Request{Operator: "alice", Name: "chat"})
	assert.Equal(t, CodeInvalidArgument, reply.Code)

	reply = router.Handle(ctx, Request{Operator: "alice", Name: "delay", Args: []string{"-4"}})
	assert.Equal(t, CodeInvalidArgument, reply.Code)

	reply = router.Handle(ctx, Request{Name: "connect"})
	assert.Equal(t, CodeInvalidArgument, reply.Code)
	assert.Empty(t, stub.calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	reply = router.Handle(cancelled, Request{Operator: "alice", Name: "connect"})
	assert.Equal(t, CodeUnavailable, reply.Code)
}

func TestHandleRecoversPanics(t *testing.T) {
	reply := NewRouter(&stubSessions{panic: true}).Handle(context.Background(), Request{Operator: "alice", Name: "look"})
	assert.False(t, reply.OK)
	assert.Equal(t, CodeInternal, reply.Code)
}

func TestStatusAndHelp(t *testing.T) {
	since := time.Now()
	stub := &stubSessions{snaps: []session.Snapshot{
		{Slot: 1, State: "connected", Host: "mc.example.com", Port: 19132, Identity: "Bot1", Uptime: "2m0s", ConnectedSince: &since},
		{Slot: 2, State: "faulted", Host: "b.example.com", Port: 19132, Identity: "Bot2", DesiredConnected: true},
	}}
	reply := NewRouter(stub).Handle(context.Background(), Request{Operator: "alice", Name: "status"})
	require.True(t, reply.OK)
	assert.Equal(t, "#1 connected mc.example.com:19132 as Bot1, up 2m0s\n#2 faulted b.example.com:19132 as Bot2, reconnecting", reply.Text)

	reply = NewRouter(&stubSessions{}).Handle(context.Background(), Request{Operator: "alice", Name: "status"})
	assert.Equal(t, CodeNotConfigured, reply.Code)

	reply = NewRouter(&stubSessions{}).Handle(context.Background(), Request{Operator: "alice", Name: "help"})
	require.True(t, reply.OK)
	for _, c := range commands {
		assert.Contains(t, reply.Text, c.usage)
	}
}

func TestScenarioThroughRouter(t *testing.T) {
	dialer := &sim.Dialer{}
	sup := supervisor.New(session.NewStore(5*time.Second), dialer, nil, supervisor.Options{MultiSlot: true})
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	router := NewRouter(sup)
	ctx := context.Background()

	run := func(line string) Reply {
		req, err := Parse(line)
		require.NoError(t, err)
		req.Operator = "alice"
		return router.Handle(ctx, req)
	}

	assert.Equal(t, CodeNotConfigured, run("/connect").Code)
	require.True(t, run("/settings mc.example.com 25565 Bot1").OK)
	require.True(t, run("/connect").OK)
	require.Eventually(t, func() bool {
		return run("/chat hello").OK
	}, 2*time.Second, 10*time.Millisecond)

	conns := dialer.Conns()
	require.Len(t, conns, 1)
	assert.Equal(t, []string{"hello"}, conns[0].Chat())

	require.True(t, run("/disconnect").OK)
	reply := run("/chat hello")
	assert.Equal(t, CodeNotConnected, reply.Code)
	assert.Equal(t, "No active connection.", reply.Text)
}
