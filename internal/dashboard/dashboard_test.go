package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/afk-bridge/internal/command"
	"github.com/life-stream-dev/afk-bridge/internal/database"
	"github.com/life-stream-dev/afk-bridge/internal/notify"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

type stubSessions struct{}

func (stubSessions) Snapshots() []session.Snapshot {
	return []session.Snapshot{{Operator: "alice", Slot: 1, State: "connected"}}
}

func (stubSessions) Snapshot(op session.Operator) ([]session.Snapshot, bool) {
	if op != "alice" {
		return nil, false
	}
	return []session.Snapshot{{Operator: "alice", Slot: 1, State: "connected"}}, true
}

type stubCommands struct {
	got []command.Request
}

func (s *stubCommands) Handle(_ context.Context, req command.Request) command.Reply {
	s.got = append(s.got, req)
	if req.Name == "jump" {
		return command.Reply{Code: command.CodeNotConnected, Text: "No active connection."}
	}
	return command.Reply{OK: true, Code: command.CodeOK, Text: "done"}
}

const secret = "test-secret"

func newTestServer(t *testing.T, events database.EventStore) (*Server, *stubCommands) {
	t.Helper()
	tokens, err := NewTokenManager(secret)
	require.NoError(t, err)
	cmds := &stubCommands{}
	return New(Options{AllowedOrigins: []string{"http://localhost:3000"}}, stubSessions{}, cmds, events, tokens, nil), cmds
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReadOnlyRoutes(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "afk-bridge dashboard", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/sessions", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Sessions []session.Snapshot `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all.Sessions, 1)
	assert.Equal(t, "alice", all.Sessions[0].Operator)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/sessions/alice", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/sessions/bob", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/events", "", "").Code)
}

func TestEventsRoute(t *testing.T) {
	events := database.NewMemoryEventStore(10)
	require.NoError(t, events.Deliver(context.Background(), notify.Event{ID: "1", Kind: notify.KindConnected, Operator: "alice", Slot: 1}))
	require.NoError(t, events.Deliver(context.Background(), notify.Event{ID: "2", Kind: notify.KindConnected, Operator: "bob", Slot: 1}))
	s, _ := newTestServer(t, events)

	rec := do(t, s.Handler(), http.MethodGet, "/api/events?operator=bob", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Events []notify.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "2", body.Events[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), http.MethodGet, "/api/events?limit=x", "", "").Code)
}

func TestCommandRequiresToken(t *testing.T) {
	s, cmds := newTestServer(t, nil)
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/commands", `{"name":"connect"}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/commands", `{"name":"connect"}`, "garbage").Code)

	forged, err := IssueToken("other-secret", "alice", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/api/commands", `{"name":"connect"}`, forged).Code)
	assert.Empty(t, cmds.got)
}

func TestCommandDispatch(t *testing.T) {
	s, cmds := newTestServer(t, nil)
	h := s.Handler()
	token, err := IssueToken(secret, "alice", time.Hour)
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/api/commands", `{"name":"connect","slot":2}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var reply command.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.True(t, reply.OK)

	rec = do(t, h, http.MethodPost, "/api/commands", `{"name":"jump"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/commands", `{`, token).Code)

	require.Len(t, cmds.got, 2)
	assert.Equal(t, session.Operator("alice"), cmds.got[0].Operator)
	assert.Equal(t, 2, cmds.got[0].Slot)
}

func TestCommandDisabledWithoutSecret(t *testing.T) {
	s := New(Options{}, stubSessions{}, &stubCommands{}, nil, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Handler(), http.MethodPost, "/api/commands", `{"name":"connect"}`, "").Code)
}

func TestTokens(t *testing.T) {
	_, err := NewTokenManager("")
	assert.ErrorIs(t, err, ErrNoSecret)

	m, err := NewTokenManager(secret)
	require.NoError(t, err)
	_, err = m.Issue("two words", time.Hour)
	assert.ErrorIs(t, err, session.ErrInvalidArgument)

	token, err := m.Issue("alice", 0)
	require.NoError(t, err)
	op, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, session.Operator("alice"), op)

	forever, err := m.Issue("alice", -time.Hour)
	require.NoError(t, err)
	_, err = m.Verify(forever)
	require.NoError(t, err, "non-positive ttl means no expiry")

	_, err = m.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusFor(command.Reply{OK: true, Code: command.CodeOK}))
	assert.Equal(t, http.StatusForbidden, StatusFor(command.Reply{Code: command.CodeDisabled}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(command.Reply{Code: command.CodeInternal}))
}

func TestWebsocketFeed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?operator=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hub := s.Hub()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Deliver(context.Background(), notify.Event{ID: "b", Kind: notify.KindChat, Operator: "bob"}))
	require.NoError(t, hub.Deliver(context.Background(), notify.Event{ID: "a", Kind: notify.KindConnected, Operator: "alice", Slot: 1}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev notify.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "a", ev.ID)
	assert.Equal(t, notify.KindConnected, ev.Kind)

	hub.Close()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	require.Error(t, err)
	if resp != nil {
		assert.NotEqual(t, http.StatusSwitchingProtocols, resp.StatusCode)
	}
}
