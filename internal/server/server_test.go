package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/afk-bridge/internal/command"
	"github.com/life-stream-dev/afk-bridge/internal/connection"
	"github.com/life-stream-dev/afk-bridge/internal/notify"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

type echoHandler struct {
	mu    sync.Mutex
	lines []string
}

func (h *echoHandler) HandleLine(_ context.Context, operator session.Operator, line string) command.Reply {
	h.mu.Lock()
	h.lines = append(h.lines, string(operator)+":"+line)
	h.mu.Unlock()
	if line == "/fail" {
		return command.Reply{Code: command.CodeNotConnected, Text: "No active connection."}
	}
	return command.Reply{OK: true, Code: command.CodeOK, Text: "done " + line}
}

type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func (c *client) send(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *client) read() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\n")
}

func pipe(t *testing.T, s *Server) (*client, <-chan struct{}) {
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		s.ServeConn(serverSide)
		close(done)
	}()
	t.Cleanup(func() { _ = clientSide.Close() })
	return &client{t: t, conn: clientSide, reader: bufio.NewReader(clientSide)}, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit")
	}
}

func TestConsoleSession(t *testing.T) {
	handler := &echoHandler{}
	conns := connection.NewManager()
	s := New(Options{}, handler, conns)
	c, done := pipe(t, s)

	c.send("HELLO alice")
	assert.Equal(t, "OK hello alice, type /help for commands", c.read())
	assert.Len(t, conns.ForOperator("alice"), 1)

	c.send("PING")
	assert.Equal(t, "PONG", c.read())

	c.send("/connect 2")
	assert.Equal(t, "OK done /connect 2", c.read())
	c.send("/fail")
	assert.Equal(t, "ERR not_connected No active connection.", c.read())

	c.send("QUIT")
	assert.Equal(t, "BYE", c.read())
	waitDone(t, done)

	assert.Equal(t, []string{"alice:/connect 2", "alice:/fail"}, handler.lines)
	assert.Empty(t, conns.ForOperator("alice"))
}

func TestConsoleRejectsBadHandshake(t *testing.T) {
	handler := &echoHandler{}
	s := New(Options{}, handler, nil)
	c, done := pipe(t, s)

	c.send("/connect")
	assert.Equal(t, "ERR handshake expected HELLO <operator>", c.read())
	waitDone(t, done)
	assert.Empty(t, handler.lines)
}

func TestConsoleIdleTimeout(t *testing.T) {
	s := New(Options{IdleTimeout: 50 * time.Millisecond}, &echoHandler{}, nil)
	c, done := pipe(t, s)

	c.send("HELLO alice")
	c.read()
	waitDone(t, done)
}

func TestConsoleSinkPushesToOperator(t *testing.T) {
	conns := connection.NewManager()
	s := New(Options{}, &echoHandler{}, conns)
	alice, _ := pipe(t, s)
	bob, _ := pipe(t, s)
	alice.send("HELLO alice")
	alice.read()
	bob.send("HELLO bob")
	bob.read()

	sink := NewConsoleSink(conns)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.Deliver(context.Background(), notify.Event{Kind: notify.KindDisconnected, Operator: "alice", Slot: 1})
	}()
	assert.Equal(t, "EVENT alice#1 disconnected", alice.read())
	require.NoError(t, <-errCh)
}

func TestFormatReply(t *testing.T) {
	assert.Equal(t, "OK a\n  b", formatReply(command.Reply{OK: true, Text: "a\nb"}))
	assert.Equal(t, "ERR invalid_argument bad", formatReply(command.Reply{Code: "invalid_argument", Text: "bad"}))
}

func TestServeOverTCP(t *testing.T) {
	s := New(Options{Listen: "127.0.0.1:0", MaxConnections: 1}, &echoHandler{}, nil)
	require.NoError(t, s.Listen())
	served := make(chan error, 1)
	go func() { served <- s.Serve() }()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	c := &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
	c.send("HELLO alice")
	assert.Equal(t, "OK hello alice, type /help for commands", c.read())

	// the only slot is taken
	extra, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	busy := &client{t: t, conn: extra, reader: bufio.NewReader(extra)}
	assert.Equal(t, "ERR busy Too many connections, try again later.", busy.read())
	_ = extra.Close()

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, <-served)
	_ = conn.Close()
}
