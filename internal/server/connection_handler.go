package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/command"
	"github.com/life-stream-dev/afk-bridge/internal/connection"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

var errBadHandshake = errors.New("expected HELLO <operator>")

type ConnectionHandler struct {
	server  *Server
	conn    net.Conn
	connID  string
	scanner *bufio.Scanner
	client  *connection.Connection
}

func (c *ConnectionHandler) readLine(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.scanner.Text()), nil
}

func (c *ConnectionHandler) handleFirstLine() error {
	line, err := c.readLine(c.server.opts.HandshakeTimeout)
	if err != nil {
		logger.WarnF("[%s] Fail to read first line, details: %v", c.connID, err)
		return err
	}

	keyword, operator, _ := strings.Cut(line, " ")
	operator = strings.TrimSpace(operator)
	if !strings.EqualFold(keyword, "HELLO") || operator == "" || strings.ContainsAny(operator, " \t") {
		logger.ErrorF("[%s] Invalid first line %q", c.connID, line)
		_ = connection.Send(c.conn, []byte("ERR handshake "+errBadHandshake.Error()+"\n"), c.connID)
		return errBadHandshake
	}

	c.client = &connection.Connection{Conn: c.conn, ConnID: c.connID, Operator: session.Operator(operator)}
	c.server.conns.AddConnection(c.client)
	return c.client.SendLine(fmt.Sprintf("OK hello %s, type /help for commands", operator))
}

func (c *ConnectionHandler) handleLines() {
	for {
		line, err := c.readLine(c.server.opts.IdleTimeout)
		if err != nil {
			connection.HandleReadError(c.connID, err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Time{})

		logger.DebugF("[%s] Receive line %q", c.connID, line)

		switch strings.ToUpper(line) {
		case "":
			continue
		case "PING":
			if err := c.client.SendLine("PONG"); err != nil {
				return
			}
			continue
		case "QUIT":
			_ = c.client.SendLine("BYE")
			logger.InfoF("[%s] Client quit", c.connID)
			return
		}

		reply := c.server.handler.HandleLine(c.server.ctx, c.client.Operator, line)
		if err := c.client.SendLine(formatReply(reply)); err != nil {
			return
		}
	}
}

func (c *ConnectionHandler) handleConnection() {
	c.scanner = bufio.NewScanner(c.conn)
	c.scanner.Buffer(make([]byte, 0, 1024), maxLineLength)

	defer func() {
		logger.DebugF("[%s] Connection closed", c.connID)
		if c.client != nil {
			c.server.conns.RemoveConnection(c.connID)
		}
		if err := c.conn.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.connID, err)
		}
	}()

	if err := c.handleFirstLine(); err != nil {
		return
	}

	c.handleLines()
}

// formatReply renders "OK <text>" or "ERR <code> <text>"; continuation lines are indented.
func formatReply(r command.Reply) string {
	text := strings.ReplaceAll(r.Text, "\n", "\n  ")
	if r.OK {
		return "OK " + text
	}
	return "ERR " + r.Code + " " + text
}
