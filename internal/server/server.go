// Package server is the line-based TCP console operators use to send commands.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/command"
	"github.com/life-stream-dev/afk-bridge/internal/connection"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

const (
	defaultHandshakeTimeout = time.Minute
	defaultIdleTimeout      = 30 * time.Minute
	defaultMaxConnections   = 256
	maxLineLength           = 4096
)

// Handler runs one console line for an operator.
type Handler interface {
	HandleLine(ctx context.Context, operator session.Operator, line string) command.Reply
}

type Options struct {
	Listen           string
	MaxConnections   int
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
}

type Server struct {
	opts    Options
	handler Handler
	conns   *connection.Manager
	sem     chan struct{}
	nextID  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

func New(opts Options, handler Handler, conns *connection.Manager) *Server {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = defaultMaxConnections
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if conns == nil {
		conns = connection.NewManager()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:    opts,
		handler: handler,
		conns:   conns,
		sem:     make(chan struct{}, opts.MaxConnections),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	logger.InfoF("Operator console listening on %s", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until Close. It returns nil after Close.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("console not listening")
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			if connection.IsNetClosedError(err) {
				return err
			}
			logger.ErrorF("Accept connection error: %v", err)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		select {
		case s.sem <- struct{}{}:
		default:
			logger.WarnF("[%s] Too many console connections, rejecting", conn.RemoteAddr().String())
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = connection.Send(conn, []byte("ERR busy Too many connections, try again later.\n"), conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.ServeConn(c)
		}(conn)
	}
}

// ServeConn runs the console protocol on conn and closes it when done.
func (s *Server) ServeConn(conn net.Conn) {
	h := &ConnectionHandler{
		server: s,
		conn:   conn,
		connID: fmt.Sprintf("%s/%d", conn.RemoteAddr().String(), s.nextID.Add(1)),
	}
	h.handleConnection()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting, closes every console and waits for handlers to exit.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	s.cancel()
	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !connection.IsNetClosedError(cerr) {
			err = cerr
		}
	}
	s.conns.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}
	return err
}

func (s *Server) Invoke(ctx context.Context) error {
	logger.Info("Closing operator console")
	return s.Close(ctx)
}
