// Package dashboard serves the read-only HTTP status views, the authenticated
// command endpoint and the websocket event feed.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/life-stream-dev/afk-bridge/internal/command"
	"github.com/life-stream-dev/afk-bridge/internal/database"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// Sessions is the read side of the supervisor.
type Sessions interface {
	Snapshots() []session.Snapshot
	Snapshot(op session.Operator) ([]session.Snapshot, bool)
}

// Commands runs an operator request.
type Commands interface {
	Handle(ctx context.Context, req command.Request) command.Reply
}

type Options struct {
	Listen         string
	AllowedOrigins []string
	Debug          bool
	Banner         string
}

type Server struct {
	opts     Options
	sessions Sessions
	commands Commands
	events   database.EventStore
	tokens   *TokenManager
	hub      *Hub
	engine   *gin.Engine

	mu   sync.Mutex
	http *http.Server
	ln   net.Listener
}

// New builds the routes. tokens may be nil, in which case POST /api/commands
// answers 503. events may be nil, in which case GET /api/events answers 503.
func New(opts Options, sessions Sessions, commands Commands, events database.EventStore, tokens *TokenManager, hub *Hub) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.Banner == "" {
		opts.Banner = "afk-bridge dashboard"
	}
	if hub == nil {
		hub = NewHub(opts.AllowedOrigins)
	}
	s := &Server{
		opts:     opts,
		sessions: sessions,
		commands: commands,
		events:   events,
		tokens:   tokens,
		hub:      hub,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggingMiddleware())

	if len(s.opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  s.opts.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, s.opts.Banner)
	})
	router.GET("/ws", s.hub.ServeWS)

	api := router.Group("/api")
	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:operator", s.operatorSessions)
	api.GET("/events", s.recentEvents)

	protected := api.Group("")
	if s.tokens != nil {
		protected.Use(AuthMiddleware(s.tokens))
		protected.POST("/commands", s.runCommand)
	} else {
		protected.POST("/commands", func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "command api disabled: no jwt secret configured"})
		})
	}
	return router
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the websocket hub, which is also a notification sink.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.Snapshots()})
}

func (s *Server) operatorSessions(c *gin.Context) {
	op := session.Operator(c.Param("operator"))
	snaps, ok := s.sessions.Snapshot(op)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown operator"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operator": op, "sessions": snaps})
}

func (s *Server) recentEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log disabled"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	events, err := s.events.Recent(c.Request.Context(), c.Query("operator"), limit)
	if err != nil {
		logger.ErrorF("Fail to read event log, details: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event log unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) runCommand(c *gin.Context) {
	op, ok := operatorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing operator"})
		return
	}
	var req command.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, command.Reply{Code: command.CodeInvalidArgument, Text: "Request body must be {\"name\", \"slot\", \"args\"}."})
		return
	}
	req.Operator = op
	reply := s.commands.Handle(c.Request.Context(), req)
	c.JSON(StatusFor(reply), reply)
}

// StatusFor maps a reply code to an HTTP status.
func StatusFor(r command.Reply) int {
	switch r.Code {
	case command.CodeOK:
		return http.StatusOK
	case command.CodeInvalidArgument:
		return http.StatusBadRequest
	case command.CodeUnknownCommand:
		return http.StatusNotFound
	case command.CodeNotConfigured, command.CodeNotConnected, command.CodeNotReady, command.CodeAlreadyConnected:
		return http.StatusConflict
	case command.CodeDisabled:
		return http.StatusForbidden
	case command.CodeActionFailed:
		return http.StatusBadGateway
	case command.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
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
	s.http = &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()
	logger.InfoF("Dashboard listening on %s", ln.Addr().String())
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve blocks until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.http, s.ln
	s.mu.Unlock()
	if srv == nil {
		return errors.New("dashboard not listening")
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) Invoke(ctx context.Context) error {
	logger.Info("Closing dashboard")
	return s.Shutdown(ctx)
}
