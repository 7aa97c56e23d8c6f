// Package command turns operator requests into supervisor calls and every
// outcome into exactly one reply.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/session"
	"github.com/life-stream-dev/afk-bridge/internal/supervisor"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrEmpty          = errors.New("empty command")
)

// Sessions is the part of the supervisor the router drives.
type Sessions interface {
	Configure(op session.Operator, slot int, host string, port int, identity string) error
	Connect(op session.Operator, slot int) error
	Disconnect(op session.Operator, slot int) error
	SetJoinCommand(op session.Operator, slot int, text string) error
	SetReconnectDelay(op session.Operator, slot int, d time.Duration) error
	ForceReconnect(op session.Operator, slot int) (string, error)
	RenameIdentity(op session.Operator, slot int, identity string) (bool, error)
	SendChatLine(op session.Operator, slot int, text string) error
	ToggleJump(op session.Operator, slot int) (bool, error)
	Look(op session.Operator, slot int) error
	Attack(op session.Operator, slot int) error
	Move(op session.Operator, slot int) error
	Players(op session.Operator, slot int) ([]string, error)
	SimulateChat(op session.Operator, slot int) (string, error)
	Panel(op session.Operator, slot int) ([]string, error)
	Snapshot(op session.Operator) ([]session.Snapshot, bool)
	Slot(slot int) int
}

var _ Sessions = (*supervisor.Supervisor)(nil)

// Request is one operator command. Slot 0 means the default slot.
type Request struct {
	Operator session.Operator `json:"-"`
	Name     string           `json:"name"`
	Slot     int              `json:"slot,omitempty"`
	Args     []string         `json:"args,omitempty"`
}

// Reply codes.
const (
	CodeOK               = "ok"
	CodeNotConfigured    = "not_configured"
	CodeNotConnected     = "not_connected"
	CodeNotReady         = "not_ready"
	CodeAlreadyConnected = "already_connected"
	CodeDisabled         = "disabled"
	CodeInvalidArgument  = "invalid_argument"
	CodeActionFailed     = "action_failed"
	CodeUnknownCommand   = "unknown_command"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

type Reply struct {
	OK   bool   `json:"ok"`
	Code string `json:"code"`
	Text string `json:"text"`
}

type Router struct {
	sessions Sessions
}

func NewRouter(sessions Sessions) *Router {
	return &Router{sessions: sessions}
}

// Handle runs req. Errors and panics never escape; they become failure replies.
func (r *Router) Handle(ctx context.Context, req Request) (reply Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorF("[%s] Command %s panicked: %v", req.Operator, req.Name, rec)
			reply = Reply{Code: CodeInternal, Text: "Something went wrong, please try again."}
		}
	}()

	if err := ctx.Err(); err != nil {
		return failure(req, supervisor.ErrStopped)
	}
	if req.Operator == "" {
		return failure(req, session.InvalidArgument("missing operator"))
	}

	cmd, ok := lookup(req.Name)
	if !ok {
		return failure(req, ErrUnknownCommand)
	}
	req.Name = cmd.name
	if err := cmd.check(req.Args); err != nil {
		return failure(req, err)
	}

	text, err := cmd.run(r, req)
	if err != nil {
		return failure(req, err)
	}
	logger.DebugF("[%s] %s ok", req.Operator, req.Name)
	return Reply{OK: true, Code: CodeOK, Text: text}
}

// HandleLine parses one console line for operator and runs it.
func (r *Router) HandleLine(ctx context.Context, operator session.Operator, line string) Reply {
	req, err := Parse(line)
	req.Operator = operator
	if err != nil {
		return failure(req, err)
	}
	return r.Handle(ctx, req)
}

func failure(req Request, err error) Reply {
	var actionErr *supervisor.ActionError
	switch {
	case errors.Is(err, session.ErrNotConfigured):
		return Reply{Code: CodeNotConfigured, Text: "Set up the connection settings first: /settings <host> <port> <name>."}
	case errors.Is(err, session.ErrNotConnected):
		return Reply{Code: CodeNotConnected, Text: "No active connection."}
	case errors.Is(err, session.ErrNotReady):
		return Reply{Code: CodeNotReady, Text: "Still joining the world, try again in a moment."}
	case errors.Is(err, session.ErrAlreadyConnected):
		return Reply{Code: CodeAlreadyConnected, Text: "Already connected. Use /reconnect to start over."}
	case errors.Is(err, session.ErrCapabilityDisabled):
		return Reply{Code: CodeDisabled, Text: "That action is turned off on this bridge."}
	case errors.Is(err, session.ErrInvalidArgument):
		return Reply{Code: CodeInvalidArgument, Text: "Invalid input: " + strings.TrimPrefix(err.Error(), session.ErrInvalidArgument.Error()+": ") + "."}
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrEmpty):
		return Reply{Code: CodeUnknownCommand, Text: "Unknown command. Type /help for the list."}
	case errors.Is(err, supervisor.ErrStopped):
		return Reply{Code: CodeUnavailable, Text: "The bridge is shutting down."}
	case errors.As(err, &actionErr):
		return Reply{Code: CodeActionFailed, Text: fmt.Sprintf("Could not %s right now.", actionVerb(actionErr))}
	default:
		logger.ErrorF("[%s] Command %s failed: %v", req.Operator, req.Name, err)
		return Reply{Code: CodeInternal, Text: "Something went wrong, please try again."}
	}
}

func actionVerb(err *supervisor.ActionError) string {
	switch err.Action {
	case peer.ActionAttackNearest:
		return "attack"
	case peer.ActionMoveForward:
		return "walk forward"
	case peer.ActionLookRandom:
		return "look around"
	default:
		return "jump"
	}
}
