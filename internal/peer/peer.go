// Package peer describes the game-world connection consumed by the session supervisor.
//
// A Handle is one live connection attempt. Its lifecycle is reported through
// Events; implementations must never invoke an event callback synchronously
// from inside one of the Handle or Dialer methods.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Target is the remote world a Handle connects to.
type Target struct {
	Host     string
	Port     int
	Identity string
}

// Address returns host:port.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) String() string {
	return fmt.Sprintf("%s as %s", t.Address(), t.Identity)
}

// ActionKind names an in-world action.
type ActionKind string

const (
	ActionJump          ActionKind = "jump"
	ActionLookRandom    ActionKind = "look"
	ActionAttackNearest ActionKind = "attack"
	ActionMoveForward   ActionKind = "move"
)

// Action is one request to PerformAction. Duration only applies to ActionMoveForward.
type Action struct {
	Kind     ActionKind
	Duration time.Duration
}

func Jump() Action                       { return Action{Kind: ActionJump} }
func LookRandom() Action                 { return Action{Kind: ActionLookRandom} }
func AttackNearest() Action              { return Action{Kind: ActionAttackNearest} }
func MoveForward(d time.Duration) Action { return Action{Kind: ActionMoveForward, Duration: d} }

// Events are the lifecycle callbacks of a Handle. Nil callbacks are skipped.
type Events struct {
	OnReady   func()
	OnChat    func(speaker, text string)
	OnClosed  func()
	OnFaulted func(err error)
}

// Ready invokes OnReady if set.
func (e Events) Ready() {
	if e.OnReady != nil {
		e.OnReady()
	}
}

// Chat invokes OnChat if set.
func (e Events) Chat(speaker, text string) {
	if e.OnChat != nil {
		e.OnChat(speaker, text)
	}
}

// Closed invokes OnClosed if set.
func (e Events) Closed() {
	if e.OnClosed != nil {
		e.OnClosed()
	}
}

// Faulted invokes OnFaulted if set.
func (e Events) Faulted(err error) {
	if e.OnFaulted != nil {
		e.OnFaulted(err)
	}
}

// Handle is a live connection to a remote world.
type Handle interface {
	SendChatLine(text string) error
	PerformAction(action Action) error
	Close() error
	PeerNames() []string
}

// Dialer opens Handles. Open returns immediately; connection progress is
// reported through events.
type Dialer interface {
	Open(ctx context.Context, target Target, events Events) (Handle, error)
}

// ErrClosed is returned by Handle methods after Close or after the connection ended.
var ErrClosed = errors.New("peer connection closed")

// ErrNotReady is returned by actions attempted before the world was joined.
var ErrNotReady = errors.New("peer not spawned yet")

// ErrUnsupportedAction is returned for action kinds a Handle cannot perform.
type ErrUnsupportedAction struct {
	Kind ActionKind
}

func (e *ErrUnsupportedAction) Error() string {
	return fmt.Sprintf("unsupported action %q", e.Kind)
}
