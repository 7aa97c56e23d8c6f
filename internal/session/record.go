// Package session 保存每个操作者的会话记录
package session

import (
	"fmt"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/clock"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/utils"
)

// MaxSlots is the number of records an operator may hold.
const MaxSlots = 2

// Operator identifies the human driving a session.
type Operator string

// ClampSlot maps any requested slot into [1, MaxSlots].
func ClampSlot(slot int) int {
	if slot < 1 {
		return 1
	}
	if slot > MaxSlots {
		return MaxSlots
	}
	return slot
}

// State is the supervisor state of a record.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Terminating
	Faulted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Terminating:
		return "terminating"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Record is one managed connection. All fields are owned by the supervisor and
// must only be touched while holding its lock.
type Record struct {
	Operator Operator
	Slot     int

	Host         string
	Port         int
	Identity     string
	BaseIdentity string

	DesiredConnected bool
	ReconnectDelay   time.Duration
	JoinCommand      string

	Peer           peer.Handle
	ManualLoop     clock.Timer
	ConnectedSince time.Time
	DisplayTag     string

	State      State
	Generation uint64
	Attempts   int
	LastError  string
}

// Configured reports whether host, port and identity are all set.
func (r *Record) Configured() bool {
	return r.Host != "" && r.Port > 0 && r.Identity != ""
}

// Target returns the peer target for the current settings.
func (r *Record) Target() peer.Target {
	return peer.Target{Host: r.Host, Port: r.Port, Identity: r.Identity}
}

// Label is the log prefix for the record, e.g. "alice#1".
func (r *Record) Label() string {
	return fmt.Sprintf("%s#%d", r.Operator, r.Slot)
}

// Snapshot is a read-only copy of a record for status replies and the dashboard.
type Snapshot struct {
	Operator         string     `json:"operator"`
	Slot             int        `json:"slot"`
	Host             string     `json:"host,omitempty"`
	Port             int        `json:"port,omitempty"`
	Identity         string     `json:"identity,omitempty"`
	State            string     `json:"state"`
	DesiredConnected bool       `json:"desired_connected"`
	ReconnectDelay   string     `json:"reconnect_delay"`
	HasJoinCommand   bool       `json:"has_join_command"`
	ConnectedSince   *time.Time `json:"connected_since,omitempty"`
	Uptime           string     `json:"uptime,omitempty"`
	DisplayTag       string     `json:"display_tag,omitempty"`
	ManualLoop       bool       `json:"manual_loop"`
	Attempts         int        `json:"attempts"`
	LastError        string     `json:"last_error,omitempty"`
}

// Snapshot copies r, computing uptime against now.
func (r *Record) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Operator:         string(r.Operator),
		Slot:             r.Slot,
		Host:             r.Host,
		Port:             r.Port,
		Identity:         r.Identity,
		State:            r.State.String(),
		DesiredConnected: r.DesiredConnected,
		ReconnectDelay:   utils.FormatDuration(r.ReconnectDelay),
		HasJoinCommand:   r.JoinCommand != "",
		DisplayTag:       r.DisplayTag,
		ManualLoop:       r.ManualLoop != nil,
		Attempts:         r.Attempts,
		LastError:        r.LastError,
	}
	if !r.ConnectedSince.IsZero() {
		since := r.ConnectedSince
		s.ConnectedSince = &since
		s.Uptime = now.Sub(since).Truncate(time.Second).String()
	}
	return s
}
