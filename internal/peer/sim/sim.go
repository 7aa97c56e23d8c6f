// Package sim is an in-process stand-in for a game world, used for local runs
// without a server and by transport tests.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/peer"
)

// Dialer opens simulated connections.
type Dialer struct {
	// SpawnDelay is how long a connection takes to report ready.
	SpawnDelay time.Duration
	// Residents are extra names returned by PeerNames.
	Residents []string

	mu    sync.Mutex
	conns []*Conn
}

var _ peer.Dialer = (*Dialer)(nil)

// Open implements peer.Dialer.
func (d *Dialer) Open(_ context.Context, target peer.Target, events peer.Events) (peer.Handle, error) {
	if target.Host == "" || target.Port <= 0 {
		return nil, fmt.Errorf("invalid target %s", target)
	}
	c := &Conn{
		target:    target,
		events:    events,
		residents: append([]string(nil), d.Residents...),
	}
	c.spawnTimer = time.AfterFunc(d.SpawnDelay, c.spawn)

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// Conns returns every connection opened so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Conn is one simulated connection.
type Conn struct {
	target    peer.Target
	events    peer.Events
	residents []string

	mu         sync.Mutex
	spawned    bool
	ended      bool
	spawnTimer *time.Timer
	chat       []string
	actions    []peer.Action
}

var _ peer.Handle = (*Conn)(nil)

func (c *Conn) spawn() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.spawned = true
	c.mu.Unlock()
	c.events.Ready()
}

// SendChatLine implements peer.Handle; the line is echoed back as a chat event.
func (c *Conn) SendChatLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return peer.ErrClosed
	}
	if !c.spawned {
		return peer.ErrNotReady
	}
	c.chat = append(c.chat, text)
	go c.events.Chat(c.target.Identity, text)
	return nil
}

// PerformAction implements peer.Handle.
func (c *Conn) PerformAction(action peer.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return peer.ErrClosed
	}
	if !c.spawned {
		return peer.ErrNotReady
	}
	c.actions = append(c.actions, action)
	return nil
}

// PeerNames implements peer.Handle.
func (c *Conn) PeerNames() []string {
	names := append([]string{c.target.Identity}, c.residents...)
	sort.Strings(names)
	return names
}

// Close implements peer.Handle.
func (c *Conn) Close() error {
	if !c.end() {
		return nil
	}
	go c.events.Closed()
	return nil
}

// Fault ends the connection with err, as a dropped transport would.
func (c *Conn) Fault(err error) {
	if err == nil {
		err = errors.New("simulated fault")
	}
	if !c.end() {
		return
	}
	go c.events.Faulted(err)
}

// Chat returns the lines sent through this connection.
func (c *Conn) Chat() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chat...)
}

// Actions returns the actions performed through this connection.
func (c *Conn) Actions() []peer.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]peer.Action(nil), c.actions...)
}

// Target returns the target the connection was opened with.
func (c *Conn) Target() peer.Target { return c.target }

func (c *Conn) end() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return false
	}
	c.ended = true
	c.spawnTimer.Stop()
	return true
}
