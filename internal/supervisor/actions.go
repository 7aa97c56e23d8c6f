package supervisor

import (
	"errors"
	"strings"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// Capabilities reported by Panel.
const (
	CapChat         = "chat"
	CapLook         = "look"
	CapAttack       = "attack"
	CapPlayers      = "players"
	CapSimulateChat = "simulate-chat"
	CapMove         = "move"
	CapJump         = "jump"
	CapKeepAlive    = "keepalive"
)

var smallTalk = []string{
	"hi",
	"brb",
	"anyone around?",
	"nice build",
	"lol",
	"gg",
	"what's up",
}

// live returns the connected generation of a slot. Caller holds s.mu.
func (s *Supervisor) live(op session.Operator, slot int) (*generation, error) {
	rec, ok := s.store.Lookup(op, s.slot(slot))
	if !ok {
		return nil, session.ErrNotConnected
	}
	g := s.state(rec).gen
	if g == nil || rec.Peer == nil {
		return nil, session.ErrNotConnected
	}
	if rec.State != session.Connected {
		return nil, session.ErrNotReady
	}
	return g, nil
}

func peerError(err error) error {
	switch {
	case errors.Is(err, peer.ErrClosed):
		return session.ErrNotConnected
	case errors.Is(err, peer.ErrNotReady):
		return session.ErrNotReady
	}
	return err
}

// SendChatLine forwards text to the world unchanged.
func (s *Supervisor) SendChatLine(op session.Operator, slot int, text string) error {
	if strings.TrimSpace(text) == "" {
		return session.InvalidArgument("message is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.live(op, slot)
	if err != nil {
		return err
	}
	if err := g.handle.SendChatLine(text); err != nil {
		return peerError(err)
	}
	return nil
}

// Look turns the presence to a random direction.
func (s *Supervisor) Look(op session.Operator, slot int) error {
	return s.act(op, slot, peer.LookRandom())
}

// Attack swings at the nearest entity.
func (s *Supervisor) Attack(op session.Operator, slot int) error {
	return s.act(op, slot, peer.AttackNearest())
}

// Move walks forward for the configured duration.
func (s *Supervisor) Move(op session.Operator, slot int) error {
	return s.act(op, slot, peer.MoveForward(s.opts.Manual.MoveDuration))
}

func (s *Supervisor) act(op session.Operator, slot int, action peer.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.live(op, slot)
	if err != nil {
		return err
	}
	if err := g.handle.PerformAction(action); err != nil {
		if errors.Is(err, peer.ErrClosed) || errors.Is(err, peer.ErrNotReady) {
			return peerError(err)
		}
		logger.WarnF("[%s] %s failed: %v", g.rec.Label(), action.Kind, err)
		return &ActionError{Action: action.Kind, Err: err}
	}
	return nil
}

// Players lists the names currently in the world.
func (s *Supervisor) Players(op session.Operator, slot int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.live(op, slot)
	if err != nil {
		return nil, err
	}
	return g.handle.PeerNames(), nil
}

// SimulateChat sends a canned small-talk line and returns it.
func (s *Supervisor) SimulateChat(op session.Operator, slot int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.live(op, slot)
	if err != nil {
		return "", err
	}
	line := smallTalk[s.rnd.IntN(len(smallTalk))]
	if err := g.handle.SendChatLine(line); err != nil {
		return "", peerError(err)
	}
	return line, nil
}

// Panel lists what the operator can do with a connected slot.
func (s *Supervisor) Panel(op session.Operator, slot int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.store.Lookup(op, s.slot(slot))
	if !ok || rec.Peer == nil {
		return nil, session.ErrNotConnected
	}
	caps := []string{CapChat, CapLook, CapAttack, CapPlayers, CapSimulateChat, CapMove}
	if s.opts.Manual.Enabled {
		caps = append(caps, CapJump)
	}
	if s.opts.KeepAlive.Enabled {
		caps = append(caps, CapKeepAlive)
	}
	return caps, nil
}
