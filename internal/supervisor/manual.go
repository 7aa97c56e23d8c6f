package supervisor

import (
	"github.com/life-stream-dev/afk-bridge/internal/clock"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// manualLoop is a repeating jump with an absolute auto-stop deadline.
type manualLoop struct {
	ticker   clock.Timer
	deadline clock.Timer
}

func (m *manualLoop) Stop() bool {
	a := m.ticker.Stop()
	b := m.deadline.Stop()
	return a || b
}

// ToggleJump starts the manual jump loop, or stops it when one is running.
// It reports whether a loop is running afterwards.
func (s *Supervisor) ToggleJump(op session.Operator, slot int) (bool, error) {
	if !s.opts.Manual.Enabled {
		return false, session.ErrCapabilityDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.live(op, slot)
	if err != nil {
		return false, err
	}
	rec := g.rec

	if rec.ManualLoop != nil {
		rec.ManualLoop.Stop()
		rec.ManualLoop = nil
		logger.InfoF("[%s] Jump loop stopped", rec.Label())
		return false, nil
	}

	loop := &manualLoop{}
	loop.ticker = clock.Every(s.clock, s.opts.Manual.JumpInterval, func() { s.manualTick(g, loop) })
	loop.deadline = s.clock.AfterFunc(s.opts.Manual.AutoStop, func() { s.manualExpire(g, loop) })
	rec.ManualLoop = loop
	logger.InfoF("[%s] Jump loop started for %s", rec.Label(), s.opts.Manual.AutoStop)
	return true, nil
}

func (s *Supervisor) manualTick(g *generation, loop *manualLoop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.rec.ManualLoop != loop || !s.current(g) {
		return
	}
	s.perform(g, peer.Jump())
}

func (s *Supervisor) manualExpire(g *generation, loop *manualLoop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := g.rec
	if rec.ManualLoop != loop {
		return
	}
	loop.Stop()
	rec.ManualLoop = nil
	logger.DebugF("[%s] Jump loop reached its deadline", rec.Label())
}
