package supervisor

import (
	"fmt"

	"github.com/life-stream-dev/afk-bridge/internal/clock"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// startKeepAlive starts the look and jump timers for g. Caller holds s.mu.
func (s *Supervisor) startKeepAlive(g *generation) {
	ka := s.opts.KeepAlive
	if !ka.Enabled {
		return
	}
	st := s.state(g.rec)
	if st.keepAlive != nil {
		st.keepAlive.Stop()
	}
	st.keepAlive = clock.Group{
		clock.Every(s.clock, ka.LookInterval, func() { s.keepAliveTick(g, peer.LookRandom()) }),
		clock.Every(s.clock, ka.JumpInterval, func() { s.keepAliveTick(g, peer.Jump()) }),
	}
}

func (s *Supervisor) keepAliveTick(g *generation, action peer.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(g) || g.rec.State != session.Connected {
		return
	}
	s.perform(g, action)
}

// perform runs a best-effort action; failures and panics are logged only.
// Caller holds s.mu.
func (s *Supervisor) perform(g *generation, action peer.Action) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorF("[%s] %v", g.rec.Label(), &ActionError{Action: action.Kind, Err: fmt.Errorf("panic: %v", r)})
		}
	}()
	if err := g.handle.PerformAction(action); err != nil {
		logger.WarnF("[%s] %v", g.rec.Label(), &ActionError{Action: action.Kind, Err: err})
	}
}
