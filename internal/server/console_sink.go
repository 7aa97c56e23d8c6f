package server

import (
	"context"
	"errors"
	"time"

	"github.com/life-stream-dev/afk-bridge/internal/connection"
	"github.com/life-stream-dev/afk-bridge/internal/notify"
	"github.com/life-stream-dev/afk-bridge/internal/session"
)

// ConsoleSink pushes notifications to the consoles of the event's operator as
// "EVENT <message>" lines.
type ConsoleSink struct {
	conns *connection.Manager
}

func NewConsoleSink(conns *connection.Manager) *ConsoleSink {
	return &ConsoleSink{conns: conns}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) Deliver(ctx context.Context, ev notify.Event) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	var errs []error
	for _, c := range s.conns.ForOperator(session.Operator(ev.Operator)) {
		_ = c.Conn.SetWriteDeadline(deadline)
		if err := c.SendLine("EVENT " + ev.Message()); err != nil {
			errs = append(errs, err)
		}
		_ = c.Conn.SetWriteDeadline(time.Time{})
	}
	return errors.Join(errs...)
}
