package notify

import (
	"context"

	"github.com/life-stream-dev/afk-bridge/internal/logger"
)

// LogSink writes every event to the application log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, ev Event) error {
	switch ev.Kind {
	case KindFault, KindGaveUp:
		logger.WarnF("[%s] %s", ev.Label(), ev.Message())
	default:
		logger.InfoF("[%s] %s", ev.Label(), ev.Message())
	}
	return nil
}
