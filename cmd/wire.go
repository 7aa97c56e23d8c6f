package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/life-stream-dev/afk-bridge/internal/command"
	"github.com/life-stream-dev/afk-bridge/internal/config"
	"github.com/life-stream-dev/afk-bridge/internal/connection"
	"github.com/life-stream-dev/afk-bridge/internal/dashboard"
	"github.com/life-stream-dev/afk-bridge/internal/database"
	"github.com/life-stream-dev/afk-bridge/internal/event"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/notify"
	"github.com/life-stream-dev/afk-bridge/internal/peer"
	"github.com/life-stream-dev/afk-bridge/internal/peer/bedrock"
	"github.com/life-stream-dev/afk-bridge/internal/peer/sim"
	"github.com/life-stream-dev/afk-bridge/internal/server"
	"github.com/life-stream-dev/afk-bridge/internal/session"
	"github.com/life-stream-dev/afk-bridge/internal/supervisor"
)

const (
	driverBedrock   = "bedrock"
	driverSim       = "sim"
	memoryEventSize = 500
)

type app struct {
	cfg        config.Config
	supervisor *supervisor.Supervisor
	dispatcher *notify.Dispatcher
	router     *command.Router
	console    *server.Server
	dashboard  *dashboard.Server
	mongo      *database.Client
	events     database.EventStore
}

func newDialer(cfg config.Config) (peer.Dialer, error) {
	switch cfg.Peer.Driver {
	case driverBedrock, "":
		return bedrock.Dialer{
			DialTimeout:  cfg.Peer.DialTimeout.Value(),
			SpawnTimeout: cfg.Peer.SpawnTimeout.Value(),
		}, nil
	case driverSim:
		return &sim.Dialer{SpawnDelay: cfg.Peer.SimSpawnDelay.Value()}, nil
	default:
		return nil, fmt.Errorf("unknown peer driver %q", cfg.Peer.Driver)
	}
}

func supervisorOptions(cfg config.Config) supervisor.Options {
	return supervisor.Options{
		MultiSlot:       cfg.Session.MultiSlot,
		SpawnBanner:     cfg.Session.SpawnBanner,
		ChatRelayWindow: cfg.Session.ChatRelayWindow.Value(),
		KeepAlive: supervisor.KeepAliveOptions{
			Enabled:      cfg.KeepAlive.Enabled,
			LookInterval: cfg.KeepAlive.LookInterval.Value(),
			JumpInterval: cfg.KeepAlive.JumpInterval.Value(),
		},
		Manual: supervisor.ManualOptions{
			Enabled:      cfg.Manual.Enabled,
			JumpInterval: cfg.Manual.JumpInterval.Value(),
			AutoStop:     cfg.Manual.AutoStop.Value(),
			MoveDuration: cfg.Manual.MoveDuration.Value(),
		},
		Policy: supervisor.Policy{
			Strategy:       cfg.Reconnect.Strategy,
			MaxAttempts:    cfg.Reconnect.MaxAttempts,
			MaxDelay:       cfg.Reconnect.MaxDelay.Value(),
			Jitter:         cfg.Reconnect.Jitter,
			IdentityPolicy: cfg.Reconnect.IdentityPolicy,
			FaultPolicy:    cfg.Reconnect.FaultPolicy,
		},
	}
}

// wireApp builds every component from cfg. Nothing listens yet.
func wireApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Enabled {
		a.mongo, err = database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := database.NewMongoEventStore(ctx, a.mongo)
		if err != nil {
			_ = a.mongo.Invoke(ctx)
			return nil, err
		}
		a.events = store
	} else {
		a.events = database.NewMemoryEventStore(memoryEventSize)
	}

	a.dispatcher = notify.NewDispatcher(0, 0, notify.LogSink{}, a.events)
	a.supervisor = supervisor.New(session.NewStore(cfg.Session.ReconnectDelay.Value()), dialer, a.dispatcher, supervisorOptions(cfg))
	a.router = command.NewRouter(a.supervisor)

	if cfg.Console.Enabled {
		conns := connection.NewManager()
		a.console = server.New(server.Options{
			Listen:           cfg.Console.Listen,
			MaxConnections:   cfg.Console.MaxConnections,
			HandshakeTimeout: cfg.Console.HandshakeTimeout.Value(),
			IdleTimeout:      cfg.Console.IdleTimeout.Value(),
		}, a.router, conns)
		a.dispatcher.AddSink(server.NewConsoleSink(conns))
	}

	if cfg.Dashboard.Enabled {
		tokens, err := dashboard.NewTokenManager(cfg.Dashboard.JWTSecret)
		if err != nil {
			logger.WarnF("Dashboard command API disabled: %v", err)
		}
		a.dashboard = dashboard.New(dashboard.Options{
			Listen:         cfg.Dashboard.Listen,
			AllowedOrigins: cfg.Dashboard.AllowedOrigins,
			Debug:          cfg.App.DebugMode,
			Banner:         cfg.App.Name + " dashboard",
		}, a.supervisor, a.router, a.events, tokens, nil)
		a.dispatcher.AddSink(a.dashboard.Hub())
	}
	return a, nil
}

// hooks returns the shutdown order: front doors first, storage last.
func (a *app) hooks() []event.Callable {
	var hooks []event.Callable
	if a.dashboard != nil {
		hooks = append(hooks, a.dashboard)
	}
	if a.console != nil {
		hooks = append(hooks, a.console)
	}
	hooks = append(hooks, a.supervisor, a.dispatcher)
	if a.mongo != nil {
		hooks = append(hooks, a.mongo)
	}
	return hooks
}

// listen binds every enabled front door, closing what was bound on failure.
func (a *app) listen() error {
	if a.console != nil {
		if err := a.console.Listen(); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}
	if a.dashboard != nil {
		if err := a.dashboard.Listen(); err != nil {
			var closeErr error
			if a.console != nil {
				closeErr = a.console.Close(context.Background())
			}
			return errors.Join(fmt.Errorf("dashboard: %w", err), closeErr)
		}
	}
	return nil
}
