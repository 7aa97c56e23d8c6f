package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/life-stream-dev/afk-bridge/internal/config"
	"github.com/life-stream-dev/afk-bridge/internal/event"
	"github.com/life-stream-dev/afk-bridge/internal/logger"
	"github.com/life-stream-dev/afk-bridge/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigCreated) {
			return fmt.Errorf("%w (%s)", err, configPath)
		}
		return fmt.Errorf("error occured while reading config: %w", err)
	}

	loggerCallback := logger.Init(cfg.App.LogDir, cfg.App.DebugMode)
	logger.InfoF("Application initializing, %s", version.String())

	cleaner := event.NewCleaner()
	a, err := wireApp(ctx, cfg)
	if err != nil {
		logger.ErrorF("Error occured while initializing, details: %v", err)
		cleaner.Init(ctx, loggerCallback)
		cleaner.Clean()
		return err
	}
	for _, hook := range a.hooks() {
		cleaner.Add(hook)
	}
	cleaner.Init(ctx, loggerCallback)

	if err := a.listen(); err != nil {
		logger.ErrorF("Error occured while binding listeners, details: %v", err)
		cleaner.Clean()
		return err
	}

	if a.console != nil {
		go func() {
			if err := a.console.Serve(); err != nil {
				logger.ErrorF("Operator console stopped, details: %v", err)
				cleaner.Clean()
			}
		}()
	}
	if a.dashboard != nil {
		go func() {
			if err := a.dashboard.Serve(); err != nil {
				logger.ErrorF("Dashboard stopped, details: %v", err)
				cleaner.Clean()
			}
		}()
	}

	logger.Info("Bridge online")
	<-cleaner.Done()
	return cleaner.Err()
}
