package cmd

import (
	"github.com/spf13/cobra"

	"github.com/life-stream-dev/afk-bridge/internal/config"
)

func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "afk-bridge",
		Short:         "Keep game-world bots online on behalf of chat operators",
		Long:          "afk-bridge runs one or two idle bots per operator, reconnects them when they drop and accepts commands over a TCP console and an HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to config.toml")

	serve := newServeCmd(opts)
	rootCmd.RunE = serve.RunE

	rootCmd.AddCommand(
		serve,
		newTokenCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}
