package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/life-stream-dev/afk-bridge/internal/config"
	"github.com/life-stream-dev/afk-bridge/internal/dashboard"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl string
	cmd := &cobra.Command{
		Use:   "token <operator>",
		Short: "Mint a dashboard API token for an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			cfg, err := config.ReadConfig(opts.configPath)
			if err != nil {
				return err
			}
			d := config.Duration(ttl)
			if ttl != "" && d.Value() == 0 && ttl != "0" {
				return fmt.Errorf("invalid --ttl %q", ttl)
			}
			token, err := dashboard.IssueToken(cfg.Dashboard.JWTSecret, args[0], d.Value())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&ttl, "ttl", "30d", "token lifetime, e.g. 12h or 30d; 0 never expires")
	return cmd
}
