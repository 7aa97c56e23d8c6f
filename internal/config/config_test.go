package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	c, err := ReadConfig(path)
	require.ErrorIs(t, err, ErrConfigCreated)
	assert.Equal(t, Default(), c)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	// The generated file must load cleanly on the next start.
	c, err = ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7878", c.Console.Listen)
	assert.Equal(t, 5*time.Second, c.Session.ReconnectDelay.Value())
}

func TestReadConfigMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[session]
reconnect_delay = "2s"
multi_slot = false

[reconnect]
strategy = "backoff"
max_attempts = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.Session.ReconnectDelay.Value())
	assert.False(t, c.Session.MultiSlot)
	assert.Equal(t, "backoff", c.Reconnect.Strategy)
	assert.Equal(t, 4, c.Reconnect.MaxAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, 800*time.Millisecond, c.Manual.JumpInterval.Value())
	assert.Equal(t, "keep", c.Reconnect.IdentityPolicy)
}

func TestReadConfigEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, WriteDefault(path))
	t.Setenv("AFKB_DASHBOARD_JWT_SECRET", "from-env")
	t.Setenv("AFKB_PEER_DRIVER", "sim")

	c, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Dashboard.JWTSecret)
	assert.Equal(t, "sim", c.Peer.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad duration", func(c *Config) { c.Session.ReconnectDelay = "soon" }, "session.reconnect_delay"},
		{"zero duration", func(c *Config) { c.KeepAlive.LookInterval = "0s" }, "keepalive.look_interval must be positive"},
		{"unknown driver", func(c *Config) { c.Peer.Driver = "java" }, "peer.driver"},
		{"unknown strategy", func(c *Config) { c.Reconnect.Strategy = "random" }, "reconnect.strategy"},
		{"unknown identity policy", func(c *Config) { c.Reconnect.IdentityPolicy = "swap" }, "reconnect.identity_policy"},
		{"unknown fault policy", func(c *Config) { c.Reconnect.FaultPolicy = "panic" }, "reconnect.fault_policy"},
		{"jitter range", func(c *Config) { c.Reconnect.Jitter = 1.5 }, "reconnect.jitter"},
		{"db port", func(c *Config) { c.Database.Enabled = true; c.Database.Port = 70000 }, "database.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
