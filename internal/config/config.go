package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/life-stream-dev/afk-bridge/internal/utils"
)

const (
	DefaultPath = "config.toml"
	EnvPrefix   = "AFKB"
)

// ErrConfigCreated is returned when no configuration existed and a default one was written.
var ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")

// Duration is a duration string such as "800ms", "5s" or "3m".
type Duration string

// Value parses d. Invalid values yield 0; Validate reports them.
func (d Duration) Value() time.Duration {
	v, err := utils.ParseStringTime(string(d))
	if err != nil {
		return 0
	}
	return v
}

type Config struct {
	App struct {
		Name      string `mapstructure:"name" toml:"name"`
		DebugMode bool   `mapstructure:"debug_mode" toml:"debug_mode"`
		LogDir    string `mapstructure:"log_dir" toml:"log_dir"`
	} `mapstructure:"app" toml:"app"`

	Console struct {
		Enabled          bool     `mapstructure:"enabled" toml:"enabled"`
		Listen           string   `mapstructure:"listen" toml:"listen"`
		MaxConnections   int      `mapstructure:"max_connections" toml:"max_connections"`
		HandshakeTimeout Duration `mapstructure:"handshake_timeout" toml:"handshake_timeout"`
		IdleTimeout      Duration `mapstructure:"idle_timeout" toml:"idle_timeout"`
	} `mapstructure:"console" toml:"console"`

	Dashboard struct {
		Enabled        bool     `mapstructure:"enabled" toml:"enabled"`
		Listen         string   `mapstructure:"listen" toml:"listen"`
		AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
		JWTSecret      string   `mapstructure:"jwt_secret" toml:"jwt_secret"`
	} `mapstructure:"dashboard" toml:"dashboard"`

	Peer struct {
		Driver        string   `mapstructure:"driver" toml:"driver"`
		DialTimeout   Duration `mapstructure:"dial_timeout" toml:"dial_timeout"`
		SpawnTimeout  Duration `mapstructure:"spawn_timeout" toml:"spawn_timeout"`
		SimSpawnDelay Duration `mapstructure:"sim_spawn_delay" toml:"sim_spawn_delay"`
	} `mapstructure:"peer" toml:"peer"`

	Session struct {
		MultiSlot       bool     `mapstructure:"multi_slot" toml:"multi_slot"`
		ReconnectDelay  Duration `mapstructure:"reconnect_delay" toml:"reconnect_delay"`
		SpawnBanner     string   `mapstructure:"spawn_banner" toml:"spawn_banner"`
		ChatRelayWindow Duration `mapstructure:"chat_relay_window" toml:"chat_relay_window"`
	} `mapstructure:"session" toml:"session"`

	KeepAlive struct {
		Enabled      bool     `mapstructure:"enabled" toml:"enabled"`
		LookInterval Duration `mapstructure:"look_interval" toml:"look_interval"`
		JumpInterval Duration `mapstructure:"jump_interval" toml:"jump_interval"`
	} `mapstructure:"keepalive" toml:"keepalive"`

	Manual struct {
		Enabled      bool     `mapstructure:"enabled" toml:"enabled"`
		JumpInterval Duration `mapstructure:"jump_interval" toml:"jump_interval"`
		AutoStop     Duration `mapstructure:"auto_stop" toml:"auto_stop"`
		MoveDuration Duration `mapstructure:"move_duration" toml:"move_duration"`
	} `mapstructure:"manual" toml:"manual"`

	Reconnect struct {
		Strategy       string   `mapstructure:"strategy" toml:"strategy"`
		MaxAttempts    int      `mapstructure:"max_attempts" toml:"max_attempts"`
		MaxDelay       Duration `mapstructure:"max_delay" toml:"max_delay"`
		Jitter         float64  `mapstructure:"jitter" toml:"jitter"`
		IdentityPolicy string   `mapstructure:"identity_policy" toml:"identity_policy"`
		FaultPolicy    string   `mapstructure:"fault_policy" toml:"fault_policy"`
	} `mapstructure:"reconnect" toml:"reconnect"`

	Database struct {
		Enabled            bool     `mapstructure:"enabled" toml:"enabled"`
		Host               string   `mapstructure:"host" toml:"host"`
		Port               uint64   `mapstructure:"port" toml:"port"`
		Username           string   `mapstructure:"username" toml:"username"`
		Password           string   `mapstructure:"password" toml:"password"`
		Database           string   `mapstructure:"database" toml:"database"`
		UseTLS             bool     `mapstructure:"use_tls" toml:"use_tls"`
		ConnectTimeout     Duration `mapstructure:"connect_timeout" toml:"connect_timeout"`
		SocketTimeout      Duration `mapstructure:"socket_timeout" toml:"socket_timeout"`
		ConnectIdleTimeout Duration `mapstructure:"connect_idle_timeout" toml:"connect_idle_timeout"`
		OperationTimeout   Duration `mapstructure:"operation_timeout" toml:"operation_timeout"`
		Heartbeat          Duration `mapstructure:"heartbeat" toml:"heartbeat"`
		MinPoolSize        uint64   `mapstructure:"min_pool_size" toml:"min_pool_size"`
		MaxPoolSize        uint64   `mapstructure:"max_pool_size" toml:"max_pool_size"`
	} `mapstructure:"database" toml:"database"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.App.Name = "afk-bridge"
	c.App.LogDir = "logs"

	c.Console.Enabled = true
	c.Console.Listen = ":7878"
	c.Console.MaxConnections = 256
	c.Console.HandshakeTimeout = "1m"
	c.Console.IdleTimeout = "30m"

	c.Dashboard.Enabled = true
	c.Dashboard.Listen = ":8080"
	c.Dashboard.AllowedOrigins = []string{"http://localhost:3000"}

	c.Peer.Driver = "bedrock"
	c.Peer.DialTimeout = "30s"
	c.Peer.SpawnTimeout = "1m"
	c.Peer.SimSpawnDelay = "500ms"

	c.Session.MultiSlot = true
	c.Session.ReconnectDelay = "5s"
	c.Session.SpawnBanner = "AFK bot online"
	c.Session.ChatRelayWindow = "10s"

	c.KeepAlive.Enabled = true
	c.KeepAlive.LookInterval = "5s"
	c.KeepAlive.JumpInterval = "3m"

	c.Manual.Enabled = true
	c.Manual.JumpInterval = "800ms"
	c.Manual.AutoStop = "5s"
	c.Manual.MoveDuration = "2s"

	c.Reconnect.Strategy = "fixed"
	c.Reconnect.MaxDelay = "5m"
	c.Reconnect.Jitter = 0.2
	c.Reconnect.IdentityPolicy = "keep"
	c.Reconnect.FaultPolicy = "retry"

	c.Database.Host = "localhost"
	c.Database.Port = 27017
	c.Database.Database = "afk_bridge"
	c.Database.ConnectTimeout = "10s"
	c.Database.SocketTimeout = "30s"
	c.Database.ConnectIdleTimeout = "5m"
	c.Database.OperationTimeout = "5s"
	c.Database.Heartbeat = "10s"
	c.Database.MinPoolSize = 1
	c.Database.MaxPoolSize = 10
	return c
}

// ReadConfig loads path on top of the defaults, then applies AFKB_* environment overrides.
// A missing file is created from the defaults and ErrConfigCreated is returned.
func ReadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}

	defaults, err := toml.Marshal(Default())
	if err != nil {
		return Config{}, fmt.Errorf("encode default config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("load default config: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config file: %w", err)
		}
		if err := WriteDefault(path); err != nil {
			return Config{}, err
		}
		return Default(), ErrConfigCreated
	}

	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, fmt.Errorf("the configuration file does not contain valid TOML: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks ranges, durations and policy names.
func (c Config) Validate() error {
	var errs []error

	durations := map[string]Duration{
		"console.handshake_timeout":     c.Console.HandshakeTimeout,
		"console.idle_timeout":          c.Console.IdleTimeout,
		"peer.dial_timeout":             c.Peer.DialTimeout,
		"peer.spawn_timeout":            c.Peer.SpawnTimeout,
		"session.reconnect_delay":       c.Session.ReconnectDelay,
		"session.chat_relay_window":     c.Session.ChatRelayWindow,
		"keepalive.look_interval":       c.KeepAlive.LookInterval,
		"keepalive.jump_interval":       c.KeepAlive.JumpInterval,
		"manual.jump_interval":          c.Manual.JumpInterval,
		"manual.auto_stop":              c.Manual.AutoStop,
		"manual.move_duration":          c.Manual.MoveDuration,
		"reconnect.max_delay":           c.Reconnect.MaxDelay,
		"database.operation_timeout":    c.Database.OperationTimeout,
		"database.connect_timeout":      c.Database.ConnectTimeout,
		"database.socket_timeout":       c.Database.SocketTimeout,
		"database.connect_idle_timeout": c.Database.ConnectIdleTimeout,
		"database.heartbeat":            c.Database.Heartbeat,
	}
	for key, d := range durations {
		v, err := utils.ParseStringTime(string(d))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Peer.Driver == "sim" {
		if _, err := utils.ParseStringTime(string(c.Peer.SimSpawnDelay)); err != nil {
			errs = append(errs, fmt.Errorf("peer.sim_spawn_delay: %w", err))
		}
	}

	switch c.Peer.Driver {
	case "bedrock", "sim":
	default:
		errs = append(errs, fmt.Errorf("peer.driver: unknown driver %q", c.Peer.Driver))
	}
	switch c.Reconnect.Strategy {
	case "fixed", "backoff":
	default:
		errs = append(errs, fmt.Errorf("reconnect.strategy: unknown strategy %q", c.Reconnect.Strategy))
	}
	switch c.Reconnect.IdentityPolicy {
	case "keep", "randomize":
	default:
		errs = append(errs, fmt.Errorf("reconnect.identity_policy: unknown policy %q", c.Reconnect.IdentityPolicy))
	}
	switch c.Reconnect.FaultPolicy {
	case "retry", "stop":
	default:
		errs = append(errs, fmt.Errorf("reconnect.fault_policy: unknown policy %q", c.Reconnect.FaultPolicy))
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect.max_attempts must not be negative"))
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, errors.New("reconnect.jitter must be within [0, 1]"))
	}
	if c.Console.Enabled && c.Console.MaxConnections <= 0 {
		errs = append(errs, errors.New("console.max_connections must be positive"))
	}
	if c.Dashboard.Enabled && c.Dashboard.Listen == "" {
		errs = append(errs, errors.New("dashboard.listen is required"))
	}
	if c.Database.Enabled && (c.Database.Port == 0 || c.Database.Port > 65535) {
		errs = append(errs, fmt.Errorf("database.port %d out of range", c.Database.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
