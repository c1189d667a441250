// Package config loads irctunnel settings from TOML or YAML files with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aeolun/irctunnel/pkg/client"
	"gopkg.in/yaml.v3"
)

// Config represents the structure of the config file
type Config struct {
	Gateway   GatewaySection   `toml:"gateway" yaml:"gateway"`
	Session   SessionSection   `toml:"session" yaml:"session"`
	Reconnect ReconnectSection `toml:"reconnect" yaml:"reconnect"`
	Heartbeat HeartbeatSection `toml:"heartbeat" yaml:"heartbeat"`
	Send      SendSection      `toml:"send" yaml:"send"`
	Metrics   MetricsSection   `toml:"metrics" yaml:"metrics"`
	State     StateSection     `toml:"state" yaml:"state"`
}

type GatewaySection struct {
	URL    string `toml:"url" yaml:"url"`
	Origin string `toml:"origin" yaml:"origin"`
}

type SessionSection struct {
	Nickname string   `toml:"nickname" yaml:"nickname"`
	Username string   `toml:"username" yaml:"username"`
	Realname string   `toml:"realname" yaml:"realname"`
	Channels []string `toml:"channels" yaml:"channels"`
}

type ReconnectSection struct {
	Enabled               bool `toml:"enabled" yaml:"enabled"`
	FirstRetryHoldSeconds int  `toml:"first_retry_hold_seconds" yaml:"first_retry_hold_seconds"`
	RetryHoldSeconds      int  `toml:"retry_hold_seconds" yaml:"retry_hold_seconds"`
	MaxAttempts           int  `toml:"max_attempts" yaml:"max_attempts"`
	ConnectTimeoutSeconds int  `toml:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
}

type HeartbeatSection struct {
	IntervalSeconds int `toml:"interval_seconds" yaml:"interval_seconds"`
}

type SendSection struct {
	PacedDelayMillis int `toml:"paced_delay_ms" yaml:"paced_delay_ms"`
}

type MetricsSection struct {
	Address string `toml:"address" yaml:"address"` // empty disables the endpoint
}

type StateSection struct {
	Path string `toml:"path" yaml:"path"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Gateway: GatewaySection{
			URL: "ws://localhost:8080/irc",
		},
		Session: SessionSection{
			Nickname: "irctunnel",
			Username: "irctunnel",
			Realname: "irctunnel",
		},
		Reconnect: ReconnectSection{
			Enabled:               true,
			FirstRetryHoldSeconds: 5,
			RetryHoldSeconds:      15,
			MaxAttempts:           10,
			ConnectTimeoutSeconds: 10,
		},
		Heartbeat: HeartbeatSection{
			IntervalSeconds: 15,
		},
		Send: SendSection{
			PacedDelayMillis: 2000,
		},
		State: StateSection{
			Path: "~/.irctunnel/state.db",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// Files ending in .yaml or .yml are decoded as YAML, everything else as
// TOML. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return Config{}, err
		}

		data, err := os.ReadFile(expanded)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := decode(expanded, data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	return applyEnvOverrides(cfg), nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// applyEnvOverrides applies environment variable overrides to the config
// Environment variables follow the pattern: IRCTUNNEL_SECTION_KEY
// Example: IRCTUNNEL_HEARTBEAT_INTERVAL_SECONDS=30
func applyEnvOverrides(cfg Config) Config {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
			}
		}
	}

	setString("IRCTUNNEL_GATEWAY_URL", &cfg.Gateway.URL)
	setString("IRCTUNNEL_GATEWAY_ORIGIN", &cfg.Gateway.Origin)

	setString("IRCTUNNEL_SESSION_NICKNAME", &cfg.Session.Nickname)
	setString("IRCTUNNEL_SESSION_USERNAME", &cfg.Session.Username)
	setString("IRCTUNNEL_SESSION_REALNAME", &cfg.Session.Realname)
	if val := os.Getenv("IRCTUNNEL_SESSION_CHANNELS"); val != "" {
		// Comma-separated list of channels to join after registration
		var channels []string
		for _, ch := range strings.Split(val, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
		cfg.Session.Channels = channels
	}

	if val := os.Getenv("IRCTUNNEL_RECONNECT_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.Reconnect.Enabled = enabled
		}
	}
	setInt("IRCTUNNEL_RECONNECT_FIRST_RETRY_HOLD_SECONDS", &cfg.Reconnect.FirstRetryHoldSeconds)
	setInt("IRCTUNNEL_RECONNECT_RETRY_HOLD_SECONDS", &cfg.Reconnect.RetryHoldSeconds)
	setInt("IRCTUNNEL_RECONNECT_MAX_ATTEMPTS", &cfg.Reconnect.MaxAttempts)
	setInt("IRCTUNNEL_RECONNECT_CONNECT_TIMEOUT_SECONDS", &cfg.Reconnect.ConnectTimeoutSeconds)

	setInt("IRCTUNNEL_HEARTBEAT_INTERVAL_SECONDS", &cfg.Heartbeat.IntervalSeconds)
	setInt("IRCTUNNEL_SEND_PACED_DELAY_MS", &cfg.Send.PacedDelayMillis)

	setString("IRCTUNNEL_METRICS_ADDRESS", &cfg.Metrics.Address)
	setString("IRCTUNNEL_STATE_PATH", &cfg.State.Path)

	return cfg
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Gateway.URL) == "" {
		errs = append(errs, errors.New("gateway.url is required"))
	}
	if strings.TrimSpace(c.Session.Nickname) == "" || strings.ContainsAny(c.Session.Nickname, " \r\n") {
		errs = append(errs, fmt.Errorf("session.nickname %q is not a valid nickname", c.Session.Nickname))
	}
	if c.Reconnect.FirstRetryHoldSeconds < 1 {
		errs = append(errs, errors.New("reconnect.first_retry_hold_seconds must be at least 1"))
	}
	if c.Reconnect.RetryHoldSeconds < 1 {
		errs = append(errs, errors.New("reconnect.retry_hold_seconds must be at least 1"))
	}
	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, errors.New("reconnect.max_attempts must be at least 1"))
	}
	if c.Reconnect.ConnectTimeoutSeconds < 0 {
		errs = append(errs, errors.New("reconnect.connect_timeout_seconds must not be negative"))
	}
	if c.Heartbeat.IntervalSeconds < 1 {
		errs = append(errs, errors.New("heartbeat.interval_seconds must be at least 1"))
	}
	if c.Send.PacedDelayMillis < 0 {
		errs = append(errs, errors.New("send.paced_delay_ms must not be negative"))
	}
	return errors.Join(errs...)
}

// Policy converts the reconnect, heartbeat and send settings.
func (c Config) Policy() client.Policy {
	return client.Policy{
		AutoReconnect:     c.Reconnect.Enabled,
		FirstRetryHold:    c.Reconnect.FirstRetryHoldSeconds,
		RetryHold:         c.Reconnect.RetryHoldSeconds,
		MaxAttempts:       c.Reconnect.MaxAttempts,
		HeartbeatInterval: c.Heartbeat.IntervalSeconds,
		ConnectTimeout:    time.Duration(c.Reconnect.ConnectTimeoutSeconds) * time.Second,
		PacedSendDelay:    time.Duration(c.Send.PacedDelayMillis) * time.Millisecond,
	}
}
