package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.deskd/config.toml.
type Config struct {
	DefaultSession string   `toml:"default_session"`
	Server         Server   `toml:"server"`
	Sync           Sync     `toml:"sync"`
	Presence       Presence `toml:"presence"`
}

// Server holds the remote desk server endpoints and credentials.
type Server struct {
	WebsocketURL string `toml:"websocket_url"`
	APIURL       string `toml:"api_url"`
	AccountID    string `toml:"account_id"`
	Token        string `toml:"token"`
}

// Sync holds reconnection and send-reconciliation tuning.
type Sync struct {
	BackoffBaseMs        int `toml:"backoff_base_ms"`
	BackoffCapMs         int `toml:"backoff_cap_ms"`
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
	SendTimeoutMs        int `toml:"send_timeout_ms"`
}

// Presence holds the elapsed-time thresholds for presence classification.
type Presence struct {
	TypingTTLMs       int `toml:"typing_ttl_ms"`
	OnlineThresholdMs int `toml:"online_threshold_ms"`
	RecentThresholdMs int `toml:"recent_threshold_ms"`
}

// Load reads config from the given path, applying defaults for any field
// the file leaves unset. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Default returns a config with every tunable at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Sync.BackoffBaseMs <= 0 {
		c.Sync.BackoffBaseMs = 1000
	}
	if c.Sync.BackoffCapMs <= 0 {
		c.Sync.BackoffCapMs = 30000
	}
	if c.Sync.MaxReconnectAttempts <= 0 {
		c.Sync.MaxReconnectAttempts = 10
	}
	if c.Sync.SendTimeoutMs <= 0 {
		c.Sync.SendTimeoutMs = 10000
	}
	if c.Presence.TypingTTLMs <= 0 {
		c.Presence.TypingTTLMs = 10000
	}
	if c.Presence.OnlineThresholdMs <= 0 {
		c.Presence.OnlineThresholdMs = int((2 * time.Minute).Milliseconds())
	}
	if c.Presence.RecentThresholdMs <= 0 {
		c.Presence.RecentThresholdMs = int((10 * time.Minute).Milliseconds())
	}
}

// BackoffBase returns the reconnect backoff base as a duration.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Sync.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the reconnect backoff cap as a duration.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Sync.BackoffCapMs) * time.Millisecond
}

// SendTimeout returns the optimistic-send confirmation deadline.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Sync.SendTimeoutMs) * time.Millisecond
}

// TypingTTL returns the client-enforced typing indicator expiry.
func (c *Config) TypingTTL() time.Duration {
	return time.Duration(c.Presence.TypingTTLMs) * time.Millisecond
}

// OnlineThreshold returns the last-seen age below which a contact is online.
func (c *Config) OnlineThreshold() time.Duration {
	return time.Duration(c.Presence.OnlineThresholdMs) * time.Millisecond
}

// RecentThreshold returns the last-seen age below which a contact is recent.
func (c *Config) RecentThreshold() time.Duration {
	return time.Duration(c.Presence.RecentThresholdMs) * time.Millisecond
}
