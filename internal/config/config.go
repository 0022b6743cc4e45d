package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.zapdesk/config.toml.
type Config struct {
	DefaultProfile string         `toml:"default_profile"`
	Listen         string         `toml:"listen"`
	Identity       IdentityConfig `toml:"identity"`
	API            APIConfig      `toml:"api"`
	Push           PushConfig     `toml:"push"`
	Cache          CacheConfig    `toml:"cache"`
}

// IdentityConfig holds the authenticated user identity supplied by the
// back-office session layer. UserID namespaces the durable cache so switching
// accounts never exposes another user's conversations.
type IdentityConfig struct {
	UserID string `toml:"user_id"`
}

// APIConfig configures the paginated HTTP source of truth.
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PageSize       int    `toml:"page_size"`
}

// PushConfig configures the push-event websocket.
type PushConfig struct {
	URL             string `toml:"url"`
	BaseDelayMS     int    `toml:"base_delay_ms"`
	MaxDelaySeconds int    `toml:"max_delay_seconds"`
	MaxAttempts     int    `toml:"max_attempts"`
}

// CacheConfig configures the durable cache adapter.
type CacheConfig struct {
	TTLMinutes     int `toml:"ttl_minutes"`
	SaveDebounceMS int `toml:"save_debounce_ms"`
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8470"
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 12
	}
	if c.API.PageSize <= 0 {
		c.API.PageSize = 50
	}
	if c.Push.BaseDelayMS <= 0 {
		c.Push.BaseDelayMS = 1000
	}
	if c.Push.MaxDelaySeconds <= 0 {
		c.Push.MaxDelaySeconds = 30
	}
	if c.Push.MaxAttempts <= 0 {
		c.Push.MaxAttempts = 10
	}
	if c.Cache.TTLMinutes <= 0 {
		c.Cache.TTLMinutes = 30
	}
	if c.Cache.SaveDebounceMS <= 0 {
		c.Cache.SaveDebounceMS = 500
	}
}

// FetchTimeout returns the HTTP fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// TTL returns the durable cache time-to-live as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// SaveDebounce returns the durable save coalescing window.
func (c *Config) SaveDebounce() time.Duration {
	return time.Duration(c.Cache.SaveDebounceMS) * time.Millisecond
}

// BaseDelay returns the reconnect backoff base delay.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Push.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the reconnect backoff delay cap.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Push.MaxDelaySeconds) * time.Second
}

// Load reads config from the given path and applies defaults.
// Returns nil and an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
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
