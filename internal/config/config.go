package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.autochat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	// Server endpoints.
	BaseURL   string `toml:"base_url"`
	SocketURL string `toml:"socket_url"`
	Token     string `toml:"token"`

	// Tunables. Zero values select the defaults below.
	PageSize       int `toml:"page_size"`
	ReadDebounceMs int `toml:"read_debounce_ms"`
	ReadCooldownMs int `toml:"read_cooldown_ms"`
	NearBottomRows int `toml:"near_bottom_rows"`
}

// Defaults used when the corresponding config field is zero.
const (
	DefaultPageSize       = 50
	DefaultReadDebounceMs = 1500
	DefaultReadCooldownMs = 5000
	DefaultNearBottomRows = 6
)

// Load reads config from the given path. Returns zero config and error if file missing.
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

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.ReadDebounceMs <= 0 {
		c.ReadDebounceMs = DefaultReadDebounceMs
	}
	if c.ReadCooldownMs <= 0 {
		c.ReadCooldownMs = DefaultReadCooldownMs
	}
	if c.NearBottomRows <= 0 {
		c.NearBottomRows = DefaultNearBottomRows
	}
}
