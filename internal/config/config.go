package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML values can be written as "2s", "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the per-profile config.toml.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Cache    CacheConfig    `toml:"cache"`
	Realtime RealtimeConfig `toml:"realtime"`
	Request  RequestConfig  `toml:"request"`
}

// LogConfig controls log verbosity. Level accepts zap level names
// ("debug", "info", "warn", "error").
type LogConfig struct {
	Level string `toml:"level"`
}

// CacheConfig carries default freshness policy for cache entries.
type CacheConfig struct {
	MaxAge               Duration `toml:"max_age"`
	StaleWhileRevalidate Duration `toml:"stale_while_revalidate"`
}

// RealtimeConfig tunes the push session manager.
type RealtimeConfig struct {
	URL               string   `toml:"url"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	ReconnectDelay    Duration `toml:"reconnect_delay"`
}

// RequestConfig tunes the low-level HTTP request layer.
type RequestConfig struct {
	BaseURL            string   `toml:"base_url"`
	Timeout            Duration `toml:"timeout"`
	MaxAttempts        int      `toml:"max_attempts"`
	RetryBaseDelay     Duration `toml:"retry_base_delay"`
	TokenRefreshLeeway Duration `toml:"token_refresh_leeway"`
	// Substrings of error messages classified as offline rather than
	// server-rejected. Checked only after the structured checks miss.
	OfflineMarkers []string `toml:"offline_markers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Cache: CacheConfig{
			MaxAge:               Duration{5 * time.Minute},
			StaleWhileRevalidate: Duration{30 * time.Minute},
		},
		Realtime: RealtimeConfig{
			HeartbeatInterval: Duration{30 * time.Second},
			ReconnectDelay:    Duration{2 * time.Second},
		},
		Request: RequestConfig{
			Timeout:            Duration{15 * time.Second},
			MaxAttempts:        3,
			RetryBaseDelay:     Duration{500 * time.Millisecond},
			TokenRefreshLeeway: Duration{1 * time.Minute},
			OfflineMarkers:     []string{"network", "connection refused", "connection reset"},
		},
	}
}

// Load reads config from the given path, filling unset fields with defaults.
// A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
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

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Cache.MaxAge.Duration == 0 {
		c.Cache.MaxAge = def.Cache.MaxAge
	}
	if c.Cache.StaleWhileRevalidate.Duration == 0 {
		c.Cache.StaleWhileRevalidate = def.Cache.StaleWhileRevalidate
	}
	if c.Realtime.HeartbeatInterval.Duration == 0 {
		c.Realtime.HeartbeatInterval = def.Realtime.HeartbeatInterval
	}
	if c.Realtime.ReconnectDelay.Duration == 0 {
		c.Realtime.ReconnectDelay = def.Realtime.ReconnectDelay
	}
	if c.Request.Timeout.Duration == 0 {
		c.Request.Timeout = def.Request.Timeout
	}
	if c.Request.MaxAttempts == 0 {
		c.Request.MaxAttempts = def.Request.MaxAttempts
	}
	if c.Request.RetryBaseDelay.Duration == 0 {
		c.Request.RetryBaseDelay = def.Request.RetryBaseDelay
	}
	if c.Request.TokenRefreshLeeway.Duration == 0 {
		c.Request.TokenRefreshLeeway = def.Request.TokenRefreshLeeway
	}
	if len(c.Request.OfflineMarkers) == 0 {
		c.Request.OfflineMarkers = def.Request.OfflineMarkers
	}
}
