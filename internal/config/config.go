// Package config loads compositor daemon settings from an embedded
// default, an optional config file, and RADMIX_-prefixed environment
// overrides, using viper the same way across the ambient stack.
package config

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the root configuration tree for the compositor daemon.
type Settings struct {
	Compositor CompositorConfig
	SegStore   SegStoreConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	MQTT       MQTTConfig
	Sentry     SentryConfig
}

// CompositorConfig controls producer thread pacing and reap behavior.
type CompositorConfig struct {
	BufSize         int     `mapstructure:"buf_size"`
	LookaheadSec    float64 `mapstructure:"lookahead_sec"`
	PollIntervalMs  int     `mapstructure:"poll_interval_ms"`
	ActiveThreshold int     `mapstructure:"active_threshold"`
}

// SegStoreConfig bounds the sample segment cache.
type SegStoreConfig struct {
	CacheLimitBytes int64 `mapstructure:"cache_limit_bytes"`
}

// LoggingConfig configures the dual structured/human-readable sinks.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// MQTTConfig controls the lifecycle/event notifier.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

// SentryConfig controls panic-class error telemetry reporting.
type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

var (
	instance   *Settings
	instanceMu sync.RWMutex
)

// Defaults returns the settings baked into the embedded config.yaml,
// with no file or environment overrides applied.
func Defaults() (*Settings, error) {
	v := viper.New()
	if err := loadEmbeddedDefaults(v); err != nil {
		return nil, err
	}
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling default settings: %w", err)
	}
	return settings, nil
}

// Load reads the embedded defaults, merges an optional config file found
// under path (or the current directory / /etc/radmix if path is empty),
// applies RADMIX_-prefixed environment overrides, and stores the result
// as the process-wide instance.
func Load(path string) (*Settings, error) {
	v := viper.New()
	if err := loadEmbeddedDefaults(v); err != nil {
		return nil, err
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/radmix")

	ApplyEnvOverrides(v)

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}

	instanceMu.Lock()
	instance = settings
	instanceMu.Unlock()

	return settings, nil
}

// ApplyEnvOverrides wires RADMIX_-prefixed environment variables into v,
// using underscores in place of the nested dot path (e.g.
// RADMIX_COMPOSITOR_BUF_SIZE overrides compositor.buf_size).
func ApplyEnvOverrides(v *viper.Viper) {
	v.SetEnvPrefix("RADMIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func loadEmbeddedDefaults(v *viper.Viper) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("reading embedded default config: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("parsing embedded default config: %w", err)
	}
	return nil
}

// Current returns the most recently Load-ed settings, or nil if Load has
// not yet run in this process.
func Current() *Settings {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	return instance
}
