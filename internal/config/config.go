// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Downloads   DownloadsConfig   `mapstructure:"downloads"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Retention   RetentionConfig   `mapstructure:"retention"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DownloadsConfig sets the artifact directory and request defaults.
type DownloadsConfig struct {
	Dir                 string `mapstructure:"dir"`
	DefaultAudioQuality string `mapstructure:"default_audio_quality"`
	DefaultVideoQuality string `mapstructure:"default_video_quality"`
	IDPattern           string `mapstructure:"id_pattern"`
}

// LimitsConfig governs admission control.
type LimitsConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	QueueDepth        int `mapstructure:"queue_depth"`
	RateLimit         int `mapstructure:"rate_limit"`
	RateWindowSeconds int `mapstructure:"rate_window_seconds"`
}

// CredentialsConfig locates the rotating credential pool.
type CredentialsConfig struct {
	Dir            string `mapstructure:"dir"`
	RefreshSeconds int    `mapstructure:"refresh_seconds"`
}

// RetentionConfig controls the background sweeper.
type RetentionConfig struct {
	MaxAgeSeconds        int `mapstructure:"max_age_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// FetchConfig bounds a single media fetch.
type FetchConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
}

// ArchiveConfig locates the terminal-job history database. An empty path
// disables archiving.
type ArchiveConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDIADOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("downloads.dir", "downloads")
	v.SetDefault("downloads.default_audio_quality", "audio_high")
	v.SetDefault("downloads.default_video_quality", "video_720p")
	v.SetDefault("downloads.id_pattern", "^[A-Za-z0-9_-]{8,16}$")
	v.SetDefault("limits.concurrency", 3)
	v.SetDefault("limits.queue_depth", 64)
	v.SetDefault("limits.rate_limit", 20)
	v.SetDefault("limits.rate_window_seconds", 60)
	v.SetDefault("credentials.dir", "cookies")
	v.SetDefault("credentials.refresh_seconds", 300)
	v.SetDefault("retention.max_age_seconds", 21600)
	v.SetDefault("retention.sweep_interval_seconds", 1800)
	v.SetDefault("fetch.timeout_seconds", 600)
	v.SetDefault("fetch.requests_per_sec", 1)
	v.SetDefault("archive.path", "mediadock.db")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Downloads.Dir) == "" {
		return fmt.Errorf("downloads.dir must be set")
	}
	if _, err := regexp.Compile(c.Downloads.IDPattern); err != nil {
		return fmt.Errorf("downloads.id_pattern is not a valid pattern: %w", err)
	}
	if c.Limits.Concurrency <= 0 {
		return fmt.Errorf("limits.concurrency must be > 0")
	}
	if c.Limits.QueueDepth <= 0 {
		return fmt.Errorf("limits.queue_depth must be > 0")
	}
	if c.Limits.RateLimit <= 0 || c.Limits.RateWindowSeconds <= 0 {
		return fmt.Errorf("limits.rate_limit and limits.rate_window_seconds must be > 0")
	}
	if c.Credentials.RefreshSeconds <= 0 {
		return fmt.Errorf("credentials.refresh_seconds must be > 0")
	}
	if c.Retention.MaxAgeSeconds <= 0 || c.Retention.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("retention.max_age_seconds and retention.sweep_interval_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RateWindow returns the admission window as a duration.
func (c Config) RateWindow() time.Duration {
	return time.Duration(c.Limits.RateWindowSeconds) * time.Second
}

// CredentialTTL returns the rotator pool refresh interval.
func (c Config) CredentialTTL() time.Duration {
	return time.Duration(c.Credentials.RefreshSeconds) * time.Second
}

// RetentionAge returns the maximum artifact age before sweeping.
func (c Config) RetentionAge() time.Duration {
	return time.Duration(c.Retention.MaxAgeSeconds) * time.Second
}

// SweepInterval returns the sweeper cycle period.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepIntervalSeconds) * time.Second
}

// FetchTimeout returns the per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
