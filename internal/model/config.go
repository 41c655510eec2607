package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// APIConfig holds the remote dashboard API settings. The bearer token is
// never stored here; it lives in the system keyring.
type APIConfig struct {
	// BaseURL is the root URL of the dashboard API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Username is the account the keyring token belongs to.
	Username string `mapstructure:"username" yaml:"username"`
}

// PollConfig controls feed polling.
type PollConfig struct {
	// IntervalSec is how often (in seconds) both feeds are refreshed.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// Interval returns the poll interval as a duration.
func (c PollConfig) Interval() time.Duration {
	if c.IntervalSec <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.IntervalSec) * time.Second
}

// MessagesConfig controls message history paging.
type MessagesConfig struct {
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File receives log output while the TUI owns the terminal.
	File string `mapstructure:"file" yaml:"file"`
}

// StoreConfig locates the local SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	// AlertTTLSec is how long a transient alert stays on screen.
	AlertTTLSec int `mapstructure:"alert_ttl_sec" yaml:"alert_ttl_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Poll     PollConfig     `mapstructure:"poll" yaml:"poll"`
	Messages MessagesConfig `mapstructure:"messages" yaml:"messages"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`

	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

const (
	// DefaultPollInterval is the refresh interval used when none is set.
	DefaultPollInterval = 60 * time.Second

	// DefaultPageSize is the number of messages requested per history page.
	DefaultPageSize = 20

	defaultBaseURL     = "http://127.0.0.1:8080"
	defaultAlertTTLSec = 5
)

// ConfigDir returns ~/.config/memberdesk, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "memberdesk")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API:      APIConfig{BaseURL: defaultBaseURL},
		Poll:     PollConfig{IntervalSec: int(DefaultPollInterval / time.Second)},
		Messages: MessagesConfig{PageSize: DefaultPageSize},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(ConfigDir(), "memberdesk.log"),
		},
		Store:   StoreConfig{Path: filepath.Join(ConfigDir(), "memberdesk.db")},
		Display: DisplayConfig{AlertTTLSec: defaultAlertTTLSec},
	}
}

// newViper builds a viper instance bound to path with all defaults set.
func newViper(path string) *viper.Viper {
	def := defaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MEMBERDESK")
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("poll.interval_sec", def.Poll.IntervalSec)
	v.SetDefault("messages.page_size", def.Messages.PageSize)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("display.alert_ttl_sec", def.Display.AlertTTLSec)
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	return decode(v, path)
}

func decode(v *viper.Viper, path string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Poll.IntervalSec <= 0 {
		cfg.Poll.IntervalSec = int(DefaultPollInterval / time.Second)
	}
	if cfg.Messages.PageSize <= 0 {
		cfg.Messages.PageSize = DefaultPageSize
	}
	if cfg.Display.AlertTTLSec <= 0 {
		cfg.Display.AlertTTLSec = defaultAlertTTLSec
	}
	return cfg, nil
}

// WatchConfig re-reads the file at path whenever it changes on disk and
// passes the decoded configuration to onChange. Decode failures are
// reported through onError and the previous configuration stays in use.
func WatchConfig(path string, onChange func(*AppConfig), onError func(error)) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v, path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("poll", cfg.Poll)
	v.Set("messages", cfg.Messages)
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)
	v.Set("display", cfg.Display)
	if cfg.MetricsAddr != "" {
		v.Set("metrics_addr", cfg.MetricsAddr)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
