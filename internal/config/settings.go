// Package config loads ledctl's settings file and sets up logging.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/vitaminmoo/ledctl/internal/link"
	"github.com/vitaminmoo/ledctl/internal/store"
)

// Config is the settings file.
type Config struct {
	// User is the identity sent with claim/verify/unclaim when a command
	// does not name one.
	User            string          `toml:"user" yaml:"user" json:"user"`
	PrivilegedUsers []string        `toml:"privileged_users" yaml:"privileged_users" json:"privileged_users"`
	Device          DeviceConfig    `toml:"device" yaml:"device" json:"device"`
	Store           StoreConfig     `toml:"store" yaml:"store" json:"store"`
	Analytics       AnalyticsConfig `toml:"analytics" yaml:"analytics" json:"analytics"`
	Log             LogConfig       `toml:"log" yaml:"log" json:"log"`
}

type DeviceConfig struct {
	// NamePrefix selects peripherals by advertised name.
	NamePrefix     string        `toml:"name_prefix" yaml:"name_prefix" json:"name_prefix"`
	Address        string        `toml:"address" yaml:"address" json:"address"`
	CommandTimeout time.Duration `toml:"command_timeout" yaml:"command_timeout" json:"command_timeout"`
	ScanTimeout    time.Duration `toml:"scan_timeout" yaml:"scan_timeout" json:"scan_timeout"`
	LEDCount       int           `toml:"led_count" yaml:"led_count" json:"led_count"`
}

type StoreConfig struct {
	Backend string `toml:"backend" yaml:"backend" json:"backend"` // "file" or "sqlite"
	Path    string `toml:"path" yaml:"path" json:"path"`
}

type AnalyticsConfig struct {
	NATSURL       string `toml:"nats_url" yaml:"nats_url" json:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix" yaml:"subject_prefix" json:"subject_prefix"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"` // "console" or "json"
}

// Default returns the built-in settings.
func Default() *Config {
	storePath, err := store.DefaultPath()
	if err != nil {
		storePath = filepath.Join(".ledctl", "store")
	}
	return &Config{
		PrivilegedUsers: []string{"developer", "test"},
		Device: DeviceConfig{
			NamePrefix:     "LED_GUITAR",
			CommandTimeout: link.DefaultTimeout,
			ScanTimeout:    10 * time.Second,
			LEDCount:       10,
		},
		Store:     StoreConfig{Backend: "file", Path: storePath},
		Analytics: AnalyticsConfig{SubjectPrefix: "ledctl.analytics"},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// DefaultPath returns the default settings file (~/.ledctl/config.toml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ledctl", "config.toml"), nil
}

// Load reads path, applies LEDCTL_* environment overrides and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}
	return cfg, nil
}

// ApplyEnvOverrides overrides settings from LEDCTL_* variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LEDCTL_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("LEDCTL_PRIVILEGED_USERS"); v != "" {
		c.PrivilegedUsers = splitList(v)
	}
	if v := os.Getenv("LEDCTL_DEVICE_ADDRESS"); v != "" {
		c.Device.Address = v
	}
	if v := os.Getenv("LEDCTL_DEVICE_NAME_PREFIX"); v != "" {
		c.Device.NamePrefix = v
	}
	if v := os.Getenv("LEDCTL_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Device.CommandTimeout = d
		}
	}
	if v := os.Getenv("LEDCTL_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("LEDCTL_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("LEDCTL_NATS_URL"); v != "" {
		c.Analytics.NATSURL = v
	}
	if v := os.Getenv("LEDCTL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the settings for values the rest of the program cannot
// work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Device.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("device.command_timeout must be positive, got %s", c.Device.CommandTimeout))
	}
	if c.Device.LEDCount < 0 {
		errs = append(errs, fmt.Errorf("device.led_count must not be negative, got %d", c.Device.LEDCount))
	}
	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be file or sqlite, got %q", c.Store.Backend))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if len(c.User) > 64 {
		errs = append(errs, fmt.Errorf("user is %d bytes, maximum is 64", len(c.User)))
	}
	return errors.Join(errs...)
}

// OpenStore opens the configured key-value backend.
func (c StoreConfig) OpenStore() (store.KV, error) {
	if c.Backend == "sqlite" {
		db, err := store.OpenSQLite(filepath.Join(c.Path, "ledctl.db"))
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	fs, err := store.Open(c.Path)
	if err != nil {
		return nil, err
	}
	return fs, nil
}
