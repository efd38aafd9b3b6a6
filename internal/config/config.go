// Package config loads the cadence configuration file.
//
// The file is YAML. Missing keys take the values from Default; string values
// may reference environment variables as $VAR or ${VAR}.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cadence/internal/connectivity"
	"github.com/roach88/cadence/internal/remote"
	"github.com/roach88/cadence/internal/store"
)

// Config is the full configuration.
type Config struct {
	// Database is the path of the SQLite file.
	Database string        `yaml:"database"`
	API      APIConfig     `yaml:"api"`
	Sync     SyncConfig    `yaml:"sync"`
	Log      LogConfig     `yaml:"log"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// APIConfig locates the remote service.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`

	// Token is a static bearer token. TokenFile, when set, takes precedence
	// and is reloaded whenever the file changes.
	Token     string        `yaml:"token"`
	TokenFile string        `yaml:"token_file"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SyncConfig tunes the engine and the connectivity prober.
type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"` // 0 disables periodic runs
	ProbeInterval time.Duration `yaml:"probe_interval"`
	RecentRituals int           `yaml:"recent_rituals"`
}

// LogConfig selects level and destination.
type LogConfig struct {
	Level string `yaml:"level"` // debug|info|warn|error
	File  string `yaml:"file"`  // empty logs to stderr
}

// MetricsConfig exposes Prometheus metrics from the daemon.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// DefaultInterval is the periodic sync interval.
const DefaultInterval = 5 * time.Minute

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: "cadence.db",
		API: APIConfig{
			Timeout: remote.DefaultTimeout,
		},
		Sync: SyncConfig{
			Interval:      DefaultInterval,
			ProbeInterval: connectivity.DefaultProbeInterval,
			RecentRituals: store.DefaultRecentRituals,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse: %w", err)
	}
	c.expandEnv()
	return c.Validate()
}

func (c *Config) expandEnv() {
	for _, s := range []*string{&c.Database, &c.API.BaseURL, &c.API.Token, &c.API.TokenFile, &c.Log.File} {
		*s = os.ExpandEnv(*s)
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database: must not be empty"))
	}
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("api.base_url: %q is not an http(s) URL", c.API.BaseURL))
		}
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout: must be positive"))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, errors.New("sync.interval: must not be negative"))
	}
	if c.Sync.ProbeInterval <= 0 {
		errs = append(errs, errors.New("sync.probe_interval: must be positive"))
	}
	if c.Sync.RecentRituals <= 0 {
		errs = append(errs, errors.New("sync.recent_rituals: must be positive"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// RemoteConfigured reports whether a service URL is set.
func (c Config) RemoteConfigured() bool {
	return c.API.BaseURL != ""
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown level %q", s)
	}
	return level, nil
}
