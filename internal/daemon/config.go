// Package daemon holds process-level setup: configuration, the home
// directory layout and the logger.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/tronledger/tronledger/internal/infra/tron"
)

// ConfigFileName is the TOML file read from the home directory.
const ConfigFileName = "config.toml"

// Config is the full configuration, mirrored by config.toml.
type Config struct {
	API  APIConfig  `toml:"api"`
	Tron TronConfig `toml:"tron"`
	Sync SyncConfig `toml:"sync"`
	Log  LogConfig  `toml:"log"`

	// Home is resolved at load time and never read from the file.
	Home string `toml:"-"`
}

// APIConfig controls the HTTP server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// TronConfig controls access to the TronGrid and TronScan APIs.
type TronConfig struct {
	GridURL           string  `toml:"grid_url"`
	ScanURL           string  `toml:"scan_url"`
	Contract          string  `toml:"contract"`
	APIKey            string  `toml:"api_key"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	RequestTimeout    string  `toml:"request_timeout"`
	TransferLimit     int     `toml:"transfer_limit"`
}

// SyncConfig controls background reconciliation.
type SyncConfig struct {
	AutoSync    bool   `toml:"auto_sync"`
	Interval    string `toml:"interval"`
	Concurrency int    `toml:"concurrency"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `toml:"level"`  // trace, debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8787,
			Metrics: true,
		},
		Tron: TronConfig{
			GridURL:           "https://api.trongrid.io",
			ScanURL:           "https://apilist.tronscanapi.com/api",
			Contract:          tron.USDTContract,
			RequestsPerSecond: 5,
			RequestTimeout:    "10s",
			TransferLimit:     50,
		},
		Sync: SyncConfig{
			AutoSync:    true,
			Interval:    "30s",
			Concurrency: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ─── Loading ────────────────────────────────────────────────────────────────

// Load builds the configuration: defaults, then the TOML file, then
// environment overrides. path may be empty, in which case
// <home>/config.toml is used. A missing file is not an error.
func Load(home, path string) (Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	if home == "" {
		home = os.Getenv("TRONLEDGER_HOME")
	}
	if home == "" {
		home = DefaultHome()
	}
	if path == "" {
		path = filepath.Join(home, ConfigFileName)
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	cfg.Home = home
	applyEnv(&cfg)
	return cfg, nil
}

// DefaultHome returns ~/.tronledger, or ./.tronledger when the user home
// directory cannot be determined.
func DefaultHome() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".tronledger")
	}
	return ".tronledger"
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRONLEDGER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TRONLEDGER_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.API.Port = p
		}
	}
	if v := os.Getenv("TRONLEDGER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TRONGRID_URL"); v != "" {
		cfg.Tron.GridURL = v
	}
	if v := os.Getenv("TRONSCAN_URL"); v != "" {
		cfg.Tron.ScanURL = v
	}
	if v := os.Getenv("TRONGRID_API_KEY"); v != "" {
		cfg.Tron.APIKey = v
	}
	if v := os.Getenv("TRONLEDGER_SYNC_INTERVAL"); v != "" {
		cfg.Sync.Interval = v
	}
}

// ─── Derived Values ─────────────────────────────────────────────────────────

// Addr returns the API listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port) }

// DataDir is where the database lives.
func (c Config) DataDir() string { return filepath.Join(c.Home, "data") }

// SyncInterval returns the parsed auto-sync interval.
func (c Config) SyncInterval() time.Duration {
	return parseDuration(c.Sync.Interval, 30*time.Second)
}

// TronClientConfig converts the [tron] section for the HTTP client.
func (c Config) TronClientConfig() tron.Config {
	return tron.Config{
		GridURL:           c.Tron.GridURL,
		ScanURL:           c.Tron.ScanURL,
		Contract:          c.Tron.Contract,
		APIKey:            c.Tron.APIKey,
		RequestsPerSecond: c.Tron.RequestsPerSecond,
		Timeout:           parseDuration(c.Tron.RequestTimeout, 10*time.Second),
	}
}

// parseDuration parses s, falling back to def on empty, invalid or
// non-positive values.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
