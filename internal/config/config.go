// Package config resolves runtime settings for the bridge.
//
// Settings come from three layers, later ones winning: built-in defaults,
// an optional TOML file, and BROWSERBRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/HendryAvila/browserbridge/internal/logging"
)

// Backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

const (
	// DefaultConfigPath is where the CLI looks for the TOML file.
	DefaultConfigPath = ".kiro/browserbridge.toml"

	defaultDataDir      = ".kiro/browser-messages"
	defaultIncomingFile = "incoming.json"
	defaultHistoryFile  = "browser-messages.json"
	defaultDBFile       = "messages.db"
	defaultHTTPAddr     = "127.0.0.1:3001"
)

// Config is the resolved runtime configuration.
type Config struct {
	DataDir      string `toml:"data_dir"`
	IncomingFile string `toml:"incoming_file"`
	HistoryFile  string `toml:"history_file"`
	DBFile       string `toml:"db_file"`
	Backend      string `toml:"backend"`

	HTTPAddr    string `toml:"http_addr"`
	HTTPEnabled *bool  `toml:"http_enabled"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	enabled := true
	return Config{
		DataDir:      defaultDataDir,
		IncomingFile: defaultIncomingFile,
		HistoryFile:  defaultHistoryFile,
		DBFile:       defaultDBFile,
		Backend:      BackendJSON,
		HTTPAddr:     defaultHTTPAddr,
		HTTPEnabled:  &enabled,
		LogLevel:     "info",
		LogFormat:    logging.FormatConsole,
	}
}

// Load builds a Config from defaults, the TOML file at path and the
// environment. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BROWSERBRIDGE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BROWSERBRIDGE_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("BROWSERBRIDGE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("BROWSERBRIDGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendJSON, BackendSQLite)
	}
	switch c.LogFormat {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if c.IncomingFile == "" {
		return errors.New("incoming_file must not be empty")
	}
	if c.HTTPEnabledOrDefault() && c.HTTPAddr == "" {
		return errors.New("http_addr must not be empty when http is enabled")
	}
	return nil
}

// HTTPEnabledOrDefault returns HTTPEnabled, true if unset.
func (c Config) HTTPEnabledOrDefault() bool {
	if c.HTTPEnabled == nil {
		return true
	}
	return *c.HTTPEnabled
}

// IncomingPath returns the queue file path.
func (c Config) IncomingPath() string {
	return filepath.Join(c.DataDir, c.IncomingFile)
}

// HistoryPath returns the history file path, or "" when disabled.
func (c Config) HistoryPath() string {
	if c.HistoryFile == "" {
		return ""
	}
	return filepath.Join(c.DataDir, c.HistoryFile)
}

// DBPath returns the SQLite database path.
func (c Config) DBPath() string {
	name := c.DBFile
	if name == "" {
		name = defaultDBFile
	}
	return filepath.Join(c.DataDir, name)
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}
