// Package logging builds the process-wide zerolog logger.
//
// The logger always writes to stderr in production: stdout belongs to the
// MCP stdio transport and any stray byte there corrupts the protocol stream.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds logger settings.
type Config struct {
	Level  string
	Format string
}

// New creates a logger writing to w.
func New(cfg Config, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var out io.Writer
	switch cfg.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	case FormatJSON:
		out = w
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (want %s or %s)", cfg.Format, FormatConsole, FormatJSON)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
