// Browser Bridge: a browser-to-agent message queue served over MCP.
//
// A browser UI posts short messages to a loopback HTTP endpoint; an AI
// coding assistant reads them through MCP tools on stdio.
//
// Usage:
//
//	browserbridge serve    # MCP server (stdio) + HTTP listener
//	browserbridge http     # HTTP listener only
//	browserbridge version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HendryAvila/browserbridge/internal/config"
	"github.com/HendryAvila/browserbridge/internal/logging"
	bridgeserver "github.com/HendryAvila/browserbridge/internal/server"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(os.Args[2:], true); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "http":
		if err := run(os.Args[2:], false); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("browserbridge v%s\n", bridgeserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// run starts the bridge. withMCP selects whether the stdio transport is
// served; without it the process only runs the HTTP listener.
func run(args []string, withMCP bool) error {
	fs := flag.NewFlagSet("browserbridge", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "path to the TOML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging(), os.Stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	if !withMCP && !cfg.HTTPEnabledOrDefault() {
		return errors.New("http is disabled in config; nothing to serve")
	}

	b, cleanup, err := bridgeserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if b.HTTP != nil {
		if err := b.HTTP.Start(); err != nil {
			return err
		}
		defer shutdownHTTP(b, logger)
	}

	logger.Info().
		Str("version", bridgeserver.Version).
		Str("backend", cfg.Backend).
		Str("queue", b.QueuePath()).
		Bool("mcp_stdio", withMCP).
		Msg("browser bridge ready")

	if !withMCP {
		<-ctx.Done()
		return nil
	}

	stdio := server.NewStdioServer(b.MCP)
	stdio.SetErrorLogger(log.New(logger, "", 0))

	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func shutdownHTTP(b *bridgeserver.Bridge, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.HTTP.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown")
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Browser Bridge v%s: browser-to-agent message queue over MCP

Usage:
  browserbridge serve [-config path]   Start the MCP server (stdio) and HTTP listener
  browserbridge http  [-config path]   Start only the HTTP listener
  browserbridge version                Print the version

Configuration:
  %s (optional, TOML) and BROWSERBRIDGE_* environment variables.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "browserbridge": {
        "command": "browserbridge",
        "args": ["serve"]
      }
    }
  }
`, bridgeserver.Version, config.DefaultConfigPath)
}
