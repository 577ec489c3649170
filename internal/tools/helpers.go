// Package tools implements the MCP tool handlers for the browser bridge.
//
// Each tool is a struct holding its dependencies, a Definition() returning
// the mcp.Tool schema, and a Handle() compatible with mcp-go's
// CallToolRequest signature. Domain failures are reported as tool-error
// results; Handle never returns a Go error.
package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names exposed to the agent host.
const (
	GetLatestToolName = "get-latest-browser-message"
	SendToolName      = "send-browser-message"
)

// defaultMCPSource tags messages submitted through send-browser-message.
const defaultMCPSource = "mcp-tool"

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
