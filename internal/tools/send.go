package tools

import (
	"context"
	"fmt"

	"github.com/HendryAvila/browserbridge/internal/queue"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// SendTool handles the send-browser-message MCP tool.
type SendTool struct {
	queue  queue.Queue
	logger zerolog.Logger
}

// NewSendTool creates a SendTool appending to q.
func NewSendTool(q queue.Queue, logger zerolog.Logger) *SendTool {
	return &SendTool{queue: q, logger: logger}
}

// Definition returns the MCP tool definition for send-browser-message.
func (t *SendTool) Definition() mcp.Tool {
	return mcp.NewTool(SendToolName,
		mcp.WithDescription("Send a message from browser to message queue"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The message from browser"),
		),
		mcp.WithString("source",
			mcp.Description("Source of the message (default: mcp-tool)"),
		),
	)
}

// Handle processes the send-browser-message tool call.
func (t *SendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("message", "")
	source := req.GetString("source", "")
	if source == "" {
		source = defaultMCPSource
	}

	msg, err := queue.NewMessage(queue.PrefixMCP, text, source, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := t.queue.Append(msg); err != nil {
		t.logger.Error().Err(err).Str("id", msg.ID).Msg("storing mcp message")
		return mcp.NewToolResultError(fmt.Sprintf("❌ Error sending message: %v", err)), nil
	}

	t.logger.Info().Str("id", msg.ID).Str("source", msg.Source).Msg("mcp message stored")

	return mcp.NewToolResultText(fmt.Sprintf(
		"✅ Message added to queue\n\n**Message**: %s\n**Source**: %s\n**ID**: %s",
		msg.Message, msg.Source, msg.ID,
	)), nil
}
