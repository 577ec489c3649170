package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/browserbridge/internal/queue"
	"github.com/mark3labs/mcp-go/mcp"
)

// NoMessagesText is returned when the queue is empty.
const NoMessagesText = "📭 No browser messages available"

// GetLatestTool handles the get-latest-browser-message MCP tool.
// It never mutates the queue.
type GetLatestTool struct {
	queue queue.Queue
}

// NewGetLatestTool creates a GetLatestTool reading from q.
func NewGetLatestTool(q queue.Queue) *GetLatestTool {
	return &GetLatestTool{queue: q}
}

// Definition returns the MCP tool definition for get-latest-browser-message.
func (t *GetLatestTool) Definition() mcp.Tool {
	return mcp.NewTool(GetLatestToolName,
		mcp.WithDescription("Get the latest browser message from the queue"),
		mcp.WithNumber("count",
			mcp.Description("Number of recent messages to retrieve (default: 1)"),
			mcp.DefaultNumber(1),
			mcp.Min(1),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// Handle processes the get-latest-browser-message tool call.
func (t *GetLatestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := intArg(req, "count", 1)
	if count < 1 {
		count = 1
	}

	msgs := t.queue.Recent(count)
	if len(msgs) == 0 {
		return mcp.NewToolResultText(NoMessagesText), nil
	}

	return mcp.NewToolResultText(FormatMessages(msgs)), nil
}

// FormatMessages renders msgs, oldest first, as markdown for the agent.
func FormatMessages(msgs []queue.Message) string {
	var b strings.Builder

	plural := len(msgs) > 1
	if plural {
		b.WriteString("🎯 **Latest Browser Messages**\n\n")
	} else {
		b.WriteString("🎯 **Latest Browser Message**\n\n")
	}

	for i, m := range msgs {
		if plural {
			fmt.Fprintf(&b, "**Message %d:**\n", i+1)
		}
		fmt.Fprintf(&b, "**Content**: %s\n", m.Message)
		fmt.Fprintf(&b, "**From**: %s\n", m.Source)
		fmt.Fprintf(&b, "**ID**: %s\n", m.ID)
		fmt.Fprintf(&b, "**Time**: %s\n", m.Timestamp)
		if u := m.URL(); u != "" {
			fmt.Fprintf(&b, "**URL**: %s\n", u)
		}
		fmt.Fprintf(&b, "\n---\n\nUser said: \"%s\"\n\n", m.Message)
	}

	return b.String()
}
