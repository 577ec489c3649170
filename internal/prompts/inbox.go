// Package prompts implements MCP prompt handlers for the bridge.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

// InboxPrompt handles the browser-inbox MCP prompt.
// It asks the AI to fetch the latest browser messages and act on them.
type InboxPrompt struct {
	toolName string
}

// NewInboxPrompt creates an InboxPrompt that points the AI at toolName.
func NewInboxPrompt(toolName string) *InboxPrompt {
	return &InboxPrompt{toolName: toolName}
}

// Definition returns the MCP prompt definition for registration.
func (p *InboxPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("browser-inbox",
		mcp.WithPromptDescription(
			"Read the latest messages sent from the browser UI and carry out what they ask.",
		),
		mcp.WithArgument("count",
			mcp.ArgumentDescription("How many recent messages to read. Default: 1"),
		),
	)
}

// Handle processes the browser-inbox prompt request.
func (p *InboxPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	count := 1
	if args := req.Params.Arguments; args != nil {
		if v, ok := args["count"]; ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				count = n
			}
		}
	}

	noun := "message"
	if count > 1 {
		noun = fmt.Sprintf("%d messages", count)
	}

	return &mcp.GetPromptResult{
		Description: "Process browser messages",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please run `%s` with count=%d to read the latest browser %s.\n\n"+
						"Then:\n"+
						"1. Treat each \"User said\" line as a request from me\n"+
						"2. If a message includes a URL, use it to locate the page or component involved\n"+
						"3. Carry out the request, oldest message first\n"+
						"4. If the queue is empty, just tell me there is nothing to do",
					p.toolName, count, noun,
				)),
			},
		},
	}, nil
}
