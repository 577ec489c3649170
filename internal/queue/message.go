// Package queue holds the browser message queue: the Message envelope,
// the Store backends that persist it, and the Writer that serializes
// every in-process mutation.
//
// Data flows one way: inbound adapters build a Message with NewMessage
// and Append it; outbound adapters read it back with Recent. Nothing in
// this package removes or rewrites a message once stored.
package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Adapter id prefixes. They tell a reader which entry point stored a message.
const (
	PrefixMCP  = "mcp"
	PrefixHTTP = "http"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrEmptyMessage is returned when a message has no text.
// Both adapters reject it the same way.
var ErrEmptyMessage = errors.New("'message' is required")

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Message is a single queued browser message.
type Message struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"`

	// Processed is always false. No reader consults it and nothing sets it;
	// it is kept so the on-disk shape stays compatible with existing queues.
	Processed bool `json:"processed"`
}

// URL returns the metadata "url" entry, or "" when absent or not a string.
func (m Message) URL() string {
	if m.Metadata == nil {
		return ""
	}
	u, _ := m.Metadata["url"].(string)
	return u
}

// NewMessage builds a Message with a fresh id and the current timestamp.
// text must contain something other than whitespace.
func NewMessage(prefix, text, source string, metadata map[string]any) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}
	now := timeNow().UTC()
	return Message{
		ID:        NewID(prefix, now),
		Message:   text,
		Source:    source,
		Metadata:  metadata,
		Timestamp: now.Format(TimestampLayout),
		Processed: false,
	}, nil
}

// NewID returns "<prefix>_<unix-millis>_<9 hex chars>".
func NewID(prefix string, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", prefix, at.UnixMilli(), suffix)
}

// tail returns the last n messages of msgs, oldest first.
// n <= 0 is treated as 1.
func tail(msgs []Message, n int) []Message {
	if n <= 0 {
		n = 1
	}
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
