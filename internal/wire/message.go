package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// Terminator ends every frame on the wire.
	Terminator = '\n'

	// ReplySuffix is appended to a request's event name to form its reply channel.
	ReplySuffix = "___RC___"

	// EventPing is sent periodically by a child to check that the parent is alive.
	EventPing = "ping"

	// EventPong answers EventPing.
	EventPong = "pong"

	// EventExit asks the child to shut down.
	EventExit = "___EXIT___"
)

// Message is one decoded protocol frame.
type Message struct {
	// Event identifies the logical channel. Messages without one are only
	// delivered to catch-all subscribers.
	Event string `json:"event"`

	// Data is the payload text, or nil for JSON null. A frame whose data is
	// any other JSON type (a bare number, object or array) is not a message;
	// the assembler drops it and counts it in Dropped.
	Data *string `json:"data"`

	// SR marks a request that expects a reply on ReplyChannel(Event).
	SR bool `json:"SR"` //nolint:tagliatelle // wire name is fixed

	// Error is set by the peer when it answers a request with a failure.
	Error *string `json:"error,omitempty"`
}

// ReplyChannel returns the synthetic event name a reply to event is sent on.
func ReplyChannel(event string) string {
	return event + ReplySuffix
}

// IsReply reports whether the message was sent on a reply channel.
func (m Message) IsReply() bool {
	return strings.HasSuffix(m.Event, ReplySuffix)
}

// Text returns the payload text, or "" when data is null.
func (m Message) Text() string {
	if m.Data == nil {
		return ""
	}

	return *m.Data
}

// Decode parses the payload text as JSON into v.
func (m Message) Decode(v any) error {
	return DecodeData(m.Data, v)
}

// DecodeData parses payload text produced by a Structured payload into v.
func DecodeData(data *string, v any) error {
	if data == nil {
		return fmt.Errorf("decode data: payload is null")
	}

	if err := json.Unmarshal([]byte(*data), v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}

	return nil
}
