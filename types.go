package ipc

import (
	"github.com/wagiedev/stdio-ipc-go/internal/config"
	"github.com/wagiedev/stdio-ipc-go/internal/protocol"
	"github.com/wagiedev/stdio-ipc-go/internal/router"
	"github.com/wagiedev/stdio-ipc-go/internal/subprocess"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// Re-export types from internal packages

// ===== Messages =====

// Message is one decoded wire message.
type Message = wire.Message

// Payload is the data carried by an outbound message.
// Build one with Scalar, Structured or Null. A nil Payload is sent as null.
type Payload = wire.Payload

// Scalar returns a payload sent as the string s.
func Scalar(s string) Payload { return wire.Scalar(s) }

// Structured returns a payload whose JSON encoding of v is sent as a string.
// The receiver decodes it with Message.Decode or DecodeData.
func Structured(v any) Payload { return wire.Structured(v) }

// Null returns a payload sent as JSON null.
func Null() Payload { return wire.Null() }

// DecodeData unmarshals the JSON text carried in a data field into v.
func DecodeData(data *string, v any) error { return wire.DecodeData(data, v) }

// ReplyChannel returns the event name replies to event are routed on.
func ReplyChannel(event string) string { return wire.ReplyChannel(event) }

const (
	// ReplySuffix is appended to an event name to form its reply channel.
	ReplySuffix = wire.ReplySuffix

	// EventExit asks a Child to stop serving.
	EventExit = wire.EventExit
)

// ===== Handlers =====

// Handler receives the data of a message on a subscribed event. err is a
// *RemoteError when the peer set the message's error field.
type Handler = router.Handler

// CatchAllHandler receives every message, before per-event handlers.
type CatchAllHandler = router.CatchAllHandler

// Subscription identifies a registered handler. Pass it to Off to remove it.
type Subscription = router.Subscription

// ReplyFunc receives the reply to a RequestReply call, exactly once.
type ReplyFunc = protocol.ReplyFunc

// ServeFunc answers requests registered with ServeAndReply. channel is the
// event name the reply must be sent on.
type ServeFunc = protocol.ServeFunc

// RequestHandler computes the reply to a request registered with Handle.
type RequestHandler = protocol.RequestHandler

// ===== Diagnostics =====

// Notification is one stderr event from the child.
type Notification = subprocess.Notification

// NotificationKind distinguishes stderr data, read errors and stream close.
type NotificationKind = subprocess.NotificationKind

const (
	// KindStreamData carries a chunk of stderr text.
	KindStreamData = subprocess.KindStreamData
	// KindStreamError reports a failed stderr read.
	KindStreamError = subprocess.KindStreamError
	// KindStreamClosed reports that stderr reached EOF.
	KindStreamClosed = subprocess.KindStreamClosed
)

// ===== Configuration =====

// Profile describes a child launch loaded from a TOML file.
type Profile = config.Profile

// LoadProfile reads a launch profile from a TOML file.
func LoadProfile(path string) (*Profile, error) { return config.LoadProfile(path) }

// DefaultKeepAliveInterval is the ping interval used by WithKeepAlive(0).
const DefaultKeepAliveInterval = protocol.DefaultKeepAliveInterval
