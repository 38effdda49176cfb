// Package config provides configuration types for IPC sessions.
package config

import (
	"io"
	"log/slog"
	"time"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
	"github.com/wagiedev/stdio-ipc-go/internal/subprocess"
)

// Options configures a parent-side Process or a child-side Child.
type Options struct {
	// Logger is the slog logger for debug output. The public options
	// replace nil with a discarding logger.
	Logger *slog.Logger

	// Env entries ("KEY=value") added to the child's environment.
	Env []string

	// Dir is the child's working directory. Empty means the parent's.
	Dir string

	// MaxFrameSize bounds a single unterminated frame. Zero selects the default.
	MaxFrameSize int

	// ReadBufferSize is the chunk size for stream reads. Zero selects the default.
	ReadBufferSize int

	// DisableAutoPong stops a Process from answering the child's pings.
	DisableAutoPong bool

	// KeepAliveInterval enables pinging the parent from a Child.
	// Zero disables keepalive.
	KeepAliveInterval time.Duration

	// LogHandlers receive the child's stderr notifications.
	LogHandlers []func(subprocess.Notification)

	// OnDrop receives every inbound frame that could not be decoded.
	OnDrop func(*errors.DecodeError)

	// Stdin and Stdout override a Child's streams. Nil means os.Stdin/os.Stdout.
	Stdin  io.Reader
	Stdout io.Writer
}
