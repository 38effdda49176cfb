package ipc

import "github.com/wagiedev/stdio-ipc-go/internal/errors"

// Re-export error types from internal package

// IPCError is the base interface for all errors returned by this package.
type IPCError = errors.IPCError

// ProcessStartError indicates the child process could not be started.
type ProcessStartError = errors.ProcessStartError

// ProcessError indicates the child exited unsuccessfully. It carries the
// exit code and the tail of the child's stderr.
type ProcessError = errors.ProcessError

// EncodeError indicates an outbound payload could not be serialized.
type EncodeError = errors.EncodeError

// DecodeError describes an inbound frame that was dropped.
type DecodeError = errors.DecodeError

// RemoteError is delivered to reply handlers when the peer answered with
// its error field set.
type RemoteError = errors.RemoteError

// Re-export sentinel errors from internal package.
var (
	// ErrSessionClosed indicates the session was terminated or the child exited.
	ErrSessionClosed = errors.ErrSessionClosed

	// ErrEmptyEvent indicates an outbound message had no event name.
	ErrEmptyEvent = errors.ErrEmptyEvent

	// ErrKeepAliveTimeout indicates the parent stopped answering pings.
	ErrKeepAliveTimeout = errors.ErrKeepAliveTimeout

	// ErrFrameTooLarge indicates a partial frame outgrew the size limit.
	ErrFrameTooLarge = errors.ErrFrameTooLarge

	// ErrAlreadyRunning indicates Child.Run was called twice.
	ErrAlreadyRunning = errors.ErrAlreadyRunning
)
