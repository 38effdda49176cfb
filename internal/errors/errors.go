package errors

import (
	"errors"
	"fmt"
)

// IPCError is the base interface for all IPC errors.
type IPCError interface {
	error
	IsIPCError() bool
}

// Compile-time verification that all error types implement IPCError.
var (
	_ IPCError = (*ProcessStartError)(nil)
	_ IPCError = (*ProcessError)(nil)
	_ IPCError = (*EncodeError)(nil)
	_ IPCError = (*DecodeError)(nil)
	_ IPCError = (*RemoteError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrSessionClosed indicates the session was terminated or the child exited.
	ErrSessionClosed = errors.New("session closed")

	// ErrEmptyEvent indicates an outbound message had no event name.
	ErrEmptyEvent = errors.New("event name must not be empty")

	// ErrKeepAliveTimeout indicates the parent stopped answering pings.
	ErrKeepAliveTimeout = errors.New("keepalive timeout: no pong from parent")

	// ErrFrameTooLarge indicates a partial frame outgrew the assembler limit.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrAlreadyRunning indicates Run was called on a child that is already serving.
	ErrAlreadyRunning = errors.New("child is already running")

	// ErrNotAMessage indicates a frame decoded as JSON but not as a message object.
	ErrNotAMessage = errors.New("frame is not a message object")
)

// ProcessStartError indicates the child process could not be started.
type ProcessStartError struct {
	Path string
	Err  error
}

func (e *ProcessStartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *ProcessStartError) Unwrap() error {
	return e.Err
}

// IsIPCError implements IPCError.
func (e *ProcessStartError) IsIPCError() bool { return true }

// ProcessError indicates the child process exited with a failure.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("child process failed (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("child process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsIPCError implements IPCError.
func (e *ProcessError) IsIPCError() bool { return true }

// EncodeError indicates an outbound payload could not be serialized.
type EncodeError struct {
	Event string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %q payload: %v", e.Event, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// IsIPCError implements IPCError.
func (e *EncodeError) IsIPCError() bool { return true }

// DecodeError describes an inbound frame that was dropped.
// This error preserves the raw frame that failed to parse.
type DecodeError struct {
	RawData string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsIPCError implements IPCError.
func (e *DecodeError) IsIPCError() bool { return true }

// RemoteError carries the error field of a message sent by the peer.
type RemoteError struct {
	Event   string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("peer error on %q: %s", e.Event, e.Message)
}

// IsIPCError implements IPCError.
func (e *RemoteError) IsIPCError() bool { return true }
