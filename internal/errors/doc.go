// Package errors defines error types for the stdio IPC bridge.
//
// This package provides structured error types for the failure scenarios of
// a parent/child stdio session: starting the child, encoding outbound
// messages, decoding inbound frames, and error replies from the peer. All
// error types support unwrapping and can be checked using errors.Is,
// errors.As, and errors.AsType.
package errors
