package ipc

import (
	"context"
	"fmt"
)

// WithProcess manages a child's lifecycle with automatic cleanup.
//
// This helper spawns the child, executes the callback function, and ensures
// the child is terminated when done. If the callback returns an error, it is
// returned to the caller. A failure to terminate is logged but does not
// override the callback's error.
//
// Example usage:
//
//	err := ipc.WithProcess(ctx, "./worker", nil, func(p *ipc.Process) error {
//	    reply, err := p.Request(ctx, "version", nil)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(*reply)
//	    return nil
//	},
//	    ipc.WithLogger(log),
//	)
func WithProcess(ctx context.Context, path string, args []string, fn func(*Process) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log := applyOptions(opts).Logger

	proc, err := Spawn(ctx, path, args, opts...)
	if err != nil {
		return fmt.Errorf("failed to spawn process: %w", err)
	}

	defer func() {
		if termErr := proc.Terminate(); termErr != nil {
			log.Warn("failed to terminate process", "error", termErr)
		}
	}()

	return fn(proc)
}
