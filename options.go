package ipc

import (
	"io"
	"log/slog"
	"time"

	"github.com/wagiedev/stdio-ipc-go/internal/config"
	"github.com/wagiedev/stdio-ipc-go/internal/protocol"
)

// Option configures a Process or a Child using the functional options pattern.
type Option func(*config.Options)

// applyOptions applies functional options to a fresh config.Options.
// A missing logger is replaced by NopLogger.
func applyOptions(opts []Option) *config.Options {
	options := &config.Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = NopLogger()
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *config.Options) {
		o.Logger = logger
	}
}

// WithEnv adds "KEY=value" entries to the child's environment.
// The parent's environment is inherited.
func WithEnv(env ...string) Option {
	return func(o *config.Options) {
		o.Env = append(o.Env, env...)
	}
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(o *config.Options) {
		o.Dir = dir
	}
}

// ===== Framing =====

// WithMaxFrameSize bounds how many bytes of an unterminated frame are kept
// before it is dropped. Default is 1MB.
func WithMaxFrameSize(size int) Option {
	return func(o *config.Options) {
		o.MaxFrameSize = size
	}
}

// WithReadBufferSize sets the chunk size used for stream reads. Default is 64KB.
func WithReadBufferSize(size int) Option {
	return func(o *config.Options) {
		o.ReadBufferSize = size
	}
}

// WithDesyncHandler registers a callback for every inbound frame that could
// not be decoded and was dropped.
func WithDesyncHandler(fn func(*DecodeError)) Option {
	return func(o *config.Options) {
		o.OnDrop = fn
	}
}

// ===== Liveness =====

// WithAutoPong controls whether a Process answers the child's pings.
// Enabled by default.
func WithAutoPong(enabled bool) Option {
	return func(o *config.Options) {
		o.DisableAutoPong = !enabled
	}
}

// WithKeepAlive makes a Child ping its parent every interval and stop with
// ErrKeepAliveTimeout when a ping goes unanswered for a whole interval.
// An interval of zero or less selects DefaultKeepAliveInterval.
func WithKeepAlive(interval time.Duration) Option {
	return func(o *config.Options) {
		if interval <= 0 {
			interval = protocol.DefaultKeepAliveInterval
		}

		o.KeepAliveInterval = interval
	}
}

// ===== Diagnostics =====

// WithLogHandler registers a callback for the child's stderr notifications.
// May be given more than once; handlers run in registration order.
func WithLogHandler(fn func(Notification)) Option {
	return func(o *config.Options) {
		o.LogHandlers = append(o.LogHandlers, fn)
	}
}

// ===== Child side =====

// WithIO replaces the streams a Child serves on. Nil arguments keep
// os.Stdin and os.Stdout.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(o *config.Options) {
		o.Stdin = r
		o.Stdout = w
	}
}

// WithProfile applies a launch profile's environment, directory, framing
// and liveness settings. Options given after it override the profile.
func WithProfile(p *Profile) Option {
	return func(o *config.Options) {
		if p != nil {
			p.Apply(o)
		}
	}
}
