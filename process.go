package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/wagiedev/stdio-ipc-go/internal/framing"
	"github.com/wagiedev/stdio-ipc-go/internal/protocol"
	"github.com/wagiedev/stdio-ipc-go/internal/subprocess"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// Process is a running child speaking the line protocol on its stdin and
// stdout. Messaging methods are safe for concurrent use. Handlers run one
// message at a time on a goroutine separate from the one reading the
// child's stdout, so a handler may call Request.
type Process struct {
	endpoint

	log     *slog.Logger
	session *subprocess.Session
	worker  *protocol.Worker
	ready   chan struct{}

	logMu       sync.RWMutex
	logHandlers []func(Notification)
}

// Spawn starts path with args and begins reading its output.
//
// ctx bounds the child's lifetime: cancelling it kills the child.
// Returns *ProcessStartError if the child cannot be started.
//
// Example usage:
//
//	proc, err := ipc.Spawn(ctx, "./worker", nil, ipc.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer proc.Terminate()
//
//	proc.On("status", func(data *string, err error) {
//	    // ...
//	})
//
//	reply, err := proc.Request(ctx, "sum", ipc.Structured([]int{1, 2}))
func Spawn(ctx context.Context, path string, args []string, opts ...Option) (*Process, error) {
	options := applyOptions(opts)
	log := options.Logger

	p := &Process{
		log:         log.With("component", "process"),
		ready:       make(chan struct{}),
		logHandlers: slices.Clone(options.LogHandlers),
	}

	assembler := framing.New(log, options.MaxFrameSize, options.OnDrop)

	session, err := subprocess.Spawn(ctx, log, subprocess.Config{
		Path:           path,
		Args:           args,
		Env:            options.Env,
		Dir:            options.Dir,
		ReadBufferSize: options.ReadBufferSize,
	}, subprocess.Callbacks{
		Stdout:     p.onStdout,
		Diagnostic: p.onDiagnostic,
	})
	if err != nil {
		return nil, err
	}

	p.session = session
	p.c = protocol.NewController(log, session, assembler)
	p.worker = protocol.NewWorker(log, p.c)

	go p.worker.Run()

	if !options.DisableAutoPong {
		protocol.AnswerPings(p.c)
	}

	close(p.ready)

	go func() {
		<-session.Done()
		p.worker.Close()
		p.c.Close()
	}()

	return p, nil
}

// SpawnProfile starts the child described by a launch profile. Options are
// applied after the profile's settings.
func SpawnProfile(ctx context.Context, profile *Profile, opts ...Option) (*Process, error) {
	if profile == nil || profile.Path == "" {
		return nil, fmt.Errorf("spawn profile: path is required")
	}

	return Spawn(ctx, profile.Path, profile.Args, append([]Option{WithProfile(profile)}, opts...)...)
}

// OnLog registers a handler for the child's stderr notifications.
func (p *Process) OnLog(fn func(Notification)) {
	p.logMu.Lock()
	defer p.logMu.Unlock()

	p.logHandlers = append(p.logHandlers, fn)
}

// RequestExit asks a Child to stop serving. The child process exits when
// its Run returns; use Wait to observe it.
func (p *Process) RequestExit() error {
	return p.c.Send(wire.EventExit, wire.Null())
}

// Terminate kills the child. Pending requests fail with ErrSessionClosed
// and later sends are dropped. It is safe to call Terminate multiple times
// and after the child exited on its own.
func (p *Process) Terminate() error {
	err := p.session.Terminate()
	p.worker.Close()
	p.c.Close()

	return err
}

// Wait blocks until the child has exited and its output has been consumed.
// It returns *ProcessError if the child failed, and nil after Terminate.
func (p *Process) Wait() error {
	return p.session.Wait()
}

// Done returns a channel closed once the child has exited.
func (p *Process) Done() <-chan struct{} {
	return p.session.Done()
}

// Exited reports whether the child has exited.
func (p *Process) Exited() bool {
	return p.session.Exited()
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.session.Pid()
}

// Stderr returns the stderr text captured so far.
func (p *Process) Stderr() string {
	return p.session.Stderr()
}

func (p *Process) onStdout(chunk []byte) {
	<-p.ready
	p.worker.Feed(chunk)
}

func (p *Process) onDiagnostic(n Notification) {
	switch n.Kind {
	case KindStreamData:
		p.log.Debug("Child stderr", "text", n.Text)
	case KindStreamError:
		p.log.Warn("Child stderr read failed", "error", n.Err)
	case KindStreamClosed:
		p.log.Debug("Child stderr closed")
	}

	p.logMu.RLock()
	handlers := slices.Clone(p.logHandlers)
	p.logMu.RUnlock()

	for _, fn := range handlers {
		fn(n)
	}
}
