package ipc

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/stdio-ipc-go/internal/config"
	"github.com/wagiedev/stdio-ipc-go/internal/framing"
	"github.com/wagiedev/stdio-ipc-go/internal/outbox"
	"github.com/wagiedev/stdio-ipc-go/internal/protocol"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// shutdownTimeout bounds how long Run waits for queued handlers and replies
// on the way out.
const shutdownTimeout = 5 * time.Second

// errExitRequested stops the serving group when the parent sends EventExit.
var errExitRequested = stderrors.New("exit requested")

// Child serves the line protocol on the current process's stdin and stdout,
// for a program spawned by a Process.
//
// Register handlers before calling Run. Messages sent before Run are queued
// and written once it starts. Handlers run one at a time on a goroutine of
// their own, so a handler may call Request and wait for the parent's reply.
type Child struct {
	endpoint

	log     *slog.Logger
	options *config.Options
	in      io.Reader
	out     *outbox.Outbox
	worker  *protocol.Worker
	running atomic.Bool
}

// NewChild creates a child endpoint. Stdout must not be written to by
// anything else while the child serves.
func NewChild(opts ...Option) *Child {
	options := applyOptions(opts)
	log := options.Logger

	var (
		in io.Reader = os.Stdin
		w  io.Writer = os.Stdout
	)

	if options.Stdin != nil {
		in = options.Stdin
	}

	if options.Stdout != nil {
		w = options.Stdout
	}

	ch := &Child{
		log:     log.With("component", "child"),
		options: options,
		in:      in,
		out:     outbox.New(log, w),
	}
	ch.c = protocol.NewController(log, ch.out, framing.New(log, options.MaxFrameSize, options.OnDrop))
	ch.worker = protocol.NewWorker(log, ch.c)

	return ch
}

// Run serves until the parent sends EventExit, stdin reaches EOF, or ctx is
// done; each of these returns nil. With keepalive enabled, Run returns
// ErrKeepAliveTimeout when the parent stops answering pings. Queued
// messages are flushed before Run returns.
//
// A Child serves once. Calling Run again returns ErrAlreadyRunning.
func (ch *Child) Run(ctx context.Context) error {
	if !ch.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer ch.c.Close()

	go ch.worker.Run()

	writeErr := make(chan error, 1)

	go func() {
		writeErr <- ch.out.Run()
	}()

	// Reads from stdin cannot be interrupted, so the reader is not waited on.
	readErr := make(chan error, 1)

	go func() {
		readErr <- ch.c.Assembler().ReadFrom(ch.in, ch.options.ReadBufferSize, ch.worker.Dispatch)
	}()

	exit := make(chan struct{})

	var exitOnce sync.Once

	exitSub := ch.c.Router().Subscribe(wire.EventExit, func(*string, error) {
		exitOnce.Do(func() { close(exit) })
	})
	defer ch.c.Router().Unsubscribe(exitSub)

	g, gctx := errgroup.WithContext(ctx)

	if interval := ch.options.KeepAliveInterval; interval > 0 {
		ka := protocol.NewKeepAlive(ch.log, ch.c, interval)
		g.Go(func() error { return ka.Run(gctx) })
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil

		case <-exit:
			ch.log.Info("Exit requested by parent")

			return errExitRequested

		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			ch.log.Info("Stdin closed")

			return errExitRequested

		case err := <-writeErr:
			if err != nil {
				return fmt.Errorf("write stdout: %w", err)
			}

			return nil
		}
	})

	err := g.Wait()
	if stderrors.Is(err, errExitRequested) {
		err = nil
	}

	ch.shutdown()

	return err
}

// shutdown lets queued handlers finish, then writes what they sent.
func (ch *Child) shutdown() {
	defer ch.out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := ch.worker.Drain(ctx); err != nil {
		ch.log.Warn("Handlers still running at shutdown", "error", err)
	}

	if ch.out.Closed() {
		return
	}

	if err := ch.out.Flush(ctx); err != nil {
		ch.log.Warn("Failed to flush queued messages", "error", err)
	}
}
