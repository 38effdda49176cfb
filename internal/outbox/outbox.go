// Package outbox queues encoded lines for a child's stdin.
//
// Writes are fire-and-forget: Enqueue never blocks on the pipe, and a slow
// reader on the other end only grows the queue. A single writer goroutine
// (Run) drains the queue in FIFO order.
package outbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/eapache/queue"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
)

// flushMarker is queued by Flush and signalled when the writer reaches it.
type flushMarker struct {
	done chan error
}

// Outbox is an unbounded FIFO of lines written to w by Run.
type Outbox struct {
	log *slog.Logger
	w   io.Writer

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
}

// New creates an outbox writing to w. Call Run to start draining it.
func New(log *slog.Logger, w io.Writer) *Outbox {
	o := &Outbox{
		log: log.With("component", "outbox"),
		w:   w,
		q:   queue.New(),
	}
	o.cond = sync.NewCond(&o.mu)

	return o
}

// Enqueue appends line to the queue. It reports false, without queuing,
// once the outbox is closed.
func (o *Outbox) Enqueue(line []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}

	o.q.Add(line)
	o.cond.Signal()

	return true
}

// WriteLine is Enqueue under the name the protocol layer writes through.
func (o *Outbox) WriteLine(line []byte) bool {
	return o.Enqueue(line)
}

// Len returns the number of queued items.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.q.Length()
}

// Closed reports whether Close has been called.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.closed
}

// Flush waits until every line enqueued before the call has been written.
func (o *Outbox) Flush(ctx context.Context) error {
	m := flushMarker{done: make(chan error, 1)}

	o.mu.Lock()

	if o.closed {
		o.mu.Unlock()

		return errors.ErrSessionClosed
	}

	o.q.Add(m)
	o.cond.Signal()
	o.mu.Unlock()

	select {
	case err := <-m.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the outbox and discards queued lines. Safe to call multiple times.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	o.closed = true

	discarded := 0

	for o.q.Length() > 0 {
		switch v := o.q.Remove().(type) {
		case flushMarker:
			v.done <- errors.ErrSessionClosed
		default:
			discarded++
		}
	}

	if discarded > 0 {
		o.log.Debug("Discarded queued lines on close", "count", discarded)
	}

	o.cond.Broadcast()
}

// Run writes queued lines until Close is called or a write fails.
// It returns nil after Close and the write error otherwise; a failed
// write closes the outbox.
func (o *Outbox) Run() error {
	defer o.log.Debug("Outbox writer stopped")

	for {
		o.mu.Lock()

		for o.q.Length() == 0 && !o.closed {
			o.cond.Wait()
		}

		if o.closed {
			o.mu.Unlock()

			return nil
		}

		item := o.q.Remove()
		o.mu.Unlock()

		switch v := item.(type) {
		case flushMarker:
			v.done <- nil

		case []byte:
			if _, err := o.w.Write(v); err != nil {
				o.log.Error("Failed to write line", "error", err)
				o.Close()

				return fmt.Errorf("write line: %w", err)
			}
		}
	}
}
