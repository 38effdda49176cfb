package protocol

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eapache/queue"

	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// Worker runs subscriber handlers on their own goroutine, one message at a
// time in arrival order, so the goroutine reading the peer's stream never
// blocks on a handler.
//
// Replies, ping, pong and the exit event are routed inline by Dispatch. A
// handler waiting on Request therefore still receives its reply while other
// messages queue behind it.
type Worker struct {
	log *slog.Logger
	c   *Controller

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
	done   chan struct{}
}

// NewWorker creates a worker dispatching to c. Call Run to start it.
func NewWorker(log *slog.Logger, c *Controller) *Worker {
	w := &Worker{
		log:  log.With("component", "worker"),
		c:    c,
		q:    queue.New(),
		done: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)

	return w
}

// Dispatch routes msg inline when it is control traffic and queues it for
// Run otherwise. Messages arriving after Close are dropped.
func (w *Worker) Dispatch(msg wire.Message) {
	if routeInline(msg) {
		w.c.Dispatch(msg)

		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.log.Debug("Worker closed, message dropped", "event", msg.Event)

		return
	}

	w.q.Add(msg)
	w.cond.Signal()
}

// Feed decodes a raw chunk with the controller's assembler and dispatches
// every completed message.
func (w *Worker) Feed(chunk []byte) {
	for _, m := range w.c.Assembler().Feed(chunk) {
		w.Dispatch(m)
	}
}

// Run invokes handlers for queued messages until Close is called and the
// queue is empty.
func (w *Worker) Run() {
	defer close(w.done)

	for {
		w.mu.Lock()

		for w.q.Length() == 0 && !w.closed {
			w.cond.Wait()
		}

		if w.q.Length() == 0 {
			w.mu.Unlock()

			return
		}

		msg, _ := w.q.Remove().(wire.Message)
		w.mu.Unlock()

		w.c.Dispatch(msg)
	}
}

// Close stops accepting messages. Messages already queued are still handled.
// It's safe to call Close multiple times.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.cond.Broadcast()
}

// Drain closes the worker and waits until Run has handled every queued
// message or ctx is done.
func (w *Worker) Drain(ctx context.Context) error {
	w.Close()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func routeInline(msg wire.Message) bool {
	switch msg.Event {
	case wire.EventPing, wire.EventPong, wire.EventExit:
		return true
	}

	return msg.IsReply()
}
