package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
	"github.com/wagiedev/stdio-ipc-go/internal/framing"
	"github.com/wagiedev/stdio-ipc-go/internal/router"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// Sender defines the minimal outbound interface needed for protocol operations.
//
// This interface is satisfied by subprocess.Session and by the child-side
// stdout writer, and allows testing with mock senders.
type Sender interface {
	// WriteLine queues an encoded line for the peer. It reports false when
	// the stream no longer accepts writes; the line is then dropped.
	WriteLine(line []byte) bool
}

// Controller manages message routing and request correlation for one session.
//
// Feed must be called from a single goroutine. All other methods are safe for
// concurrent use.
type Controller struct {
	log       *slog.Logger
	out       Sender
	router    *router.Router
	assembler *framing.Assembler

	// Request tracking, FIFO per reply channel
	pendingMu sync.Mutex
	pending   map[string][]*pendingReply
	byID      map[string]string
	listeners map[string]*router.Subscription
	closed    bool

	// Handler context, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

// NewController creates a controller writing to out and decoding with assembler.
func NewController(log *slog.Logger, out Sender, assembler *framing.Assembler) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		log:       log.With("component", "protocol"),
		out:       out,
		router:    router.New(log),
		assembler: assembler,
		pending:   make(map[string][]*pendingReply, 10),
		byID:      make(map[string]string, 10),
		listeners: make(map[string]*router.Subscription, 10),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Router returns the controller's subscription table.
func (c *Controller) Router() *router.Router {
	return c.router
}

// Assembler returns the controller's frame assembler.
func (c *Controller) Assembler() *framing.Assembler {
	return c.assembler
}

// Done returns a channel that is closed when the controller is closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close releases blocked Request calls with ErrSessionClosed, forgets
// callback-style pending requests and cancels the context passed to request
// handlers. It's safe to call Close multiple times.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()

		c.closed = true

		for channel, sub := range c.listeners {
			c.router.Unsubscribe(sub)
			delete(c.listeners, channel)
		}

		abandoned := len(c.byID)
		clear(c.pending)
		clear(c.byID)

		c.pendingMu.Unlock()

		if abandoned > 0 {
			c.log.Debug("Abandoned pending requests on close", "count", abandoned)
		}

		c.cancel()
		close(c.done)
	})
}

// Feed consumes one raw chunk from the peer and routes every message it completes.
func (c *Controller) Feed(chunk []byte) {
	for _, m := range c.assembler.Feed(chunk) {
		c.Dispatch(m)
	}
}

// Dispatch routes one decoded message.
func (c *Controller) Dispatch(msg wire.Message) {
	c.log.Debug("Received message", "event", msg.Event, "sr", msg.SR)
	c.router.Route(msg)
}

// Send writes a message without expecting a reply.
//
// Serialization failures are returned. A message written after the session
// closed is dropped without error.
func (c *Controller) Send(event string, payload wire.Payload) error {
	if event == "" {
		return errors.ErrEmptyEvent
	}

	line, err := wire.Encode(event, payload, false)
	if err != nil {
		c.log.Error("Failed to encode message", "event", event, "error", err)

		return fmt.Errorf("encode message: %w", err)
	}

	if !c.out.WriteLine(line) {
		c.log.Debug("Session closed, message dropped", "event", event)

		return nil
	}

	c.log.Debug("Sent message", "event", event)

	return nil
}

// Reply answers a request on channel. A non-empty errMsg is sent in the
// reply's error field.
func (c *Controller) Reply(channel string, payload wire.Payload, errMsg string) error {
	if channel == "" {
		return errors.ErrEmptyEvent
	}

	line, err := wire.EncodeReply(channel, payload, errMsg)
	if err != nil {
		c.log.Error("Failed to encode reply", "channel", channel, "error", err)

		return fmt.Errorf("encode reply: %w", err)
	}

	if !c.out.WriteLine(line) {
		c.log.Debug("Session closed, reply dropped", "channel", channel)
	}

	return nil
}

// RequestReply sends a request and registers fn for its reply.
//
// It does not block. fn fires at most once, on the goroutine feeding the
// controller, when a message arrives on the request's reply channel. There is
// no timeout; use CancelRequest with the returned id to stop waiting.
func (c *Controller) RequestReply(event string, payload wire.Payload, fn ReplyFunc) (string, error) {
	id, _, err := c.request(event, payload, fn)

	return id, err
}

// Request sends a request and blocks until its reply arrives, ctx is done, or
// the controller closes.
func (c *Controller) Request(ctx context.Context, event string, payload wire.Payload) (*string, error) {
	type result struct {
		data *string
		err  error
	}

	replies := make(chan result, 1)

	id, written, err := c.request(event, payload, func(data *string, err error) {
		replies <- result{data: data, err: err}
	})
	if err != nil {
		return nil, err
	}

	if !written {
		return nil, errors.ErrSessionClosed
	}

	select {
	case r := <-replies:
		return r.data, r.err

	case <-c.done:
		c.CancelRequest(id)
		c.log.Debug("Controller closed during request", "request_id", id, "event", event)

		return nil, errors.ErrSessionClosed

	case <-ctx.Done():
		c.CancelRequest(id)
		c.log.Debug("Request cancelled", "request_id", id, "event", event)

		return nil, ctx.Err()
	}
}

// CancelRequest forgets a pending request. It reports whether the request
// was still waiting.
func (c *Controller) CancelRequest(id string) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	channel, ok := c.byID[id]
	if !ok {
		return false
	}

	delete(c.byID, id)

	queue := slices.DeleteFunc(c.pending[channel], func(p *pendingReply) bool { return p.id == id })
	c.setQueueLocked(channel, queue)

	return true
}

// Pending returns the number of requests on event still waiting for a reply.
func (c *Controller) Pending(event string) int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	return len(c.pending[wire.ReplyChannel(event)])
}

// ServeAndReply registers fn for requests on event. fn receives the reply
// channel matching the one the requester listens on.
func (c *Controller) ServeAndReply(event string, fn ServeFunc) *router.Subscription {
	channel := wire.ReplyChannel(event)

	return c.router.Subscribe(event, func(data *string, _ error) {
		fn(channel, data)
	})
}

// Handle registers handler for requests on event and replies with its result.
func (c *Controller) Handle(event string, handler RequestHandler) *router.Subscription {
	channel := wire.ReplyChannel(event)

	return c.router.Subscribe(event, func(data *string, _ error) {
		payload, err := handler(c.ctx, data)
		if err != nil {
			c.log.Warn("Handler returned error", "event", event, "error", err)

			if rerr := c.Reply(channel, nil, err.Error()); rerr != nil {
				c.log.Error("Failed to send error reply", "event", event, "error", rerr)
			}

			return
		}

		if rerr := c.Reply(channel, payload, ""); rerr != nil {
			// Unserializable payload: answer with the encode error.
			if ferr := c.Reply(channel, nil, rerr.Error()); ferr != nil {
				c.log.Error("Failed to send error reply", "event", event, "error", ferr)
			}
		}
	})
}

// request registers fn and writes the request line. written is false when
// the session no longer accepts writes; fn is then never called.
func (c *Controller) request(event string, payload wire.Payload, fn ReplyFunc) (string, bool, error) {
	if event == "" {
		return "", false, errors.ErrEmptyEvent
	}

	line, err := wire.Encode(event, payload, true)
	if err != nil {
		c.log.Error("Failed to encode request", "event", event, "error", err)

		return "", false, fmt.Errorf("encode request: %w", err)
	}

	id := c.generateRequestID()

	// Register before writing so a fast reply cannot be missed.
	if !c.addPending(&pendingReply{id: id, event: event, fn: fn}) {
		c.log.Debug("Controller closed, request dropped", "request_id", id, "event", event)

		return id, false, nil
	}

	if !c.out.WriteLine(line) {
		c.CancelRequest(id)
		c.log.Debug("Session closed, request dropped", "request_id", id, "event", event)

		return id, false, nil
	}

	c.log.Debug("Sent request", "request_id", id, "event", event)

	return id, true, nil
}

func (c *Controller) addPending(p *pendingReply) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	if c.closed {
		return false
	}

	channel := wire.ReplyChannel(p.event)

	c.pending[channel] = append(c.pending[channel], p)
	c.byID[p.id] = channel

	if _, ok := c.listeners[channel]; !ok {
		c.listeners[channel] = c.router.Subscribe(channel, func(data *string, err error) {
			c.deliver(channel, data, err)
		})
	}

	return true
}

// deliver hands a reply to the oldest request waiting on channel.
func (c *Controller) deliver(channel string, data *string, err error) {
	c.pendingMu.Lock()

	queue := c.pending[channel]
	if len(queue) == 0 {
		c.pendingMu.Unlock()
		c.log.Warn("Reply with no pending request", "channel", channel)

		return
	}

	p := queue[0]
	queue[0] = nil

	delete(c.byID, p.id)
	c.setQueueLocked(channel, queue[1:])

	c.pendingMu.Unlock()

	c.log.Debug("Received reply", "request_id", p.id, "event", p.event)

	p.fn(data, err)
}

// setQueueLocked stores the pending queue for channel, dropping the reply
// listener once nothing waits on it. Caller must hold pendingMu.
func (c *Controller) setQueueLocked(channel string, queue []*pendingReply) {
	if len(queue) > 0 {
		c.pending[channel] = queue

		return
	}

	delete(c.pending, channel)

	if sub, ok := c.listeners[channel]; ok {
		c.router.Unsubscribe(sub)
		delete(c.listeners, channel)
	}
}

// generateRequestID creates a unique request ID using ULID.
func (c *Controller) generateRequestID() string {
	return ulid.Make().String()
}
