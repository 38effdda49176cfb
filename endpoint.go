package ipc

import (
	"context"

	"github.com/wagiedev/stdio-ipc-go/internal/protocol"
)

// endpoint holds the messaging operations shared by Process and Child.
type endpoint struct {
	c *protocol.Controller
}

// Send writes a fire-and-forget message.
//
// A message sent after the session closed is dropped without error.
// Returns ErrEmptyEvent for an empty event name and an error wrapping
// *EncodeError when the payload cannot be serialized.
func (e *endpoint) Send(event string, payload Payload) error {
	return e.c.Send(event, payload)
}

// RequestReply sends a request and calls fn exactly once with the next reply
// routed on the event's reply channel. There is no timeout; use
// CancelRequest with the returned id to give up.
func (e *endpoint) RequestReply(event string, payload Payload, fn ReplyFunc) (string, error) {
	return e.c.RequestReply(event, payload, fn)
}

// Request sends a request and blocks until the reply arrives, ctx is done,
// or the session closes (ErrSessionClosed). A reply carrying an error field
// is returned as *RemoteError.
func (e *endpoint) Request(ctx context.Context, event string, payload Payload) (*string, error) {
	return e.c.Request(ctx, event, payload)
}

// CancelRequest forgets a pending RequestReply. It reports whether the
// request was still pending.
func (e *endpoint) CancelRequest(id string) bool {
	return e.c.CancelRequest(id)
}

// On subscribes h to event. Handlers for one event run in subscription order.
func (e *endpoint) On(event string, h Handler) *Subscription {
	return e.c.Router().Subscribe(event, h)
}

// OnAny subscribes h to every message. Catch-all handlers run before
// per-event handlers.
func (e *endpoint) OnAny(h CatchAllHandler) *Subscription {
	return e.c.Router().SubscribeCatchAll(h)
}

// Off removes a subscription. It reports whether it was still registered.
func (e *endpoint) Off(sub *Subscription) bool {
	return e.c.Router().Unsubscribe(sub)
}

// RemoveAll removes every handler subscribed to event.
func (e *endpoint) RemoveAll(event string) {
	e.c.Router().RemoveAll(event)
}

// ServeAndReply calls fn for every message on event with the channel its
// reply belongs on.
func (e *endpoint) ServeAndReply(event string, fn ServeFunc) *Subscription {
	return e.c.ServeAndReply(event, fn)
}

// Handle answers every request on event with the handler's result.
// A handler error is sent back in the reply's error field.
func (e *endpoint) Handle(event string, h RequestHandler) *Subscription {
	return e.c.Handle(event, h)
}

// Reply sends a reply on channel. A non-empty errMsg sets the error field.
func (e *endpoint) Reply(channel string, payload Payload, errMsg string) error {
	return e.c.Reply(channel, payload, errMsg)
}

// Pending returns how many requests on event are awaiting a reply.
func (e *endpoint) Pending(event string) int {
	return e.c.Pending(event)
}

// Dropped returns how many inbound frames were discarded as undecodable.
func (e *endpoint) Dropped() uint64 {
	return e.c.Assembler().Dropped()
}
