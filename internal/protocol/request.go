package protocol

import (
	"context"

	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// ReplyFunc receives the reply to a request.
// err is a *errors.RemoteError when the peer answered with an error.
type ReplyFunc func(data *string, err error)

// ServeFunc handles an incoming request. channel is the reply channel the
// requester is listening on; pass it to Controller.Reply.
type ServeFunc func(channel string, data *string)

// RequestHandler handles an incoming request and returns the reply payload.
//
// The Controller sends the reply automatically. A non-nil error is sent in
// the reply's error field instead of a payload.
type RequestHandler func(ctx context.Context, data *string) (wire.Payload, error)

// pendingReply tracks an outgoing request awaiting its reply.
type pendingReply struct {
	id    string
	event string
	fn    ReplyFunc
}
