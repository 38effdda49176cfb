// Package protocol implements publish/subscribe and request/reply on top of
// the line-delimited message stream.
//
// The Controller owns one session's subscription table and pending requests:
//   - Feed reassembles raw stdout chunks and routes the resulting messages
//   - Send writes fire-and-forget messages
//   - RequestReply and Request send with the SR flag and wait for the reply
//     routed on the event's reply channel
//   - ServeAndReply and Handle answer requests from the peer
//
// Every request gets a ULID correlation id. Replies carry no id on the wire,
// so requests sharing an event name are answered in FIFO order, and each
// reply is delivered to exactly one waiting caller.
//
// Example usage:
//
//	controller := protocol.NewController(log, session, assembler)
//
//	controller.RequestReply("yoo", wire.Scalar("hi"), func(data *string, err error) {
//	    // fires once, on the goroutine that feeds the controller
//	})
//
//	data, err := controller.Request(ctx, "status", nil)
package protocol
