package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

func TestController_RequestReplyRoundTrip(t *testing.T) {
	c, sender := newTestController(t)

	calls := 0

	var gotData *string

	var gotErr error

	id, err := c.RequestReply("yoo", wire.Scalar("hi"), func(data *string, err error) {
		calls++
		gotData, gotErr = data, err
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, []string{"{\"event\":\"yoo\",\"data\":\"hi\",\"SR\":true}\n"}, sender.getLines())
	require.Equal(t, 1, c.Pending("yoo"))

	c.Feed([]byte(`{"event":"yoo___RC___","data":"fine","SR":false}`))

	require.Equal(t, 1, calls)
	require.NoError(t, gotErr)
	require.Equal(t, "fine", *gotData)
	require.Zero(t, c.Pending("yoo"))
	require.Zero(t, c.Router().Count("yoo___RC___"))
}

func TestController_ReplyDeliveredToExactlyOneCaller(t *testing.T) {
	c, _ := newTestController(t)

	var got []string

	for i := range 3 {
		_, err := c.RequestReply("yoo", wire.Scalar("hi"), func(data *string, _ error) {
			got = append(got, fmt.Sprintf("cb%d:%s", i, *data))
		})
		require.NoError(t, err)
	}

	require.Equal(t, 3, c.Pending("yoo"))

	feedLine(t, c, wire.Message{Event: "yoo___RC___", Data: ptr("r1")})
	require.Equal(t, []string{"cb0:r1"}, got)

	feedLine(t, c, wire.Message{Event: "yoo___RC___", Data: ptr("r2")})
	feedLine(t, c, wire.Message{Event: "yoo___RC___", Data: ptr("r3")})
	require.Equal(t, []string{"cb0:r1", "cb1:r2", "cb2:r3"}, got)

	// A fourth reply has nobody waiting and is ignored.
	feedLine(t, c, wire.Message{Event: "yoo___RC___", Data: ptr("r4")})
	require.Len(t, got, 3)
}

func TestController_ReplyWithErrorField(t *testing.T) {
	c, _ := newTestController(t)

	var gotErr error

	_, err := c.RequestReply("lookup", nil, func(_ *string, err error) { gotErr = err })
	require.NoError(t, err)

	feedLine(t, c, wire.Message{Event: "lookup___RC___", Error: ptr("not found")})

	remote, ok := stderrors.AsType[*errors.RemoteError](gotErr)
	require.True(t, ok)
	require.Equal(t, "not found", remote.Message)
}

func TestController_CancelRequest(t *testing.T) {
	c, _ := newTestController(t)

	fired := false

	id, err := c.RequestReply("slow", nil, func(*string, error) { fired = true })
	require.NoError(t, err)

	require.True(t, c.CancelRequest(id))
	require.False(t, c.CancelRequest(id))
	require.Zero(t, c.Pending("slow"))

	feedLine(t, c, wire.Message{Event: "slow___RC___", Data: ptr("late")})
	require.False(t, fired)
}

func TestController_SendAfterSessionClosedIsSilent(t *testing.T) {
	c, sender := newTestController(t)
	sender.close()

	require.NoError(t, c.Send("who", wire.Structured(map[string]string{"name": "x"})))
	require.NoError(t, c.Reply("yoo___RC___", wire.Scalar("x"), ""))

	fired := false

	_, err := c.RequestReply("yoo", nil, func(*string, error) { fired = true })
	require.NoError(t, err)
	require.Zero(t, c.Pending("yoo"))
	require.False(t, fired)
	require.Empty(t, sender.getLines())

	_, err = c.Request(context.Background(), "yoo", nil)
	require.ErrorIs(t, err, errors.ErrSessionClosed)
}

func TestController_SendErrors(t *testing.T) {
	c, sender := newTestController(t)

	require.ErrorIs(t, c.Send("", nil), errors.ErrEmptyEvent)

	_, err := c.RequestReply("", nil, func(*string, error) {})
	require.ErrorIs(t, err, errors.ErrEmptyEvent)

	err = c.Send("bad", wire.Structured(func() {}))
	require.Error(t, err)

	_, ok := stderrors.AsType[*errors.EncodeError](err)
	require.True(t, ok)

	_, err = c.RequestReply("bad", wire.Structured(make(chan int)), func(*string, error) {})
	require.Error(t, err)
	require.Zero(t, c.Pending("bad"))
	require.Empty(t, sender.getLines())
}

func TestController_Send(t *testing.T) {
	c, sender := newTestController(t)

	require.NoError(t, c.Send("who", wire.Structured(map[string]string{"name": "Akuma"})))
	require.NoError(t, c.Send("count", wire.Scalar("3")))

	msgs := sender.getMessages(t)
	require.Len(t, msgs, 2)
	require.Equal(t, `{"name":"Akuma"}`, msgs[0].Text())
	require.False(t, msgs[0].SR)
	require.Equal(t, "3", msgs[1].Text())
}

func TestController_Request(t *testing.T) {
	c, sender := newTestController(t)

	// Emulate a peer that echoes requests on their reply channel.
	sender.onWrite = func(line []byte) {
		msg, err := wire.Decode(line)
		if err != nil || !msg.SR {
			return
		}

		reply, _ := wire.EncodeReply(wire.ReplyChannel(msg.Event), wire.Scalar("echo:"+msg.Text()), "")

		go c.Feed(reply)
	}

	data, err := c.Request(context.Background(), "echo", wire.Scalar("ping"))
	require.NoError(t, err)
	require.Equal(t, "echo:ping", *data)
	require.Zero(t, c.Pending("echo"))
}

func TestController_RequestContextCancelled(t *testing.T) {
	c, _ := newTestController(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Request(ctx, "never", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, c.Pending("never"))
}

func TestController_CloseReleasesRequests(t *testing.T) {
	c, _ := newTestController(t)

	errs := make(chan error, 1)

	go func() {
		_, err := c.Request(context.Background(), "never", nil)
		errs <- err
	}()

	require.Eventually(t, func() bool { return c.Pending("never") == 1 }, time.Second, time.Millisecond)

	c.Close()
	c.Close()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, errors.ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Request not released by Close")
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	_, err := c.Request(context.Background(), "after", nil)
	require.ErrorIs(t, err, errors.ErrSessionClosed)
}

func TestController_ServeAndReply(t *testing.T) {
	c, sender := newTestController(t)

	c.ServeAndReply("hola", func(channel string, data *string) {
		require.Equal(t, "hola___RC___", channel)
		require.NoError(t, c.Reply(channel, wire.Scalar("cool thanks, "+*data), ""))
	})

	feedLine(t, c, wire.Message{Event: "hola", Data: ptr("amigo"), SR: true})

	msgs := sender.getMessages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "hola___RC___", msgs[0].Event)
	require.Equal(t, "cool thanks, amigo", msgs[0].Text())
	require.Nil(t, msgs[0].Error)
}

func TestController_Handle(t *testing.T) {
	c, sender := newTestController(t)

	c.Handle("square", func(_ context.Context, data *string) (wire.Payload, error) {
		var n int

		if err := wire.DecodeData(data, &n); err != nil {
			return nil, err
		}

		return wire.Structured(n * n), nil
	})

	feedLine(t, c, wire.Message{Event: "square", Data: ptr("7"), SR: true})
	feedLine(t, c, wire.Message{Event: "square", SR: true})

	msgs := sender.getMessages(t)
	require.Len(t, msgs, 2)
	require.Equal(t, "square___RC___", msgs[0].Event)
	require.Equal(t, "49", msgs[0].Text())
	require.Nil(t, msgs[1].Data)
	require.NotNil(t, msgs[1].Error)
	require.Contains(t, *msgs[1].Error, "null")
}

func TestController_HandleUnserializableResult(t *testing.T) {
	c, sender := newTestController(t)

	c.Handle("bad", func(context.Context, *string) (wire.Payload, error) {
		return wire.Structured(make(chan int)), nil
	})

	feedLine(t, c, wire.Message{Event: "bad", SR: true})

	msgs := sender.getMessages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "bad___RC___", msgs[0].Event)
	require.Nil(t, msgs[0].Data)
	require.NotNil(t, msgs[0].Error)
	require.Contains(t, *msgs[0].Error, "encode")
}

func TestController_HandleReceivesCancelledContextAfterClose(t *testing.T) {
	c, _ := newTestController(t)

	var handlerCtx context.Context

	c.Handle("capture", func(ctx context.Context, _ *string) (wire.Payload, error) {
		handlerCtx = ctx

		return nil, nil
	})

	feedLine(t, c, wire.Message{Event: "capture", SR: true})
	require.NotNil(t, handlerCtx)
	require.NoError(t, handlerCtx.Err())

	c.Close()
	require.ErrorIs(t, handlerCtx.Err(), context.Canceled)
}

func TestController_ConcurrentRequests(t *testing.T) {
	c, sender := newTestController(t)

	var feedMu sync.Mutex

	sender.onWrite = func(line []byte) {
		msg, err := wire.Decode(line)
		if err != nil || !msg.SR {
			return
		}

		reply, _ := wire.EncodeReply(wire.ReplyChannel(msg.Event), wire.Scalar(msg.Text()), "")

		// Serialize feeding like the single stdout pump does.
		feedMu.Lock()
		defer feedMu.Unlock()

		c.Feed(reply)
	}

	var wg sync.WaitGroup

	errs := make(chan error, 50)

	for i := range 50 {
		wg.Go(func() {
			event := fmt.Sprintf("job-%d", i%5)

			_, err := c.Request(context.Background(), event, wire.Scalar(event))
			errs <- err
		})
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for i := range 5 {
		require.Zero(t, c.Pending(fmt.Sprintf("job-%d", i)))
	}
}
