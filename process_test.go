package ipc

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// childModeEnv selects the behaviour of the test binary when it is
// re-executed as a child by the tests below.
const childModeEnv = "IPC_TEST_CHILD_MODE"

func TestMain(m *testing.M) {
	if mode := os.Getenv(childModeEnv); mode != "" {
		os.Exit(runTestChild(mode))
	}

	os.Exit(m.Run())
}

func runTestChild(mode string) int {
	var opts []Option

	switch mode {
	case "crash":
		fmt.Fprintln(os.Stderr, "fatal: boom")

		return 7

	case "keepalive":
		opts = append(opts, WithKeepAlive(100*time.Millisecond))

	case "noise":
		fmt.Fprintln(os.Stdout, "warning: this line is not a message")
	}

	child := NewChild(opts...)

	child.Handle("echo", func(_ context.Context, data *string) (Payload, error) {
		if data == nil {
			return Null(), nil
		}

		return Scalar(*data), nil
	})

	child.Handle("sum", func(_ context.Context, data *string) (Payload, error) {
		var nums []int
		if err := DecodeData(data, &nums); err != nil {
			return nil, err
		}

		total := 0
		for _, n := range nums {
			total += n
		}

		return Structured(map[string]int{"total": total}), nil
	})

	child.Handle("fail", func(context.Context, *string) (Payload, error) {
		return nil, stderrors.New("nope")
	})

	child.On("notify", func(data *string, _ error) {
		_ = child.Send("notified", Scalar(*data))
	})

	_ = child.Send("ready", Null())

	if err := child.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 3
	}

	return 0
}

func spawnTestChild(t *testing.T, mode string, opts ...Option) *Process {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	opts = append([]Option{WithEnv(childModeEnv + "=" + mode)}, opts...)

	proc, err := Spawn(ctx, os.Args[0], nil, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = proc.Terminate() })

	return proc
}

func waitExit(t *testing.T, proc *Process) error {
	t.Helper()

	select {
	case <-proc.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("child did not exit")
	}

	return proc.Wait()
}

func TestProcess_Request(t *testing.T) {
	proc := spawnTestChild(t, "echo")
	ctx := context.Background()

	reply, err := proc.Request(ctx, "echo", Scalar("hi there"))
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Equal(t, "hi there", *reply)

	reply, err = proc.Request(ctx, "echo", nil)
	require.NoError(t, err)
	require.Nil(t, reply)

	reply, err = proc.Request(ctx, "sum", Structured([]int{1, 2, 3, 4}))
	require.NoError(t, err)

	var result struct {
		Total int `json:"total"`
	}
	require.NoError(t, DecodeData(reply, &result))
	require.Equal(t, 10, result.Total)
}

func TestProcess_RequestReply(t *testing.T) {
	proc := spawnTestChild(t, "echo")

	replies := make(chan string, 3)

	for _, word := range []string{"one", "two", "three"} {
		_, err := proc.RequestReply("echo", Scalar(word), func(data *string, err error) {
			if err != nil || data == nil {
				replies <- "unexpected"

				return
			}

			replies <- *data
		})
		require.NoError(t, err)
	}

	var got []string
	for range 3 {
		select {
		case r := <-replies:
			got = append(got, r)
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for replies")
		}
	}

	require.Equal(t, []string{"one", "two", "three"}, got)
	require.Zero(t, proc.Pending("echo"))
}

func TestProcess_RemoteError(t *testing.T) {
	proc := spawnTestChild(t, "echo")

	_, err := proc.Request(context.Background(), "fail", Null())
	require.Error(t, err)

	remote, ok := stderrors.AsType[*RemoteError](err)
	require.True(t, ok)
	require.Equal(t, "nope", remote.Message)
	require.Equal(t, "fail"+ReplySuffix, remote.Event)
}

func TestProcess_SendAndOn(t *testing.T) {
	proc := spawnTestChild(t, "echo")

	got := make(chan string, 1)
	proc.On("notified", func(data *string, _ error) {
		got <- *data
	})

	var (
		mu  sync.Mutex
		all []string
	)

	proc.OnAny(func(msg Message) {
		mu.Lock()
		defer mu.Unlock()

		all = append(all, msg.Event)
	})

	require.NoError(t, proc.Send("notify", Scalar("ping me")))

	select {
	case data := <-got:
		require.Equal(t, "ping me", data)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for notification")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, all, "notified")
}

func TestProcess_RequestExit(t *testing.T) {
	proc := spawnTestChild(t, "echo")

	// Make sure the child is serving before asking it to leave.
	_, err := proc.Request(context.Background(), "echo", Scalar("x"))
	require.NoError(t, err)

	require.NoError(t, proc.RequestExit())
	require.NoError(t, waitExit(t, proc))
	require.True(t, proc.Exited())
}

func TestProcess_ChildFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []NotificationKind
		text  strings.Builder
	)

	proc := spawnTestChild(t, "crash", WithLogHandler(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()

		kinds = append(kinds, n.Kind)
		text.WriteString(n.Text)
	}))

	err := waitExit(t, proc)
	require.Error(t, err)

	procErr, ok := stderrors.AsType[*ProcessError](err)
	require.True(t, ok)
	require.Equal(t, 7, procErr.ExitCode)
	require.Equal(t, "fatal: boom", procErr.Stderr)
	require.Contains(t, proc.Stderr(), "fatal: boom")

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, kinds, KindStreamData)
	require.Equal(t, KindStreamClosed, kinds[len(kinds)-1])
	require.Equal(t, "fatal: boom\n", text.String())
}

func TestProcess_RequestFailsWhenChildExits(t *testing.T) {
	proc := spawnTestChild(t, "crash")

	<-proc.Done()

	_, err := proc.Request(context.Background(), "echo", Scalar("late"))
	require.ErrorIs(t, err, ErrSessionClosed)
	require.NoError(t, proc.Send("echo", Scalar("dropped")))
}

func TestProcess_KeepAlive(t *testing.T) {
	t.Run("answered pings keep the child alive", func(t *testing.T) {
		proc := spawnTestChild(t, "keepalive")

		time.Sleep(600 * time.Millisecond)
		require.False(t, proc.Exited())

		require.NoError(t, proc.RequestExit())
		require.NoError(t, waitExit(t, proc))
	})

	t.Run("unanswered pings stop the child", func(t *testing.T) {
		proc := spawnTestChild(t, "keepalive", WithAutoPong(false))

		err := waitExit(t, proc)
		require.Error(t, err)

		procErr, ok := stderrors.AsType[*ProcessError](err)
		require.True(t, ok)
		require.Equal(t, 3, procErr.ExitCode)
		require.Contains(t, procErr.Stderr, "keepalive timeout")
	})
}

func TestProcess_DropsUndecodableOutput(t *testing.T) {
	drops := make(chan *DecodeError, 1)

	proc := spawnTestChild(t, "noise", WithDesyncHandler(func(err *DecodeError) {
		drops <- err
	}))

	// The noise line precedes every reply on the child's stdout.
	reply, err := proc.Request(context.Background(), "echo", Scalar("after noise"))
	require.NoError(t, err)
	require.Equal(t, "after noise", *reply)

	select {
	case err := <-drops:
		require.Contains(t, err.RawData, "not a message")
	default:
		t.Fatal("expected the noise line to be dropped")
	}

	require.Equal(t, uint64(1), proc.Dropped())
}

func TestProcess_Terminate(t *testing.T) {
	proc := spawnTestChild(t, "echo")

	pending := make(chan error, 1)
	_, err := proc.RequestReply("never", Null(), func(_ *string, err error) {
		pending <- err
	})
	require.NoError(t, err)

	require.NoError(t, proc.Terminate())
	require.NoError(t, proc.Terminate())
	require.NoError(t, waitExit(t, proc))

	_, err = proc.Request(context.Background(), "echo", Scalar("gone"))
	require.ErrorIs(t, err, ErrSessionClosed)
	require.NoError(t, proc.Send("echo", Scalar("gone")))
	require.Zero(t, proc.Pending("never"))
	require.Empty(t, pending)
}

func TestSpawn_MissingExecutable(t *testing.T) {
	_, err := Spawn(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)

	startErr, ok := stderrors.AsType[*ProcessStartError](err)
	require.True(t, ok)
	require.Contains(t, startErr.Path, "missing")
}

func TestSpawnProfile(t *testing.T) {
	_, err := SpawnProfile(context.Background(), &Profile{})
	require.ErrorContains(t, err, "path is required")

	profile := &Profile{
		Path: os.Args[0],
		Env:  []string{childModeEnv + "=echo"},
	}

	proc, err := SpawnProfile(context.Background(), profile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Terminate() })

	reply, err := proc.Request(context.Background(), "echo", Scalar("from profile"))
	require.NoError(t, err)
	require.Equal(t, "from profile", *reply)
}

func TestWithProcess(t *testing.T) {
	var seen string

	err := WithProcess(context.Background(), os.Args[0], nil, func(p *Process) error {
		reply, err := p.Request(context.Background(), "echo", Scalar("scoped"))
		if err != nil {
			return err
		}

		seen = *reply

		return nil
	}, WithEnv(childModeEnv+"=echo"))
	require.NoError(t, err)
	require.Equal(t, "scoped", seen)

	sentinel := stderrors.New("callback failed")
	err = WithProcess(context.Background(), os.Args[0], nil, func(*Process) error {
		return sentinel
	}, WithEnv(childModeEnv+"=echo"))
	require.ErrorIs(t, err, sentinel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = WithProcess(ctx, os.Args[0], nil, func(*Process) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
