package ipc

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	var logged []Notification

	in := strings.NewReader("")
	out := &bytes.Buffer{}
	logger := NopLogger()

	options := applyOptions([]Option{
		WithLogger(logger),
		WithEnv("A=1"),
		WithEnv("B=2", "C=3"),
		WithDir("/tmp"),
		WithMaxFrameSize(4096),
		WithReadBufferSize(128),
		WithAutoPong(false),
		WithKeepAlive(time.Second),
		WithLogHandler(func(n Notification) { logged = append(logged, n) }),
		WithDesyncHandler(func(*DecodeError) {}),
		WithIO(in, out),
	})

	require.Same(t, logger, options.Logger)
	require.Equal(t, []string{"A=1", "B=2", "C=3"}, options.Env)
	require.Equal(t, "/tmp", options.Dir)
	require.Equal(t, 4096, options.MaxFrameSize)
	require.Equal(t, 128, options.ReadBufferSize)
	require.True(t, options.DisableAutoPong)
	require.Equal(t, time.Second, options.KeepAliveInterval)
	require.Len(t, options.LogHandlers, 1)
	require.NotNil(t, options.OnDrop)
	require.Same(t, in, options.Stdin)
	require.Same(t, out, options.Stdout)

	options.LogHandlers[0](Notification{Kind: KindStreamData, Text: "x"})
	require.Len(t, logged, 1)
}

func TestApplyOptions_DefaultLogger(t *testing.T) {
	options := applyOptions(nil)
	require.NotNil(t, options.Logger)
	require.False(t, options.Logger.Enabled(context.Background(), slog.LevelError))
}

func TestWithKeepAlive_Default(t *testing.T) {
	options := applyOptions([]Option{WithKeepAlive(0)})
	require.Equal(t, DefaultKeepAliveInterval, options.KeepAliveInterval)
}

func TestWithProfile(t *testing.T) {
	pong := false
	profile := &Profile{
		Env:       []string{"FROM_PROFILE=1"},
		Dir:       "/srv",
		KeepAlive: 5 * time.Second,
		AutoPong:  &pong,
	}

	options := applyOptions([]Option{
		WithProfile(profile),
		WithDir("/override"),
		WithProfile(nil),
	})

	require.Equal(t, []string{"FROM_PROFILE=1"}, options.Env)
	require.Equal(t, "/override", options.Dir)
	require.Equal(t, 5*time.Second, options.KeepAliveInterval)
	require.True(t, options.DisableAutoPong)
}
