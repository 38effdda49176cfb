package protocol

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/stdio-ipc-go/internal/framing"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// mockSender implements Sender for testing.
type mockSender struct {
	mu      sync.Mutex
	lines   [][]byte
	closed  bool
	onWrite func(line []byte)
}

func (m *mockSender) WriteLine(line []byte) bool {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return false
	}

	m.lines = append(m.lines, append([]byte(nil), line...))
	onWrite := m.onWrite
	m.mu.Unlock()

	if onWrite != nil {
		onWrite(line)
	}

	return true
}

func (m *mockSender) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
}

func (m *mockSender) getLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.lines))
	for i, l := range m.lines {
		out[i] = string(l)
	}

	return out
}

func (m *mockSender) getMessages(t *testing.T) []wire.Message {
	t.Helper()

	var out []wire.Message

	for _, l := range m.getLines() {
		msg, err := wire.Decode([]byte(l))
		require.NoError(t, err)

		out = append(out, msg)
	}

	return out
}

func newTestController(t *testing.T) (*Controller, *mockSender) {
	t.Helper()

	sender := &mockSender{}
	c := NewController(slog.Default(), sender, framing.New(slog.Default(), 0, nil))

	t.Cleanup(c.Close)

	return c, sender
}

// feedLine encodes msg and feeds it to the controller as the peer would.
func feedLine(t *testing.T, c *Controller, msg wire.Message) {
	t.Helper()

	line, err := wire.EncodeMessage(msg)
	require.NoError(t, err)

	c.Feed(line)
}

func ptr(s string) *string { return &s }
