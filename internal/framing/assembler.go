package framing

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

const (
	// DefaultMaxFrameSize bounds the residue kept for a single unterminated frame.
	DefaultMaxFrameSize = 1024 * 1024 // 1MB

	// DefaultReadBufferSize is the chunk size used by ReadFrom.
	DefaultReadBufferSize = 64 * 1024
)

// State is the assembler's buffering state.
type State int

const (
	// Idle means no partial frame is held.
	Idle State = iota
	// Buffering means an unterminated frame is waiting for more bytes.
	Buffering
)

func (s State) String() string {
	if s == Buffering {
		return "buffering"
	}

	return "idle"
}

// DropFunc is called with every segment the assembler discards.
type DropFunc func(err *errors.DecodeError)

// Assembler turns raw stream chunks into messages.
//
// An Assembler is not safe for concurrent use; one goroutine feeds it.
type Assembler struct {
	log     *slog.Logger
	maxSize int
	onDrop  DropFunc
	residue []byte
	dropped atomic.Uint64
}

// New creates an assembler. A maxSize of zero or less selects DefaultMaxFrameSize.
func New(log *slog.Logger, maxSize int, onDrop DropFunc) *Assembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	return &Assembler{
		log:     log.With("component", "framing"),
		maxSize: maxSize,
		onDrop:  onDrop,
	}
}

// State reports whether a partial frame is buffered.
func (a *Assembler) State() State {
	if len(a.residue) > 0 {
		return Buffering
	}

	return Idle
}

// Buffered returns the number of residue bytes held.
func (a *Assembler) Buffered() int {
	return len(a.residue)
}

// Dropped returns how many segments have been discarded so far.
// It is safe to call from any goroutine.
func (a *Assembler) Dropped() uint64 {
	return a.dropped.Load()
}

// Reset discards any buffered residue.
func (a *Assembler) Reset() {
	a.residue = nil
}

// Feed consumes one raw chunk and returns the messages it completes, in
// stream order. The chunk is copied; callers may reuse it.
//
// A chunk that is by itself a complete message is returned directly without
// touching the residue. Otherwise the chunk is appended to the residue and
// every complete line is decoded. Undecodable lines are dropped.
func (a *Assembler) Feed(chunk []byte) []wire.Message {
	if m, ok := wire.TryDecodeWhole(chunk); ok {
		return []wire.Message{m}
	}

	a.residue = append(a.residue, chunk...)

	var out []wire.Message

	for {
		i := bytes.IndexByte(a.residue, wire.Terminator)
		if i < 0 {
			break
		}

		if len(bytes.TrimSpace(a.residue[:i])) == 0 {
			a.residue = a.residue[i+1:]

			continue
		}

		m, rest, err := wire.RecoverPartial(a.residue, nil)
		a.residue = rest

		if err != nil {
			a.drop(err)

			continue
		}

		out = append(out, m)
	}

	switch {
	case len(a.residue) == 0:
		a.residue = nil
	case len(a.residue) > a.maxSize:
		a.drop(&errors.DecodeError{RawData: preview(a.residue), Err: errors.ErrFrameTooLarge})
		a.residue = nil
	}

	return out
}

// ReadFrom reads raw chunks from r until EOF and emits every completed
// message. It returns nil on EOF and the read error otherwise.
func (a *Assembler) ReadFrom(r io.Reader, bufSize int, emit func(wire.Message)) error {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}

	buf := make([]byte, bufSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, m := range a.Feed(buf[:n]) {
				emit(m)
			}
		}

		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}

func (a *Assembler) drop(err error) {
	a.dropped.Add(1)

	decErr, ok := stderrors.AsType[*errors.DecodeError](err)
	if !ok {
		decErr = &errors.DecodeError{Err: err}
	}

	a.log.Debug("Dropped undecodable frame", "error", decErr.Err, "raw", preview([]byte(decErr.RawData)))

	if a.onDrop != nil {
		a.onDrop(decErr)
	}
}

// preview truncates raw frames for logging.
func preview(b []byte) string {
	const limit = 256

	if len(b) > limit {
		return string(b[:limit]) + "..."
	}

	return string(b)
}
