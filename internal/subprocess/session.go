package subprocess

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
	"github.com/wagiedev/stdio-ipc-go/internal/outbox"
)

const (
	// defaultReadBufferSize is the chunk size for stdout and stderr reads.
	defaultReadBufferSize = 64 * 1024
	// maxStderrBufferSize caps the stderr text kept for ProcessError.
	// Notifications keep flowing after the cap is reached.
	maxStderrBufferSize = 1024 * 1024 // 1MB
)

// Config describes the child process to spawn.
type Config struct {
	// Path is the executable to run.
	Path string

	// Args are passed to the executable.
	Args []string

	// Env entries ("KEY=value") are appended to the parent's environment.
	Env []string

	// Dir is the working directory. Empty means the parent's.
	Dir string

	// ReadBufferSize is the maximum chunk size read from stdout and stderr.
	ReadBufferSize int
}

// Callbacks receive the child's output.
type Callbacks struct {
	// Stdout is called with every raw chunk read from stdout, on a single
	// goroutine, in stream order. The chunk is reused after Stdout returns.
	Stdout func(chunk []byte)

	// Diagnostic is called for every stderr notification, on a goroutine
	// independent of Stdout.
	Diagnostic func(n Notification)
}

// Session is a running child process.
type Session struct {
	log       *slog.Logger
	cfg       Config
	callbacks Callbacks
	cmd       *exec.Cmd
	out       *outbox.Outbox

	mu      sync.Mutex
	spawned bool
	closed  bool // Terminate was called (intentional shutdown)
	killed  bool // Kill signal was delivered

	stderrMu  sync.Mutex
	stderrBuf strings.Builder

	pumps   errgroup.Group
	done    chan struct{}
	waitErr error
}

// Spawn starts the child process and its stdout/stderr pumps.
//
// ctx bounds the child's lifetime: cancelling it kills the child.
// Returns *errors.ProcessStartError if the process cannot be started.
func Spawn(ctx context.Context, log *slog.Logger, cfg Config, callbacks Callbacks) (*Session, error) {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}

	s := &Session{
		log:       log.With("component", "subprocess"),
		cfg:       cfg,
		callbacks: callbacks,
		done:      make(chan struct{}),
	}

	s.log.Info("Starting child process", "path", cfg.Path)
	s.log.Debug("Child process arguments", "args", cfg.Args)

	//nolint:gosec // G204: launching a caller-chosen executable is the purpose of this package
	cmd := exec.CommandContext(ctx, cfg.Path, cfg.Args...)
	cmd.Dir = cfg.Dir

	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.log.Error("Failed to create stdin pipe", "error", err)

		return nil, &errors.ProcessStartError{Path: cfg.Path, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.log.Error("Failed to create stdout pipe", "error", err)

		return nil, &errors.ProcessStartError{Path: cfg.Path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.log.Error("Failed to create stderr pipe", "error", err)

		return nil, &errors.ProcessStartError{Path: cfg.Path, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		s.log.Error("Failed to start child process", "error", err)

		return nil, &errors.ProcessStartError{Path: cfg.Path, Err: fmt.Errorf("start process: %w", err)}
	}

	s.cmd = cmd
	s.spawned = true
	s.out = outbox.New(s.log, stdin)

	go func() {
		if err := s.out.Run(); err != nil {
			s.log.Debug("Stdin writer stopped", "error", err)
		}
	}()

	// Both pumps must finish reading before cmd.Wait closes the pipes.
	// See: https://pkg.go.dev/os/exec#Cmd.StdoutPipe
	s.pumps.Go(func() error { return s.pumpStdout(stdout) })
	s.pumps.Go(func() error { return s.pumpStderr(stderr) })

	go s.wait()

	s.log.Info("Child process started", "pid", cmd.Process.Pid)

	return s, nil
}

// WriteLine queues line for the child's stdin.
//
// Writes never block. After Terminate, or once the child stopped reading,
// the line is dropped and WriteLine reports false; this is not an error.
func (s *Session) WriteLine(line []byte) bool {
	s.mu.Lock()
	closed := s.closed || s.killed
	s.mu.Unlock()

	if closed {
		return false
	}

	return s.out.Enqueue(line)
}

// Terminate kills the child process.
//
// It's safe to call Terminate multiple times or after the child has exited.
// Handlers already running are not interrupted.
func (s *Session) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.out.Close()

	if s.Exited() {
		return nil
	}

	pid := s.cmd.Process.Pid
	s.log.Debug("Killing child process", "pid", pid)

	if err := s.cmd.Process.Kill(); err != nil {
		if stderrors.Is(err, os.ErrProcessDone) {
			return nil
		}

		return fmt.Errorf("kill child process (pid %d): %w", pid, err)
	}

	s.killed = true

	return nil
}

// Wait blocks until the child exits.
//
// Returns nil on a clean exit or after Terminate, and *errors.ProcessError
// when the child failed on its own.
func (s *Session) Wait() error {
	<-s.done

	return s.waitErr
}

// Done returns a channel that is closed when the child has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exited reports whether the child has exited.
func (s *Session) Exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Pid returns the child's process id.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Spawned reports whether the child was started.
func (s *Session) Spawned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.spawned
}

// Closed reports whether Terminate has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Killed reports whether a kill signal was delivered to the child.
func (s *Session) Killed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.killed
}

// Stderr returns the stderr text captured so far, capped at maxStderrBufferSize.
func (s *Session) Stderr() string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()

	return s.stderrBuf.String()
}

func (s *Session) pumpStdout(r io.Reader) error {
	defer s.log.Debug("Stdout pump stopped")

	buf := make([]byte, s.cfg.ReadBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 && s.callbacks.Stdout != nil {
			s.callbacks.Stdout(buf[:n])
		}

		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil
			}

			s.log.Debug("Stdout read error", "error", err)

			return fmt.Errorf("read stdout: %w", err)
		}
	}
}

func (s *Session) pumpStderr(r io.Reader) error {
	defer s.log.Debug("Stderr pump stopped")
	defer s.notify(Notification{Kind: KindStreamClosed})

	buf := make([]byte, s.cfg.ReadBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			text := string(buf[:n])

			s.stderrMu.Lock()
			if s.stderrBuf.Len() < maxStderrBufferSize {
				s.stderrBuf.WriteString(text)
			}
			s.stderrMu.Unlock()

			s.notify(Notification{Kind: KindStreamData, Text: text})
		}

		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil
			}

			s.notify(Notification{Kind: KindStreamError, Err: err})

			return fmt.Errorf("read stderr: %w", err)
		}
	}
}

func (s *Session) notify(n Notification) {
	n.Stream = "stderr"
	n.Time = time.Now()

	if s.callbacks.Diagnostic != nil {
		s.callbacks.Diagnostic(n)
	}
}

func (s *Session) wait() {
	defer close(s.done)

	if err := s.pumps.Wait(); err != nil {
		s.log.Debug("Output pump error", "error", err)
	}

	s.out.Close()

	s.log.Debug("Waiting for child process to exit")

	err := s.cmd.Wait()

	s.mu.Lock()
	isClosing := s.closed
	s.mu.Unlock()

	if err == nil {
		s.log.Info("Child process exited successfully")

		return
	}

	if isClosing {
		s.log.Debug("Child process terminated during shutdown")

		return
	}

	exitCode := -1
	if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
		exitCode = exitErr.ExitCode()
	}

	stderrOutput := strings.TrimSpace(s.Stderr())

	s.log.Error("Child process exited with error", "exit_code", exitCode, "stderr", stderrOutput)

	s.waitErr = &errors.ProcessError{
		ExitCode: exitCode,
		Stderr:   stderrOutput,
		Err:      err,
	}
}
