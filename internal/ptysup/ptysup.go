// Package ptysup allocates a pseudoterminal, spawns a child command attached
// to it, and provides read/write/resize/close primitives over the PTY
// master. It is the single owner of the PTY file descriptor and the child
// process handle for the lifetime of a session.
package ptysup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Winsize describes a terminal's dimensions in characters and, optionally,
// pixels.
type Winsize struct {
	Cols, Rows               uint16
	PixelWidth, PixelHeight  uint16
}

// ErrSpawnFailed, ErrWriteClosed, and ErrResizeFailed are the sentinel error
// kinds C3 is specified to raise.
var (
	ErrSpawnFailed  = errors.New("ptysup: spawn failed")
	ErrWriteClosed  = errors.New("ptysup: write to closed session")
	ErrResizeFailed = errors.New("ptysup: resize failed")
)

// outputBufSize is the read chunk size; large enough to drain a burst of PTY
// output in one syscall without growing unbounded.
const outputBufSize = 65536

// SpawnOptions configures a new Session.
type SpawnOptions struct {
	// Argv is the child command and its arguments. If empty, the user's
	// default shell is used.
	Argv []string
	// Winsize is the initial terminal size.
	Winsize Winsize
	// Env is merged over the parent's environment. TERM is set to
	// xterm-256color first, so a TERM entry here overrides it.
	Env map[string]string
	// Dir is the child's working directory. Empty means inherit.
	Dir string

	Logger *slog.Logger
}

// Session owns a PTY master fd and the child process attached to its slave
// end. A Session is not safe for concurrent Write calls from multiple
// goroutines; the reactor that owns a Session serializes all writes.
type Session struct {
	ptyFile *os.File
	cmd     *exec.Cmd

	mu sync.Mutex
	ws Winsize

	outputCh chan []byte
	exitedCh chan struct{}
	closed   bool

	readerWg sync.WaitGroup
	logger   *slog.Logger
}

// Spawn allocates a PTY, starts the child under it sized to opts.Winsize,
// and starts the background reader that feeds Output().
func Spawn(opts SpawnOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	argv := opts.Argv
	if len(argv) == 0 {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		argv = []string{shell}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir

	env := os.Environ()
	env = append(env, "TERM=xterm-256color")
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	// Go's os/exec resets SIGPIPE to its default disposition in the child
	// before exec, so unlike the original nix-based implementation this
	// package does not need to do it explicitly.

	ptyFile, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: opts.Winsize.Rows,
		Cols: opts.Winsize.Cols,
		X:    opts.Winsize.PixelWidth,
		Y:    opts.Winsize.PixelHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	s := &Session{
		ptyFile:  ptyFile,
		cmd:      cmd,
		ws:       opts.Winsize,
		outputCh: make(chan []byte, 64),
		exitedCh: make(chan struct{}),
		logger:   logger,
	}

	s.readerWg.Add(1)
	go s.readerLoop()

	logger.Info("pty spawned", "argv", argv, "cols", opts.Winsize.Cols, "rows", opts.Winsize.Rows)
	return s, nil
}

// readerLoop blocks reading the PTY master and republishes each chunk on
// outputCh. It is the Go substitute for non-blocking readiness polling: a
// dedicated goroutine doing blocking reads, feeding a channel the reactor
// selects on.
func (s *Session) readerLoop() {
	defer s.readerWg.Done()
	defer close(s.outputCh)
	defer s.signalExited()

	buf := make([]byte, outputBufSize)
	for {
		n, err := s.ptyFile.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.outputCh <- chunk
		}
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("pty read ended", "error", err)
			}
			return
		}
	}
}

func (s *Session) signalExited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.exitedCh:
	default:
		close(s.exitedCh)
	}
}

// Output returns the channel of bytes read from the PTY master. It is
// closed when the PTY reaches EOF (normally because the child exited).
func (s *Session) Output() <-chan []byte {
	return s.outputCh
}

// Exited is closed when the child process / PTY has terminated.
func (s *Session) Exited() <-chan struct{} {
	return s.exitedCh
}

// Write writes one already-sized chunk directly to the PTY master. Callers
// that need the large-write chunking/pacing policy of ssh:4.3 implement it
// above this call (see internal/reactor), since the pending-input queue is
// owned by the reactor, not the PTY supervisor.
func (s *Session) Write(data []byte) (int, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, ErrWriteClosed
	}
	n, err := s.ptyFile.Write(data)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrWriteClosed, err)
	}
	return n, nil
}

// Resize propagates new window dimensions to the PTY; the kernel delivers
// SIGWINCH to the child.
func (s *Session) Resize(ws Winsize) error {
	s.mu.Lock()
	s.ws = ws
	s.mu.Unlock()

	if err := pty.Setsize(s.ptyFile, &pty.Winsize{
		Rows: ws.Rows,
		Cols: ws.Cols,
		X:    ws.PixelWidth,
		Y:    ws.PixelHeight,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrResizeFailed, err)
	}
	return nil
}

// Size returns the last winsize set via Spawn or Resize.
func (s *Session) Size() Winsize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws
}

// Close sends a hangup to the child, awaits exit up to 250ms, then kills it
// and always reaps. After the child is reaped, and before the PTY master is
// closed, it performs one last non-blocking read drain of the PTY and
// returns whatever bytes were pending, so the caller can publish them as a
// final Output event before tearing down the bus. The drain does not run
// before the reap.
func (s *Session) Close(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(syscall.SIGHUP)
	}

	done := make(chan struct{})
	go func() {
		if s.cmd.Process != nil {
			s.cmd.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(250 * time.Millisecond):
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-done
	case <-ctx.Done():
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-done
	}

	drained := s.drainNonBlocking()

	s.ptyFile.Close()
	s.readerWg.Wait()

	return drained, nil
}

// drainNonBlocking performs a final best-effort read of whatever the PTY
// already has buffered, without waiting for more.
func (s *Session) drainNonBlocking() []byte {
	s.ptyFile.SetReadDeadline(time.Now())
	defer s.ptyFile.SetReadDeadline(time.Time{})

	buf := make([]byte, outputBufSize)
	n, err := s.ptyFile.Read(buf)
	if n <= 0 || err != nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out
}
