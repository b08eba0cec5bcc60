// Package reactor implements the single-threaded cooperative reactor that
// owns the terminal emulator, the PTY supervisor, and the pending-input
// queue: the core driver that pumps data between the command parser, the
// PTY, and the event bus.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eriner/ht/internal/commands"
	"github.com/eriner/ht/internal/eventbus"
	"github.com/eriner/ht/internal/keymap"
	"github.com/eriner/ht/internal/ptysup"
	"github.com/eriner/ht/internal/vtscreen"
)

// largeWriteThreshold and writeChunkSize implement the PTY supervisor's
// large-write policy: payloads at or above the threshold are split into
// fixed-size chunks and paced, to avoid overflowing the PTY line
// discipline's ~4KiB buffer.
const (
	largeWriteThreshold = 1500
	writeChunkSize       = 512
	writePacingDelay     = 10 * time.Millisecond
)

// shutdownFlushCeiling bounds how long a shutdown waits for queued input to
// drain before closing the child regardless.
const shutdownFlushCeiling = 500 * time.Millisecond

// Config configures a Reactor at construction time. Configuration is
// resolved once from the CLI surface and passed in by value; the reactor
// holds no reference back to global state.
type Config struct {
	Argv    []string
	Winsize ptysup.Winsize
	Env     map[string]string
	Dir     string

	// StdoutMask, when non-zero, causes matching events to also be printed
	// as JSON lines on stdout (the --subscribe surface).
	StdoutMask eventbus.Mask
	Stdout     func([]byte)

	Logger *slog.Logger
}

type admitRequest struct {
	mask     eventbus.Mask
	capacity int
	resp     chan *eventbus.Subscription
}

// Reactor is the sole owner of the PTY handle, the terminal emulator, and
// the pending-input queue. Everything else communicates with it only
// through channels.
type Reactor struct {
	cfg    Config
	pty    *ptysup.Session
	screen *vtscreen.Screen
	bus    *eventbus.Bus
	logger *slog.Logger

	cmdCh      chan commands.Command
	admitCh    chan admitRequest
	shutdownCh chan struct{}
	doneCh     chan struct{}

	pending [][]byte
	paced   []bool
}

// New spawns the child under a fresh PTY and prepares the reactor to run.
func New(cfg Config) (*Reactor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	session, err := ptysup.Spawn(ptysup.SpawnOptions{
		Argv:    cfg.Argv,
		Winsize: cfg.Winsize,
		Env:     cfg.Env,
		Dir:     cfg.Dir,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("reactor: %w", err)
	}

	r := &Reactor{
		cfg:        cfg,
		pty:        session,
		screen:     vtscreen.New(int(cfg.Winsize.Rows), int(cfg.Winsize.Cols)),
		bus:        eventbus.New(int(cfg.Winsize.Cols), int(cfg.Winsize.Rows)),
		logger:     logger,
		cmdCh:      make(chan commands.Command, 16),
		admitCh:    make(chan admitRequest),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	return r, nil
}

// SubmitCommand hands a parsed command to the reactor. Safe to call from
// the stdin-reading goroutine; it never blocks the reactor's own loop.
func (r *Reactor) SubmitCommand(cmd commands.Command) {
	select {
	case r.cmdCh <- cmd:
	case <-r.doneCh:
	}
}

// Shutdown requests a graceful stop. Idempotent.
func (r *Reactor) Shutdown() {
	select {
	case <-r.shutdownCh:
	default:
		close(r.shutdownCh)
	}
}

// Done is closed once Run has fully torn down the session.
func (r *Reactor) Done() <-chan struct{} {
	return r.doneCh
}

// Subscribe admits a new bus subscriber from outside the reactor goroutine
// (typically a C7 HTTP handler). It returns nil if the reactor has already
// shut down.
func (r *Reactor) Subscribe(mask eventbus.Mask, capacity int) *eventbus.Subscription {
	req := admitRequest{mask: mask, capacity: capacity, resp: make(chan *eventbus.Subscription, 1)}
	select {
	case r.admitCh <- req:
	case <-r.doneCh:
		return nil
	}
	select {
	case sub := <-req.resp:
		return sub
	case <-r.doneCh:
		return nil
	}
}

// Run executes the reactor loop until shutdown, child exit, or ctx
// cancellation. It blocks until the session is fully torn down.
func (r *Reactor) Run(ctx context.Context) {
	defer close(r.doneCh)

	var writeTimerC <-chan time.Time

	for {
		for len(r.pending) > 0 && writeTimerC == nil {
			paced := r.writeNextChunk()
			if len(r.pending) > 0 && paced {
				writeTimerC = time.NewTimer(writePacingDelay).C
				break
			}
		}

		select {
		case chunk, ok := <-r.pty.Output():
			if !ok {
				continue
			}
			r.publishOutput(chunk)

		case <-r.pty.Exited():
			r.drainRemainingOutput()
			closeCtx, cancel := context.WithTimeout(ctx, shutdownFlushCeiling)
			final, err := r.pty.Close(closeCtx)
			cancel()
			if err != nil {
				r.logger.Warn("pty close error", "error", err)
			}
			if len(final) > 0 {
				r.publishOutput(final)
			}
			r.bus.Close()
			return

		case cmd := <-r.cmdCh:
			r.dispatch(cmd)
			if cmd.Type == commands.TypeClose {
				r.doShutdown(ctx)
				return
			}

		case req := <-r.admitCh:
			req.resp <- r.bus.Subscribe(req.mask, req.capacity)

		case <-writeTimerC:
			writeTimerC = nil

		case <-r.shutdownCh:
			r.doShutdown(ctx)
			return

		case <-ctx.Done():
			r.doShutdown(ctx)
			return
		}
	}
}

func (r *Reactor) publishOutput(chunk []byte) {
	r.screen.Feed(chunk)
	evt := r.bus.Publish(eventbus.Event{Kind: eventbus.KindOutput, Data: chunk})
	r.emitStdout(evt)
}

// drainRemainingOutput flushes whatever is still sitting in the PTY's
// output channel after the child has exited, so no bytes produced right
// before exit are lost.
func (r *Reactor) drainRemainingOutput() {
	for {
		select {
		case chunk, ok := <-r.pty.Output():
			if !ok {
				return
			}
			r.publishOutput(chunk)
		default:
			return
		}
	}
}

func (r *Reactor) dispatch(cmd commands.Command) {
	switch cmd.Type {
	case commands.TypeSendKeys:
		r.handleSendKeys(cmd.Keys)
	case commands.TypeInput:
		r.enqueueWrite([]byte(cmd.Payload))
	case commands.TypeResize:
		r.handleResize(int(cmd.Cols), int(cmd.Rows))
	case commands.TypeTakeSnapshot:
		r.handleSnapshot()
	case commands.TypeClose:
		// handled by the caller, which also tears down the reactor
	}
}

func (r *Reactor) handleSendKeys(keys []string) {
	var out []byte
	for _, name := range keys {
		seq, err := keymap.Translate(name)
		if err != nil {
			r.logger.Warn("sendKeys: unknown key, dropping command", "key", name, "error", err)
			return
		}
		out = append(out, seq...)
	}
	r.enqueueWrite(out)
}

func (r *Reactor) handleResize(cols, rows int) {
	r.screen.Resize(cols, rows)
	if err := r.pty.Resize(ptysup.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		r.logger.Warn("resize failed", "error", err)
	}
	evt := r.bus.Publish(eventbus.Event{Kind: eventbus.KindResize, Cols: cols, Rows: rows})
	r.emitStdout(evt)
}

func (r *Reactor) handleSnapshot() {
	cols, rows := r.screen.Size()
	col, row, visible := r.screen.Cursor()
	evt := r.bus.Publish(eventbus.Event{
		Kind: eventbus.KindSnapshot,
		Text: r.screen.SnapshotText(),
		Cols: cols,
		Rows: rows,
		Cursor: eventbus.Cursor{
			Col:     col,
			Row:     row,
			Visible: visible,
		},
	})
	r.emitStdout(evt)
}

func (r *Reactor) emitStdout(evt eventbus.Event) {
	if r.cfg.StdoutMask == 0 || r.cfg.Stdout == nil {
		return
	}
	if r.cfg.StdoutMask&evt.Mask() == 0 {
		return
	}
	line, err := eventbus.EncodeJSON(evt)
	if err != nil {
		r.logger.Warn("failed to encode event for stdout", "error", err)
		return
	}
	r.cfg.Stdout(line)
}

// enqueueWrite implements the large-write policy: payloads at or above
// largeWriteThreshold are split into writeChunkSize pieces, all marked for
// pacing; smaller payloads are enqueued whole, unpaced.
func (r *Reactor) enqueueWrite(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(data) < largeWriteThreshold {
		r.pending = append(r.pending, data)
		r.paced = append(r.paced, false)
		return
	}
	for len(data) > 0 {
		n := writeChunkSize
		if n > len(data) {
			n = len(data)
		}
		r.pending = append(r.pending, data[:n])
		r.paced = append(r.paced, true)
		data = data[n:]
	}
}

// writeNextChunk pops and writes the head of the pending queue, returning
// whether the reactor should now pace before writing the next one.
func (r *Reactor) writeNextChunk() (paced bool) {
	chunk := r.pending[0]
	paced = r.paced[0]
	r.pending = r.pending[1:]
	r.paced = r.paced[1:]

	if _, err := r.pty.Write(chunk); err != nil {
		r.logger.Warn("pty write failed", "error", err)
	}
	return paced
}

// doShutdown stops accepting new work, flushes pending input up to
// shutdownFlushCeiling, closes the child (draining and publishing any final
// output), and drops the bus.
func (r *Reactor) doShutdown(ctx context.Context) {
	deadline := time.Now().Add(shutdownFlushCeiling)
	for len(r.pending) > 0 && time.Now().Before(deadline) {
		paced := r.writeNextChunk()
		if paced && len(r.pending) > 0 {
			time.Sleep(writePacingDelay)
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, shutdownFlushCeiling)
	defer cancel()

	final, err := r.pty.Close(closeCtx)
	if err != nil {
		r.logger.Warn("pty close error", "error", err)
	}
	if len(final) > 0 {
		r.publishOutput(final)
	}

	r.bus.Close()
}
