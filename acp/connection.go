// Package acp speaks the Agent Client Protocol to one agent subprocess:
// JSON-RPC 2.0 framed as newline-delimited JSON over the child's stdio.
//
// A Connection owns exactly two goroutines. The writer is the only code that
// touches the child's stdin and drains an ordered, bounded queue. The reader
// is the only code that touches stdout; it completes pending requests by id
// and hands agent-initiated messages to the router. Shutdown kills the child
// first so both goroutines unblock promptly, then fails every waiter.
package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arandu-app/arandu-core/logger"
	"github.com/arandu-app/arandu-core/process"
)

// Connection defaults
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultQueueCapacity  = 64

	// shutdownWaitTimeout bounds how long Shutdown waits for the goroutines.
	shutdownWaitTimeout = 2 * time.Second
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateSpawning State = iota
	StateReady
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting-down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Killer is the process handle a Connection owns.
type Killer interface {
	Kill() error
}

// Options configures a Connection. Zero values select the defaults.
type Options struct {
	WorkspaceID    string
	RequestTimeout time.Duration    // default 30s
	QueueCapacity  int              // default 64
	Sink           EventSink        // default Discard
	Policy         PermissionPolicy // default AutoApprove
	Logger         *slog.Logger     // default logger.WithWorkspace(WorkspaceID)

	// OnExit is called on its own goroutine when the agent closes its output
	// without Shutdown having been called. When nil the Connection shuts
	// itself down instead.
	OnExit func(*Connection)
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.Sink == nil {
		o.Sink = Discard
	}
	if o.Policy == nil {
		o.Policy = AutoApprove
	}
	if o.Logger == nil {
		o.Logger = logger.WithWorkspace(o.WorkspaceID)
	}
	return o
}

// Connection is a live JSON-RPC session with one agent process.
type Connection struct {
	workspace string
	connID    string
	proc      Killer
	stdin     io.WriteCloser
	stdout    io.ReadCloser

	outbound   chan []byte
	done       chan struct{} // closed when Shutdown starts
	writerGone chan struct{} // closed when the writer goroutine exits

	pending *pendingTable
	nextID  atomic.Uint64
	state   atomic.Int32

	timeout time.Duration
	sink    EventSink
	policy  PermissionPolicy
	onExit  func(*Connection)
	log     *slog.Logger

	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// Spawn starts the agent described by cfg and attaches a Connection to it.
// Start failures are returned as *SpawnError and leave nothing running.
func Spawn(cfg process.SpawnConfig, opts Options) (*Connection, error) {
	opts = opts.withDefaults()

	proc, err := process.Start(cfg, opts.Logger.With("component", "process"))
	if err != nil {
		return nil, &SpawnError{Binary: cfg.Binary, Err: err}
	}
	return NewConnection(proc.Stdin(), proc.Stdout(), proc, opts), nil
}

// NewConnection attaches to an already running agent's streams and starts the
// reader and writer. proc may be nil when there is no process to kill.
func NewConnection(stdin io.WriteCloser, stdout io.ReadCloser, proc Killer, opts Options) *Connection {
	opts = opts.withDefaults()
	connID := uuid.New().String()

	c := &Connection{
		workspace:  opts.WorkspaceID,
		connID:     connID,
		proc:       proc,
		stdin:      stdin,
		stdout:     stdout,
		outbound:   make(chan []byte, opts.QueueCapacity),
		done:       make(chan struct{}),
		writerGone: make(chan struct{}),
		pending:    newPendingTable(),
		timeout:    opts.RequestTimeout,
		sink:       opts.Sink,
		policy:     opts.Policy,
		onExit:     opts.OnExit,
		log:        opts.Logger.With("component", "acp", "connID", connID),
	}
	c.state.Store(int32(StateSpawning))

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()

	c.state.Store(int32(StateReady))
	c.log.Debug("connection ready", "queueCapacity", opts.QueueCapacity, "timeout", opts.RequestTimeout)
	return c
}

// WorkspaceID returns the workspace this connection serves.
func (c *Connection) WorkspaceID() string { return c.workspace }

// ConnID returns the random instance id used to correlate logs.
func (c *Connection) ConnID() string { return c.connID }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Done is closed once Shutdown has started.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Pending returns the number of requests awaiting a response.
func (c *Connection) Pending() int { return c.pending.size() }

// SendRequest sends method with params and waits for the matching response.
// It returns the raw result, an *RPCError if the agent answered with an
// error, a *TimeoutError, ErrChannelClosed, ErrConnectionClosed, or ctx.Err().
func (c *Connection) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	line, err := EncodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	// The slot must exist before the line can reach the agent.
	slot, ok := c.pending.insert(id)
	if !ok {
		return nil, ErrChannelClosed
	}
	if err := c.enqueue(ctx, line); err != nil {
		c.pending.remove(id)
		return nil, err
	}
	c.log.Debug("request sent", "id", id, "method", method)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case o := <-slot:
		return o.result, o.err
	case <-timer.C:
		c.pending.abandon(id, method)
		c.log.Warn("request timed out", "id", id, "method", method, "after", c.timeout)
		return nil, &TimeoutError{Method: method, After: c.timeout}
	case <-ctx.Done():
		c.pending.abandon(id, method)
		c.log.Debug("request abandoned by caller", "id", id, "method", method, "error", ctx.Err())
		return nil, ctx.Err()
	}
}

// Call is SendRequest followed by decoding the result into out. out may be
// nil to discard the result.
func (c *Connection) Call(ctx context.Context, method string, params, out any) error {
	result, err := c.SendRequest(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// SendNotification enqueues method with params. No response is awaited.
func (c *Connection) SendNotification(ctx context.Context, method string, params any) error {
	line, err := EncodeNotification(method, params)
	if err != nil {
		return err
	}
	if err := c.enqueue(ctx, line); err != nil {
		return err
	}
	c.log.Debug("notification sent", "method", method)
	return nil
}

// enqueue hands a line to the writer, blocking while the queue is full.
func (c *Connection) enqueue(ctx context.Context, line []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	case <-c.writerGone:
		return ErrChannelClosed
	default:
	}

	select {
	case c.outbound <- line:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-c.writerGone:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop is the only writer of stdin. Each line is flushed on its own.
func (c *Connection) writeLoop() {
	defer c.wg.Done()
	defer close(c.writerGone)

	w := bufio.NewWriter(c.stdin)
	for {
		select {
		case <-c.done:
			return
		case line := <-c.outbound:
			if err := writeLine(w, line); err != nil {
				c.log.Debug("writer stopped", "error", err)
				return
			}
		}
	}
}

func writeLine(w *bufio.Writer, line []byte) error {
	if _, err := w.Write(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// readLoop is the only reader of stdout.
func (c *Connection) readLoop() {
	defer c.wg.Done()

	r := bufio.NewReader(c.stdout)
	for {
		line, err := r.ReadString('\n')
		// A final line without a newline is still a line.
		if trimmed := bytes.TrimSpace([]byte(line)); len(trimmed) > 0 {
			c.handleLine(trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				c.log.Info("reader ended")
			} else {
				c.log.Warn("reader ended", "error", err)
			}
			break
		}
	}

	if c.State() >= StateShuttingDown {
		return
	}
	c.log.Warn("agent closed its output, cleaning up")
	if c.onExit != nil {
		go c.onExit(c)
	} else {
		go c.Shutdown()
	}
}

// handleLine decodes one inbound line and dispatches it.
func (c *Connection) handleLine(line []byte) {
	msg, err := DecodeLine(line)
	if err != nil {
		c.log.Warn("skipping malformed line", "error", err)
		return
	}

	switch {
	case msg.IsResponse():
		c.handleResponse(msg)
	case msg.Method != "":
		c.route(msg)
	default:
		c.log.Warn("unknown message", "line", truncate(line))
	}
}

func (c *Connection) handleResponse(msg *Message) {
	id, ok := msg.NumericID()
	if !ok {
		c.log.Warn("response with non-numeric id dropped", "id", string(msg.ID))
		return
	}

	o := outcome{result: msg.Result}
	if msg.Error != nil {
		o = outcome{err: msg.Error}
	}
	if c.pending.complete(id, o) {
		return
	}

	if method, late := c.pending.expiredMethod(id); late {
		c.log.Warn("late response dropped", "id", id, "method", method)
		return
	}
	c.log.Warn("response for unknown request dropped", "id", id)
}

// Shutdown kills the agent, stops both goroutines and fails every pending
// request with ErrConnectionClosed. Safe to call multiple times.
func (c *Connection) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.state.Store(int32(StateShuttingDown))
		c.log.Info("shutting down connection")

		// Killing first invalidates both streams, so neither goroutine can
		// stay blocked on the child.
		if c.proc != nil {
			if err := c.proc.Kill(); err != nil {
				c.log.Warn("failed to kill agent", "error", err)
			}
		}
		_ = c.stdout.Close()
		close(c.done)
		_ = c.stdin.Close()

		if n := c.pending.clear(); n > 0 {
			c.log.Info("failed pending requests", "count", n)
		}

		waitDone := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(waitDone)
		}()
		select {
		case <-waitDone:
		case <-time.After(shutdownWaitTimeout):
			c.log.Warn("timed out waiting for connection goroutines")
		}

		c.state.Store(int32(StateClosed))
		c.log.Info("connection closed")
	})
}
