// Package process starts and reaps agent subprocesses.
//
// A Process owns exactly one child. Its stdin and stdout are handed to the
// caller as pipes, stderr is inherited from the host so agent diagnostics
// land next to ours. A single monitor goroutine is the sole caller of
// cmd.Wait; Kill coordinates with it through a channel instead of waiting
// a second time.
//
// Children are killed when:
//   - Kill is called (idempotent, waits for exit)
//   - the owning *Process becomes unreachable without Kill (runtime cleanup)
//   - the host process dies (Linux only, via the parent-death signal)
package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// killWaitTimeout bounds how long Kill waits for the monitor to observe exit.
const killWaitTimeout = 5 * time.Second

// SpawnConfig describes how to launch an agent.
type SpawnConfig struct {
	Binary string   // Executable name or path (looked up in PATH)
	Args   []string // Command-line arguments
	Dir    string   // Working directory for the child
	Env    []string // Extra KEY=VALUE pairs appended to the host environment
}

// String renders the command line for logs.
func (c SpawnConfig) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// exitState is shared between a Process and its monitor goroutine. It must
// not reference the Process, otherwise the cleanup below could never run.
type exitState struct {
	done chan struct{}
	err  error
}

// Process is a running agent subprocess.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	exit   *exitState
	log    *slog.Logger

	killOnce sync.Once
	killErr  error
	cleanup  runtime.Cleanup
}

// Start launches the configured binary with piped stdin/stdout.
// The returned error wraps exec's error when the binary cannot be started.
func Start(cfg SpawnConfig, log *slog.Logger) (*Process, error) {
	if cfg.Binary == "" {
		return nil, errors.New("no agent binary configured")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Stderr = os.Stderr
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	configureSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	// A plain os.Pipe instead of StdoutPipe: cmd.Wait closes StdoutPipe's
	// read end on exit, which would drop lines the reader has not consumed.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to start %s: %w", cfg.Binary, err)
	}
	// The child holds its own copy; ours must go so EOF arrives on exit.
	stdoutW.Close()

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		exit:   &exitState{done: make(chan struct{})},
		log:    log,
	}
	go monitorExit(cmd, p.exit, log)

	// The cleanup argument is the os.Process, not p, so p stays collectable.
	p.cleanup = runtime.AddCleanup(p, func(proc *os.Process) {
		_ = killTree(proc)
	}, cmd.Process)

	log.Info("agent process started", "command", cfg.String(), "dir", cfg.Dir, "pid", cmd.Process.Pid, "elapsed", time.Since(startTime))
	return p, nil
}

// monitorExit is the sole caller of cmd.Wait.
func monitorExit(cmd *exec.Cmd, st *exitState, log *slog.Logger) {
	err := cmd.Wait()
	st.err = err
	close(st.done)
	log.Debug("agent process exited", "pid", cmd.Process.Pid, "error", err)
}

// Stdin returns the write end of the child's standard input.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the read end of the child's standard output.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Pid returns the child's process ID.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.exit.done }

// ExitErr returns the cmd.Wait error. Only meaningful after Done is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.exit.done:
		return p.exit.err
	default:
		return nil
	}
}

// Kill terminates the child (and its process group where supported) and
// waits for the monitor to reap it. Safe to call multiple times.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		p.cleanup.Stop()

		select {
		case <-p.exit.done:
			p.log.Debug("agent process already exited", "pid", p.Pid())
			return
		default:
		}

		p.log.Debug("killing agent process", "pid", p.Pid())
		if err := killTree(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.killErr = fmt.Errorf("failed to kill agent process %d: %w", p.Pid(), err)
		}

		select {
		case <-p.exit.done:
		case <-time.After(killWaitTimeout):
			p.log.Warn("agent process did not exit after kill", "pid", p.Pid())
		}
	})
	return p.killErr
}
