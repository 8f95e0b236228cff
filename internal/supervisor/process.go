package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go2tv.app/screenrec/internal/logging"
)

// State is the lifecycle phase of an encoder process.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateExited  // exited with status 0
	StateCrashed // exited with a non-zero status on its own
	StateKilled  // terminated by Kill or KillAll
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateCrashed:
		return "crashed"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Process is a running encoder child. Done is closed once the exit status
// is known and the process has been removed from its registry.
type Process struct {
	label    string
	cmd      *exec.Cmd
	registry *Registry
	logs     *LogSink
	sys      sysState

	stdin     io.WriteCloser
	stdinOnce sync.Once
	stdinErr  error

	state    atomic.Int32
	killed   atomic.Bool
	exitCode int
	waitErr  error
	done     chan struct{}
}

// PID is the OS process id.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Label is the caller supplied name used in logs.
func (p *Process) Label() string { return p.label }

// State reports the lifecycle phase.
func (p *Process) State() State { return State(p.state.Load()) }

// Logs returns the stderr sink.
func (p *Process) Logs() *LogSink { return p.logs }

// Stdin is the write end of the child's standard input.
func (p *Process) Stdin() io.Writer { return p.stdin }

// Done is closed after the process exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the exit notification has been delivered.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode is the child's exit status, or -1 while it runs or when it was
// terminated by a signal.
func (p *Process) ExitCode() int {
	if !p.Exited() {
		return -1
	}
	return p.exitCode
}

// Killed reports whether the exit was caused by Kill.
func (p *Process) Killed() bool { return p.State() == StateKilled }

// Err describes an abnormal exit, including the tail of stderr. It is nil
// while running and after a clean exit.
func (p *Process) Err() error {
	if !p.Exited() || p.State() == StateExited {
		return nil
	}
	tail := tailString(p.logs.Tail(), 2048)
	if p.waitErr != nil {
		return fmt.Errorf("%s: %w: %s", p.label, p.waitErr, tail)
	}
	return fmt.Errorf("%s: exit code %d: %s", p.label, p.exitCode, tail)
}

// Wait blocks until the process exits or timeout elapses and reports
// whether it exited. A non-positive timeout waits without a bound.
func (p *Process) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-p.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

// Kill force-terminates the process (and its process group or job) and
// waits up to wait for the exit notification.
func (p *Process) Kill(wait time.Duration) bool {
	if p.Exited() {
		return true
	}
	p.killed.Store(true)
	if err := killTree(p); err != nil {
		p.killed.Store(false)
		if !p.Exited() {
			log.Warn("kill failed", logging.KeyPID, p.PID(), "label", p.label, "error", err)
		}
	}
	return p.Wait(wait)
}

// requestStop asks the encoder to finish: "q" on stdin, then EOF.
func (p *Process) requestStop() error {
	p.stdinOnce.Do(func() {
		if p.stdin == nil {
			return
		}
		var err error
		if !p.Exited() {
			_, err = io.WriteString(p.stdin, "q\n")
		}
		if cerr := p.stdin.Close(); cerr != nil && err == nil {
			err = cerr
		}
		p.stdinErr = err
	})
	return p.stdinErr
}

// CloseStdin closes the child's standard input without the quit command.
// Encoders reading their input from stdin finish on EOF.
func (p *Process) CloseStdin() error {
	p.stdinOnce.Do(func() {
		if p.stdin != nil {
			p.stdinErr = p.stdin.Close()
		}
	})
	return p.stdinErr
}

func (p *Process) finish(err error) {
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = err
	}
	p.exitCode = code

	// A clean exit that raced Kill still counts as clean.
	switch {
	case code == 0 && p.waitErr == nil:
		p.state.Store(int32(StateExited))
	case p.killed.Load() && signaled(p.cmd.ProcessState):
		p.state.Store(int32(StateKilled))
	default:
		p.state.Store(int32(StateCrashed))
	}

	if p.registry != nil {
		p.registry.Unregister(p)
	}
	releaseSys(p)
	close(p.done)

	log.Debug("process exited", logging.KeyPID, p.PID(), "label", p.label, "code", code, "state", p.State().String())
}
