// Package supervisor starts encoder subprocesses and keeps track of them so
// they can be stopped gracefully, forced down, or swept up after a crash.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go2tv.app/screenrec/internal/logging"
)

var log = logging.L("supervisor")

// DefaultWaitDelay bounds how long a cancelled or exited process may keep
// its stderr open before it is killed.
const DefaultWaitDelay = 10 * time.Second

// Options configure a Supervisor.
type Options struct {
	Resolver Resolver
	// Registry receives every started process. A private one is created
	// when nil.
	Registry *Registry
	// Env is appended to the inherited environment.
	Env       []string
	WaitDelay time.Duration
}

// StartOptions describe one encoder invocation.
type StartOptions struct {
	Args  []string
	Label string
	// Stdout receives the child's standard output. Discarded when nil.
	Stdout io.Writer
	// LogOutput additionally receives the raw stderr stream.
	LogOutput io.Writer
}

// Supervisor spawns encoder processes.
type Supervisor struct {
	opts Options
	reg  *Registry
}

// New returns a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = DefaultWaitDelay
	}
	return &Supervisor{opts: opts, reg: opts.Registry}
}

// Registry returns the registry processes are tracked in.
func (s *Supervisor) Registry() *Registry { return s.reg }

// Executable resolves the encoder path.
func (s *Supervisor) Executable() (string, error) {
	return s.opts.Resolver.Resolve()
}

// Start launches the encoder with stdin and stderr redirected and registers
// it. Cancelling ctx asks the encoder to stop the same way GracefulStop does;
// it is killed if it has not exited WaitDelay later.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bin, err := s.Executable()
	if err != nil {
		return nil, err
	}

	label := opts.Label
	if label == "" {
		label = "encoder"
	}

	p := &Process{
		label:    label,
		registry: s.reg,
		logs:     newLogSink(label, log, opts.LogOutput),
		done:     make(chan struct{}),
	}
	p.state.Store(int32(StateStarting))

	cmd := exec.Command(bin, opts.Args...)
	cmd.Env = append(cmd.Environ(), s.opts.Env...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = p.logs
	cmd.WaitDelay = s.opts.WaitDelay
	prepareCmd(cmd)
	p.cmd = cmd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin: %v", ErrProcessSpawn, err)
	}
	p.stdin = stdin

	log.Debug("starting encoder", "label", label, "path", bin, "args", strings.Join(opts.Args, " "))

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrProcessSpawn, bin, err)
	}

	if err := afterStart(p); err != nil {
		log.Warn("process containment unavailable", logging.KeyPID, p.PID(), "error", err)
	}

	s.reg.Register(p)
	p.state.Store(int32(StateRunning))
	go func() {
		p.finish(cmd.Wait())
	}()
	go s.stopOnCancel(ctx, p)

	log.Info("encoder started", "label", label, logging.KeyPID, p.PID())
	return p, nil
}

// GracefulStop asks the encoder to finish by writing "q" to its stdin and
// closing it. It does not wait for the exit.
func (s *Supervisor) GracefulStop(p *Process) error {
	if p == nil {
		return nil
	}
	return p.requestStop()
}

func (s *Supervisor) stopOnCancel(ctx context.Context, p *Process) {
	select {
	case <-p.done:
		return
	case <-ctx.Done():
	}
	log.Debug("context cancelled, stopping encoder", logging.KeyPID, p.PID(), "label", p.label)
	_ = p.requestStop()
	if !p.Wait(s.opts.WaitDelay) {
		p.Kill(2 * time.Second)
	}
}
