//go:build !windows

package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

type sysState struct{}

func afterStart(*Process) error { return nil }

func releaseSys(*Process) {}

// killTree kills the encoder's whole process group.
func killTree(p *Process) error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	pid := p.cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil || pgid != pid {
		return p.cmd.Process.Kill()
	}
	return unix.Kill(-pgid, unix.SIGKILL)
}

// signaled reports whether the process ended on a signal.
func signaled(ps *os.ProcessState) bool {
	if ps == nil {
		return true
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	return !ok || ws.Signaled()
}
