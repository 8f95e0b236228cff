//go:build !windows && !linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// prepareCmd puts the encoder in its own process group.
func prepareCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}
