//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// prepareCmd puts the encoder in its own process group and has the kernel
// SIGKILL it if this process dies.
func prepareCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pgid:      0,
		Pdeathsig: syscall.SIGKILL,
	}
}
